package frame

import (
	"fmt"
	"strings"
)

// 帧布局：header(1) + payload(P) + checksum(1) + footer(1)
const (
	HeaderSize   = 1
	ChecksumSize = 1
	FooterSize   = 1
	Overhead     = HeaderSize + ChecksumSize + FooterSize

	// MaxPayloadSize 单个 schema 载荷上限
	MaxPayloadSize = 4096
)

// FieldKind 字段的语义类型
type FieldKind uint8

const (
	KindInvalid FieldKind = iota
	KindInt32
	KindFloat32
	KindBytes // 定长字节数组
	KindUint8
	KindInt8
	KindUint16
	KindInt16
	KindBool // 1 字节，0/1
)

var kindNames = map[FieldKind]string{
	KindInt32:   "int32",
	KindFloat32: "float32",
	KindBytes:   "bytes",
	KindUint8:   "uint8",
	KindInt8:    "int8",
	KindUint16:  "uint16",
	KindInt16:   "int16",
	KindBool:    "bool",
}

func (k FieldKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// width 返回定宽类型的字节数，bytes 类型返回 0
func (k FieldKind) width() int {
	switch k {
	case KindInt32, KindFloat32:
		return 4
	case KindUint16, KindInt16:
		return 2
	case KindUint8, KindInt8, KindBool:
		return 1
	default:
		return 0
	}
}

// FieldSpec 单个载荷字段：名称、类型、宽度、在载荷中的偏移
// Offset 由 NewSchema 按声明顺序连续分配，调用方无需填写
type FieldSpec struct {
	Name   string
	Kind   FieldKind
	Width  int
	Offset int
}

func Int32(name string) FieldSpec   { return FieldSpec{Name: name, Kind: KindInt32, Width: 4} }
func Float32(name string) FieldSpec { return FieldSpec{Name: name, Kind: KindFloat32, Width: 4} }
func Uint8(name string) FieldSpec   { return FieldSpec{Name: name, Kind: KindUint8, Width: 1} }
func Int8(name string) FieldSpec    { return FieldSpec{Name: name, Kind: KindInt8, Width: 1} }
func Uint16(name string) FieldSpec  { return FieldSpec{Name: name, Kind: KindUint16, Width: 2} }
func Int16(name string) FieldSpec   { return FieldSpec{Name: name, Kind: KindInt16, Width: 2} }
func Bool(name string) FieldSpec    { return FieldSpec{Name: name, Kind: KindBool, Width: 1} }

// Bytes 定长字节数组字段
func Bytes(name string, n int) FieldSpec {
	return FieldSpec{Name: name, Kind: KindBytes, Width: n}
}

// Schema 有序字段集合，创建后不可变
type Schema struct {
	name   string
	fields []FieldSpec
	index  map[string]int
	size   int
}

// NewSchema 校验字段定义并按声明顺序分配偏移
func NewSchema(name string, fields ...FieldSpec) (*Schema, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: empty schema name", ErrInvalidSchema)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s has no fields", ErrInvalidSchema, name)
	}

	s := &Schema{
		name:   name,
		fields: make([]FieldSpec, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	off := 0
	for i, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("%w: %s field #%d has no name", ErrInvalidSchema, name, i)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("%w: %s duplicate field %q", ErrInvalidSchema, name, f.Name)
		}
		switch {
		case f.Kind == KindBytes:
			if f.Width < 1 {
				return nil, fmt.Errorf("%w: %s.%s byte array width %d", ErrInvalidSchema, name, f.Name, f.Width)
			}
		case f.Kind.width() == 0:
			return nil, fmt.Errorf("%w: %s.%s unknown kind %v", ErrInvalidSchema, name, f.Name, f.Kind)
		case f.Width != f.Kind.width():
			return nil, fmt.Errorf("%w: %s.%s %v must be %d bytes, got %d",
				ErrInvalidSchema, name, f.Name, f.Kind, f.Kind.width(), f.Width)
		}
		if f.Width > MaxPayloadSize-off {
			return nil, fmt.Errorf("%w: %s payload exceeds %d bytes", ErrInvalidSchema, name, MaxPayloadSize)
		}
		f.Offset = off
		off += f.Width
		s.fields[i] = f
		s.index[f.Name] = i
	}
	s.size = off
	return s, nil
}

// MustSchema 同 NewSchema，定义错误时 panic，用于包级变量
func MustSchema(name string, fields ...FieldSpec) *Schema {
	s, err := NewSchema(name, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Name() string { return s.name }

// Fields 返回字段副本
func (s *Schema) Fields() []FieldSpec {
	out := make([]FieldSpec, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field 按名称查找字段
func (s *Schema) Field(name string) (FieldSpec, bool) {
	i, ok := s.index[name]
	if !ok {
		return FieldSpec{}, false
	}
	return s.fields[i], true
}

// PayloadSize 载荷字节数 P
func (s *Schema) PayloadSize() int { return s.size }

// FrameSize 完整帧长度 P+3
func (s *Schema) FrameSize() int { return s.size + Overhead }

func (s *Schema) String() string {
	var b strings.Builder
	b.WriteString(s.name)
	b.WriteByte('{')
	for i, f := range s.fields {
		if i > 0 {
			b.WriteString("; ")
		}
		if f.Kind == KindBytes {
			fmt.Fprintf(&b, "%s [%d]byte", f.Name, f.Width)
		} else {
			fmt.Fprintf(&b, "%s %v", f.Name, f.Kind)
		}
	}
	b.WriteByte('}')
	return b.String()
}
