package frame

import (
	"fmt"
	"reflect"
)

// Typed 以 Go 结构体描述 schema 的编解码器
//
// 结构体的导出字段按声明顺序构成载荷，字段名取 `frame:"name"` 标签，
// 标签为 "-" 的字段被忽略。支持的字段类型：int32、float32、uint8、int8、
// uint16、int16、bool 以及 [N]byte。
type Typed[T any] struct {
	codec *Codec
	index []int // 载荷字段 -> 结构体字段下标
}

// NewTyped 由结构体类型推导 schema 并创建编解码器
func NewTyped[T any](name string, opts ...Option) (*Typed[T], error) {
	rt := reflect.TypeFor[T]()
	if rt.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", ErrInvalidSchema, rt)
	}

	var (
		specs []FieldSpec
		index []int
	)
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag := sf.Tag.Get("frame")
		if tag == "-" {
			continue
		}
		if tag == "" {
			tag = sf.Name
		}
		spec, err := specFor(tag, sf.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrInvalidSchema, rt.Name(), sf.Name, err)
		}
		specs = append(specs, spec)
		index = append(index, i)
	}

	s, err := NewSchema(name, specs...)
	if err != nil {
		return nil, err
	}
	return &Typed[T]{codec: NewCodec(s, opts...), index: index}, nil
}

// MustTyped 同 NewTyped，失败时 panic
func MustTyped[T any](name string, opts ...Option) *Typed[T] {
	t, err := NewTyped[T](name, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

func specFor(name string, t reflect.Type) (FieldSpec, error) {
	switch t.Kind() {
	case reflect.Int32:
		return Int32(name), nil
	case reflect.Float32:
		return Float32(name), nil
	case reflect.Uint8:
		return Uint8(name), nil
	case reflect.Int8:
		return Int8(name), nil
	case reflect.Uint16:
		return Uint16(name), nil
	case reflect.Int16:
		return Int16(name), nil
	case reflect.Bool:
		return Bool(name), nil
	case reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return Bytes(name, t.Len()), nil
		}
	}
	return FieldSpec{}, fmt.Errorf("unsupported field type %s", t)
}

// Codec 返回底层的通用编解码器，可注册到 registry
func (t *Typed[T]) Codec() *Codec { return t.codec }

func (t *Typed[T]) Schema() *Schema { return t.codec.schema }

// Encode 编码结构体，类型已在构造时校验，不会失败
func (t *Typed[T]) Encode(v T) []byte {
	b, err := t.codec.Encode(t.Payload(v))
	if err != nil {
		panic(fmt.Sprintf("frame: typed encode %s: %v", t.codec.Name(), err))
	}
	return b
}

// Decode 校验并解码为结构体
func (t *Typed[T]) Decode(b []byte) (T, error) {
	var out T
	p, err := t.codec.Decode(b)
	if err != nil {
		return out, err
	}
	rv := reflect.ValueOf(&out).Elem()
	for i, fi := range t.index {
		fv := rv.Field(fi)
		switch v := p[i].(type) {
		case int32:
			fv.SetInt(int64(v))
		case int8:
			fv.SetInt(int64(v))
		case int16:
			fv.SetInt(int64(v))
		case float32:
			fv.SetFloat(float64(v))
		case uint8:
			fv.SetUint(uint64(v))
		case uint16:
			fv.SetUint(uint64(v))
		case bool:
			fv.SetBool(v)
		case []byte:
			reflect.Copy(fv, reflect.ValueOf(v))
		}
	}
	return out, nil
}

// Payload 将结构体转换为通用载荷
func (t *Typed[T]) Payload(v T) Payload {
	rv := reflect.ValueOf(v)
	fields := t.codec.schema.fields
	p := make(Payload, len(fields))
	for i, fi := range t.index {
		fv := rv.Field(fi)
		switch fields[i].Kind {
		case KindInt32:
			p[i] = int32(fv.Int())
		case KindInt8:
			p[i] = int8(fv.Int())
		case KindInt16:
			p[i] = int16(fv.Int())
		case KindFloat32:
			p[i] = float32(fv.Float())
		case KindUint8:
			p[i] = uint8(fv.Uint())
		case KindUint16:
			p[i] = uint16(fv.Uint())
		case KindBool:
			p[i] = fv.Bool()
		case KindBytes:
			b := make([]byte, fields[i].Width)
			reflect.Copy(reflect.ValueOf(b), fv)
			p[i] = b
		}
	}
	return p
}
