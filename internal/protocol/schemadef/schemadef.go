// Package schemadef 从 JSON/YAML 定义文件加载包结构
//
// 文件格式与串口协议生成器的定义文件一致：
//
//	{
//	  "structName": "SensorPacket",
//	  "fields": [
//	    {"name": "id", "type": "int"},
//	    {"name": "value", "type": "float"},
//	    {"name": "name", "type": "char", "length": 8}
//	  ],
//	  "verify": "sum",
//	  "header": 170,
//	  "footer": 85
//	}
package schemadef

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/taoyao-code/framelink/internal/protocol/frame"
)

// DefaultCharLength char 字段未给出 length 时的默认长度
const DefaultCharLength = 32

var ErrUnsupported = errors.New("unsupported definition")

// Field 字段定义
type Field struct {
	Name   string `yaml:"name" json:"name"`
	Type   string `yaml:"type" json:"type"`
	Length int    `yaml:"length,omitempty" json:"length,omitempty"`
}

// Definition 一个包的定义
type Definition struct {
	StructName string  `yaml:"structName" json:"structName"`
	Fields     []Field `yaml:"fields" json:"fields"`
	Verify     string  `yaml:"verify,omitempty" json:"verify,omitempty"`
	Header     *int    `yaml:"header,omitempty" json:"header,omitempty"`
	Footer     *int    `yaml:"footer,omitempty" json:"footer,omitempty"`
	HeaderLen  int     `yaml:"header_len,omitempty" json:"header_len,omitempty"`
	FooterLen  int     `yaml:"footer_len,omitempty" json:"footer_len,omitempty"`
	DataLen    bool    `yaml:"data_len,omitempty" json:"data_len,omitempty"`
	Endian     string  `yaml:"endian,omitempty" json:"endian,omitempty"`

	// Path 来源文件，Parse 时为空
	Path string `yaml:"-" json:"-"`
}

// Parse 解析定义内容，以 '{' 开头按 JSON 处理，否则按 YAML 处理
func Parse(b []byte) (*Definition, error) {
	// 去除可能的 BOM
	b = bytes.TrimSpace(bytes.TrimPrefix(b, []byte("\ufeff")))
	var d Definition
	if len(b) > 0 && b[0] == '{' {
		if err := json.Unmarshal(b, &d); err != nil {
			return nil, fmt.Errorf("unmarshal definition: %w", err)
		}
	} else if err := yaml.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	if strings.TrimSpace(d.StructName) == "" {
		return nil, errors.New("definition has no structName")
	}
	return &d, nil
}

// LoadFile 读取单个定义文件
func LoadFile(path string) (*Definition, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	d, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	d.Path = path
	return d, nil
}

// LoadDir 递归加载目录下全部 .json/.yaml/.yml 定义，按路径排序
func LoadDir(dir string) ([]*Definition, error) {
	var defs []*Definition
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json", ".yaml", ".yml":
		default:
			return nil
		}
		def, err := LoadFile(path)
		if err != nil {
			return err
		}
		defs = append(defs, def)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Path < defs[j].Path })
	return defs, nil
}

// Schema 构建字段布局
func (d *Definition) Schema() (*frame.Schema, error) {
	specs := make([]frame.FieldSpec, 0, len(d.Fields))
	for _, f := range d.Fields {
		spec, err := fieldSpec(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.StructName, err)
		}
		specs = append(specs, spec)
	}
	return frame.NewSchema(d.StructName, specs...)
}

// Options 将帧头、帧尾、校验算法与字节序转换为编解码器选项
func (d *Definition) Options() ([]frame.Option, error) {
	if d.HeaderLen > 1 || d.FooterLen > 1 {
		return nil, fmt.Errorf("%w: %s multi-byte header/footer", ErrUnsupported, d.StructName)
	}
	if d.DataLen {
		return nil, fmt.Errorf("%w: %s data_len byte", ErrUnsupported, d.StructName)
	}

	var opts []frame.Option
	if d.Header != nil {
		b, err := byteValue("header", *d.Header)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.StructName, err)
		}
		opts = append(opts, frame.WithHeader(b))
	}
	if d.Footer != nil {
		b, err := byteValue("footer", *d.Footer)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.StructName, err)
		}
		opts = append(opts, frame.WithFooter(b))
	}

	alg, err := frame.ParseAlgorithm(d.Verify)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.StructName, err)
	}
	opts = append(opts, frame.WithChecksum(alg))

	switch strings.ToLower(d.Endian) {
	case "", "little", "le":
	case "big", "be":
		opts = append(opts, frame.WithByteOrder(binary.BigEndian))
	case "native", "host":
		opts = append(opts, frame.WithByteOrder(binary.NativeEndian))
	default:
		return nil, fmt.Errorf("%s: unknown endian %q", d.StructName, d.Endian)
	}
	return opts, nil
}

// Build 构建编解码器
func (d *Definition) Build() (*frame.Codec, error) {
	s, err := d.Schema()
	if err != nil {
		return nil, err
	}
	opts, err := d.Options()
	if err != nil {
		return nil, err
	}
	return frame.NewCodec(s, opts...), nil
}

func fieldSpec(f Field) (frame.FieldSpec, error) {
	switch strings.ToLower(f.Type) {
	case "int", "int32":
		return frame.Int32(f.Name), nil
	case "float", "float32":
		return frame.Float32(f.Name), nil
	case "uint8":
		return frame.Uint8(f.Name), nil
	case "int8":
		return frame.Int8(f.Name), nil
	case "uint16":
		return frame.Uint16(f.Name), nil
	case "int16":
		return frame.Int16(f.Name), nil
	case "bool":
		return frame.Bool(f.Name), nil
	case "char", "bytes":
		n := f.Length
		if n == 0 {
			n = DefaultCharLength
		}
		return frame.Bytes(f.Name, n), nil
	}
	return frame.FieldSpec{}, fmt.Errorf("field %q: unknown type %q", f.Name, f.Type)
}

func byteValue(what string, v int) (byte, error) {
	if v < 0 || v > 0xFF {
		return 0, fmt.Errorf("%s 0x%X does not fit in one byte", what, v)
	}
	return byte(v), nil
}
