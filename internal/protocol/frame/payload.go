package frame

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Payload 一帧的字段值，按 schema 字段顺序排列
// 各类型对应的 Go 值：int32、float32、[]byte（长度等于字段宽度）、uint8、int8、uint16、int16、bool
type Payload []any

// Check 校验载荷与 schema 是否一致
func (s *Schema) Check(p Payload) error {
	if len(p) != len(s.fields) {
		return fmt.Errorf("%w: %s has %d fields, got %d values", ErrPayloadMismatch, s.name, len(s.fields), len(p))
	}
	for i, f := range s.fields {
		if !f.accepts(p[i]) {
			return fmt.Errorf("%w: %s.%s wants %s, got %T", ErrPayloadMismatch, s.name, f.Name, f.describe(), p[i])
		}
	}
	return nil
}

func (f FieldSpec) accepts(v any) bool {
	switch f.Kind {
	case KindInt32:
		_, ok := v.(int32)
		return ok
	case KindFloat32:
		_, ok := v.(float32)
		return ok
	case KindBytes:
		b, ok := v.([]byte)
		return ok && len(b) == f.Width
	case KindUint8:
		_, ok := v.(uint8)
		return ok
	case KindInt8:
		_, ok := v.(int8)
		return ok
	case KindUint16:
		_, ok := v.(uint16)
		return ok
	case KindInt16:
		_, ok := v.(int16)
		return ok
	case KindBool:
		_, ok := v.(bool)
		return ok
	}
	return false
}

func (f FieldSpec) describe() string {
	if f.Kind == KindBytes {
		return fmt.Sprintf("[]byte of length %d", f.Width)
	}
	return f.Kind.String()
}

// Named 将载荷转成字段名到值的映射
// 字节数组见 FormatBytes，结果可经 Coerce 还原为同一载荷
func (s *Schema) Named(p Payload) map[string]any {
	out := make(map[string]any, len(s.fields))
	for i, f := range s.fields {
		if i >= len(p) {
			break
		}
		if b, ok := p[i].([]byte); ok && f.Kind == KindBytes {
			out[f.Name] = FormatBytes(b)
			continue
		}
		out[f.Name] = p[i]
	}
	return out
}

// FormatBytes 字节数组的文本形式：去掉尾部 0 后为可打印 UTF-8 时按 char[n] 呈现为字符串，
// 否则为 "0x" 加全宽十六进制
func FormatBytes(b []byte) string {
	text := bytes.TrimRight(b, "\x00")
	if isPlainText(text) {
		return string(text)
	}
	return "0x" + hex.EncodeToString(b)
}

func isPlainText(b []byte) bool {
	if !utf8.Valid(b) || hasHexPrefix(string(b)) {
		return false
	}
	for _, r := range string(b) {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

func hasHexPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// Coerce 由松散类型的值（JSON 数字、命令行字符串等）构造载荷
// 所有字段必须给出，未知字段报错；字符串赋给字节数组时右侧补 0，
// 以 0x 开头的字符串按十六进制解析
func (s *Schema) Coerce(values map[string]any) (Payload, error) {
	var unknown []string
	for k := range values {
		if _, ok := s.index[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %s has no field %s", ErrPayloadMismatch, s.name, strings.Join(unknown, ", "))
	}

	p := make(Payload, len(s.fields))
	for i, f := range s.fields {
		raw, ok := values[f.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s missing", ErrPayloadMismatch, s.name, f.Name)
		}
		v, err := f.coerce(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrPayloadMismatch, s.name, f.Name, err)
		}
		p[i] = v
	}
	return p, nil
}

func (f FieldSpec) coerce(raw any) (any, error) {
	switch f.Kind {
	case KindFloat32:
		x, err := toFloat(raw)
		if err != nil {
			return nil, err
		}
		// 显式给出的 ±Inf/NaN 原样保留，有限值不得超出 float32 范围
		if !math.IsInf(x, 0) && math.Abs(x) > math.MaxFloat32 {
			return nil, fmt.Errorf("%v out of float32 range", x)
		}
		return float32(x), nil
	case KindInt32:
		x, err := toInt(raw, math.MinInt32, math.MaxInt32)
		return int32(x), err
	case KindUint8:
		x, err := toInt(raw, 0, math.MaxUint8)
		return uint8(x), err
	case KindInt8:
		x, err := toInt(raw, math.MinInt8, math.MaxInt8)
		return int8(x), err
	case KindUint16:
		x, err := toInt(raw, 0, math.MaxUint16)
		return uint16(x), err
	case KindInt16:
		x, err := toInt(raw, math.MinInt16, math.MaxInt16)
		return int16(x), err
	case KindBool:
		return toBool(raw)
	case KindBytes:
		var b []byte
		switch t := raw.(type) {
		case string:
			if !hasHexPrefix(t) {
				b = []byte(t)
				break
			}
			d, err := hex.DecodeString(t[2:])
			if err != nil {
				return nil, fmt.Errorf("invalid hex %q: %v", t, err)
			}
			b = d
		case []byte:
			b = t
		default:
			return nil, fmt.Errorf("cannot use %T as byte array", raw)
		}
		if len(b) > f.Width {
			return nil, fmt.Errorf("%d bytes do not fit in %d", len(b), f.Width)
		}
		out := make([]byte, f.Width)
		copy(out, b)
		return out, nil
	}
	return nil, fmt.Errorf("unsupported kind %v", f.Kind)
}

func toFloat(raw any) (float64, error) {
	switch t := raw.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(t), 32)
	}
	return 0, fmt.Errorf("cannot use %T as number", raw)
}

func toInt(raw any, lo, hi int64) (int64, error) {
	var x int64
	switch t := raw.(type) {
	case int:
		x = int64(t)
	case int32:
		x = int64(t)
	case int64:
		x = t
	case uint8:
		x = int64(t)
	case uint16:
		x = int64(t)
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("%v is not an integer", t)
		}
		x = int64(t)
	case json.Number:
		v, err := t.Int64()
		if err != nil {
			return 0, err
		}
		x = v
	case string:
		v, err := strconv.ParseInt(strings.TrimSpace(t), 0, 64)
		if err != nil {
			return 0, err
		}
		x = v
	default:
		return 0, fmt.Errorf("cannot use %T as integer", raw)
	}
	if x < lo || x > hi {
		return 0, fmt.Errorf("%d out of range [%d, %d]", x, lo, hi)
	}
	return x, nil
}

func toBool(raw any) (bool, error) {
	switch t := raw.(type) {
	case bool:
		return t, nil
	case float64:
		return t != 0, nil
	case int:
		return t != 0, nil
	case json.Number:
		v, err := t.Float64()
		return v != 0, err
	case string:
		return strconv.ParseBool(strings.TrimSpace(t))
	}
	return false, fmt.Errorf("cannot use %T as bool", raw)
}
