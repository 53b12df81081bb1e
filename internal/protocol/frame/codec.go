package frame

import (
	"encoding/binary"
	"fmt"
)

// 默认帧头帧尾
const (
	DefaultHeader byte = 0xAA
	DefaultFooter byte = 0x55
)

// Option 编解码器选项
type Option func(*Codec)

// WithHeader 覆盖帧头字节
func WithHeader(b byte) Option { return func(c *Codec) { c.header = b } }

// WithFooter 覆盖帧尾字节
func WithFooter(b byte) Option { return func(c *Codec) { c.footer = b } }

// WithChecksum 选择校验算法，默认 AlgSum
func WithChecksum(a Algorithm) Option { return func(c *Codec) { c.alg = a } }

// WithByteOrder 选择字段字节序，默认小端
// 传入 binary.NativeEndian 时与生产端内存布局一致
func WithByteOrder(o binary.ByteOrder) Option { return func(c *Codec) { c.order = o } }

// Codec 按 schema 编解码定长帧
// 不持有可变状态，可在多个 goroutine 间共享
type Codec struct {
	schema *Schema
	header byte
	footer byte
	alg    Algorithm
	order  binary.ByteOrder
}

// NewCodec 创建编解码器
func NewCodec(s *Schema, opts ...Option) *Codec {
	c := &Codec{
		schema: s,
		header: DefaultHeader,
		footer: DefaultFooter,
		alg:    AlgSum,
		order:  binary.LittleEndian,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.order == nil {
		c.order = binary.LittleEndian
	}
	return c
}

func (c *Codec) Schema() *Schema             { return c.schema }
func (c *Codec) Name() string                { return c.schema.name }
func (c *Codec) Header() byte                { return c.header }
func (c *Codec) Footer() byte                { return c.footer }
func (c *Codec) Checksum() Algorithm         { return c.alg }
func (c *Codec) ByteOrder() binary.ByteOrder { return c.order }

// FrameSize 完整帧长度
func (c *Codec) FrameSize() int { return c.schema.FrameSize() }

// Encode 将载荷编码为完整帧
// 仅当载荷与 schema 不符时返回 ErrPayloadMismatch
func (c *Codec) Encode(p Payload) ([]byte, error) {
	return c.AppendEncode(make([]byte, 0, c.FrameSize()), p)
}

// AppendEncode 将编码结果追加到 dst 之后
func (c *Codec) AppendEncode(dst []byte, p Payload) ([]byte, error) {
	if err := c.schema.Check(p); err != nil {
		return dst, err
	}
	start := len(dst)
	dst = grow(dst, c.FrameSize())
	frame := dst[start:]

	w := NewWriter(frame[HeaderSize:HeaderSize+c.schema.size], c.order)
	for i, f := range c.schema.fields {
		if err := c.writeField(w, f, p[i]); err != nil {
			return dst[:start], fmt.Errorf("%s.%s: %w", c.schema.name, f.Name, err)
		}
	}
	c.seal(frame)
	return dst, nil
}

// Seal 为已序列化的载荷加上帧头、校验与帧尾
func (c *Codec) Seal(payload []byte) ([]byte, error) {
	if len(payload) != c.schema.size {
		return nil, fmt.Errorf("%w: %s payload is %d bytes, got %d",
			ErrPayloadMismatch, c.schema.name, c.schema.size, len(payload))
	}
	frame := make([]byte, c.FrameSize())
	copy(frame[HeaderSize:], payload)
	c.seal(frame)
	return frame, nil
}

// seal 写入 header/checksum/footer，载荷区已就位
func (c *Codec) seal(frame []byte) {
	p := c.schema.size
	frame[0] = c.header
	frame[HeaderSize+p] = c.alg.Compute(frame[HeaderSize : HeaderSize+p])
	frame[len(frame)-1] = c.footer
}

// Validate 按 长度、帧头、帧尾、校验和 的顺序检查，遇到第一个错误即返回
func (c *Codec) Validate(frame []byte) error {
	if len(frame) != c.FrameSize() {
		return &FrameError{Kind: ErrLengthMismatch, Schema: c.schema.name, Expected: c.FrameSize(), Actual: len(frame)}
	}
	if frame[0] != c.header {
		return &FrameError{Kind: ErrBadHeader, Schema: c.schema.name, Expected: int(c.header), Actual: int(frame[0])}
	}
	last := len(frame) - 1
	if frame[last] != c.footer {
		return &FrameError{Kind: ErrBadFooter, Schema: c.schema.name, Expected: int(c.footer), Actual: int(frame[last])}
	}
	p := c.schema.size
	want := c.alg.Compute(frame[HeaderSize : HeaderSize+p])
	if got := frame[HeaderSize+p]; got != want {
		return &FrameError{Kind: ErrChecksumMismatch, Schema: c.schema.name, Expected: int(want), Actual: int(got)}
	}
	return nil
}

// Open 校验帧并返回载荷区的副本
func (c *Codec) Open(frame []byte) ([]byte, error) {
	if err := c.Validate(frame); err != nil {
		return nil, err
	}
	out := make([]byte, c.schema.size)
	copy(out, frame[HeaderSize:])
	return out, nil
}

// Decode 校验帧并还原载荷，校验全部通过前不解析任何字段
func (c *Codec) Decode(frame []byte) (Payload, error) {
	if err := c.Validate(frame); err != nil {
		return nil, err
	}
	r := NewReader(frame[HeaderSize:HeaderSize+c.schema.size], c.order)
	p := make(Payload, len(c.schema.fields))
	for i, f := range c.schema.fields {
		v, err := c.readField(r, f)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", c.schema.name, f.Name, err)
		}
		p[i] = v
	}
	return p, nil
}

func (c *Codec) writeField(w *Writer, f FieldSpec, v any) error {
	switch f.Kind {
	case KindInt32:
		return w.WriteUint32(uint32(v.(int32)))
	case KindFloat32:
		return w.WriteFloat32(v.(float32))
	case KindBytes:
		return w.WriteBytes(v.([]byte))
	case KindUint8:
		return w.WriteUint8(v.(uint8))
	case KindInt8:
		return w.WriteUint8(uint8(v.(int8)))
	case KindUint16:
		return w.WriteUint16(v.(uint16))
	case KindInt16:
		return w.WriteUint16(uint16(v.(int16)))
	case KindBool:
		var b uint8
		if v.(bool) {
			b = 1
		}
		return w.WriteUint8(b)
	}
	return fmt.Errorf("unsupported kind %v", f.Kind)
}

func (c *Codec) readField(r *Reader, f FieldSpec) (any, error) {
	switch f.Kind {
	case KindInt32:
		u, err := r.ReadUint32()
		return int32(u), err
	case KindFloat32:
		return r.ReadFloat32()
	case KindBytes:
		return r.ReadBytes(f.Width)
	case KindUint8:
		return r.ReadUint8()
	case KindInt8:
		u, err := r.ReadUint8()
		return int8(u), err
	case KindUint16:
		return r.ReadUint16()
	case KindInt16:
		u, err := r.ReadUint16()
		return int16(u), err
	case KindBool:
		u, err := r.ReadUint8()
		return u != 0, err
	}
	return nil, fmt.Errorf("unsupported kind %v", f.Kind)
}

// grow 将 b 扩展 n 字节，新增部分清零
func grow(b []byte, n int) []byte {
	l := len(b)
	if cap(b)-l < n {
		nb := make([]byte, l, l+n)
		copy(nb, b)
		b = nb
	}
	b = b[:l+n]
	clear(b[l:])
	return b
}
