package frame

import (
	"encoding/binary"
	"math"
)

// Writer 定长缓冲区上的顺序写游标，越界返回 ErrShortBuffer
type Writer struct {
	buf   []byte
	off   int
	order binary.ByteOrder
}

func NewWriter(buf []byte, order binary.ByteOrder) *Writer {
	return &Writer{buf: buf, order: order}
}

func (w *Writer) Offset() int    { return w.off }
func (w *Writer) Remaining() int { return len(w.buf) - w.off }

// next 预留 n 字节并返回对应切片
func (w *Writer) next(n int) ([]byte, error) {
	if n < 0 || w.off+n > len(w.buf) {
		return nil, ErrShortBuffer
	}
	b := w.buf[w.off : w.off+n]
	w.off += n
	return b, nil
}

func (w *Writer) WriteUint8(v uint8) error {
	b, err := w.next(1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

func (w *Writer) WriteUint16(v uint16) error {
	b, err := w.next(2)
	if err != nil {
		return err
	}
	w.order.PutUint16(b, v)
	return nil
}

func (w *Writer) WriteUint32(v uint32) error {
	b, err := w.next(4)
	if err != nil {
		return err
	}
	w.order.PutUint32(b, v)
	return nil
}

// WriteFloat32 按 IEEE-754 binary32 写入
func (w *Writer) WriteFloat32(v float32) error {
	return w.WriteUint32(math.Float32bits(v))
}

func (w *Writer) WriteBytes(p []byte) error {
	b, err := w.next(len(p))
	if err != nil {
		return err
	}
	copy(b, p)
	return nil
}

// Reader 定长缓冲区上的顺序读游标
type Reader struct {
	data  []byte
	off   int
	order binary.ByteOrder
}

func NewReader(data []byte, order binary.ByteOrder) *Reader {
	return &Reader{data: data, order: order}
}

func (r *Reader) Offset() int    { return r.off }
func (r *Reader) Remaining() int { return len(r.data) - r.off }

func (r *Reader) next(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.data) {
		return nil, ErrShortBuffer
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.next(2)
	if err != nil {
		return 0, err
	}
	return r.order.Uint16(b), nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return r.order.Uint32(b), nil
}

func (r *Reader) ReadFloat32() (float32, error) {
	u, err := r.ReadUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(u), nil
}

// ReadBytes 读取 n 字节的副本，不与底层缓冲区共享内存
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	b, err := r.next(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}
