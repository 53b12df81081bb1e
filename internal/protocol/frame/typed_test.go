package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cyyPacket struct {
	My     float32 `frame:"my"`
	Name   int32   `frame:"name"`
	Target float32 `frame:"target"`
}

type mixedPacket struct {
	Aim     [4]byte `frame:"aim"`
	Fire    bool    `frame:"fire"`
	Mode    uint8
	Offset  int16  `frame:"offset"`
	Comment string `frame:"-"`
	hidden  int32
}

func TestTyped_MatchesGenericCodec(t *testing.T) {
	tc, err := NewTyped[cyyPacket]("CyyPacket")
	require.NoError(t, err)
	assert.Equal(t, cyySchema.Fields(), tc.Schema().Fields())

	v := cyyPacket{My: 1.5, Name: 42, Target: -3.25}
	b := tc.Encode(v)
	assert.Equal(t, validCyyFrame(t), b)

	got, err := tc.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, v, got)

	generic, err := tc.Codec().Decode(b)
	require.NoError(t, err)
	assert.Equal(t, tc.Payload(v), generic)
}

func TestTyped_MixedFields(t *testing.T) {
	tc := MustTyped[mixedPacket]("Mixed", WithHeader(0x7E))
	fields := tc.Schema().Fields()
	require.Len(t, fields, 4)
	assert.Equal(t, "Mode", fields[2].Name)
	assert.Equal(t, 4+1+1+2, tc.Schema().PayloadSize())

	v := mixedPacket{Aim: [4]byte{'a', 'b', 0, 'd'}, Fire: true, Mode: 9, Offset: -300, Comment: "ignored", hidden: 5}
	b := tc.Encode(v)
	assert.Equal(t, byte(0x7E), b[0])

	got, err := tc.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, v.Aim, got.Aim)
	assert.True(t, got.Fire)
	assert.Equal(t, uint8(9), got.Mode)
	assert.Equal(t, int16(-300), got.Offset)
	assert.Empty(t, got.Comment)
	assert.Zero(t, got.hidden)
}

func TestTyped_DecodeError(t *testing.T) {
	tc := MustTyped[cyyPacket]("CyyPacket")
	b := tc.Encode(cyyPacket{My: 1})
	b[0] = 0x00

	got, err := tc.Decode(b)
	assert.ErrorIs(t, err, ErrBadHeader)
	assert.Equal(t, cyyPacket{}, got)
}

func TestTyped_Unsupported(t *testing.T) {
	type withInt64 struct{ V int64 }
	type withSlice struct{ V []byte }
	type empty struct{ v int32 }

	_, err := NewTyped[withInt64]("X")
	assert.ErrorIs(t, err, ErrInvalidSchema)
	_, err = NewTyped[withSlice]("X")
	assert.ErrorIs(t, err, ErrInvalidSchema)
	_, err = NewTyped[empty]("X")
	assert.ErrorIs(t, err, ErrInvalidSchema)
	_, err = NewTyped[int]("X")
	assert.ErrorIs(t, err, ErrInvalidSchema)

	assert.Panics(t, func() { MustTyped[withInt64]("X") })
}
