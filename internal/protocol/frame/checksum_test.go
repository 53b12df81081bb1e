package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateChecksum(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected byte
	}{
		{name: "空数据", data: []byte{}, expected: 0x00},
		{name: "nil", data: nil, expected: 0x00},
		{name: "单字节", data: []byte{0xAA}, expected: 0xAA},
		{name: "两个相同字节", data: []byte{0xAA, 0xAA}, expected: 0x54}, // 0x154 截断
		{name: "多字节", data: []byte{0x10, 0x07, 0x00, 0x00, 0x00, 0x01}, expected: 0x18},
		{name: "全部0xFF", data: []byte{0xFF, 0xFF, 0xFF, 0xFF}, expected: 0xFC}, // 0x3FC
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CalculateChecksum(tt.data))
		})
	}
}

func TestCalculateChecksum_LongInput(t *testing.T) {
	// 累加器需容纳远超 255 的中间值
	data := make([]byte, 1000)
	for i := range data {
		data[i] = 0xFF
	}
	assert.Equal(t, byte((1000*0xFF)&0xFF), CalculateChecksum(data))
}

func TestAlgorithmCompute(t *testing.T) {
	tests := []struct {
		name     string
		alg      Algorithm
		data     []byte
		expected byte
	}{
		{"sum", AlgSum, []byte{0x01, 0x02, 0xFF}, 0x02},
		{"xor", AlgXOR, []byte{0x0F, 0xF0, 0x01}, 0xFE},
		{"crc8单字节", AlgCRC8, []byte{0x01}, 0x07},
		{"crc8标准校验值", AlgCRC8, []byte("123456789"), 0xF4},
		{"crc16低字节", AlgCRC16, []byte{0x01, 0x00}, 0x21},
		{"none", AlgNone, []byte{0x12, 0x34}, 0x00},
		{"空算法按sum处理", Algorithm(""), []byte{0x01, 0x02}, 0x03},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.alg.Compute(tt.data))
		})
	}
}

func TestParseAlgorithm(t *testing.T) {
	a, err := ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, AlgSum, a)

	a, err = ParseAlgorithm(" CRC8 ")
	require.NoError(t, err)
	assert.Equal(t, AlgCRC8, a)

	_, err = ParseAlgorithm("md5")
	assert.Error(t, err)
}
