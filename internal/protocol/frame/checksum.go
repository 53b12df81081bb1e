package frame

import (
	"fmt"
	"strings"
)

// CalculateChecksum 计算载荷累加校验和
// 对所有字节做无符号累加，累加器为 uint32，最后截断为低 8 位
// 只用于发现传输损坏，不能抵御有意篡改
func CalculateChecksum(data []byte) byte {
	var sum uint32
	for _, b := range data {
		sum += uint32(b)
	}
	return byte(sum & 0xFF)
}

// Algorithm 校验算法，对应定义文件中的 verify 字段
type Algorithm string

const (
	AlgSum   Algorithm = "sum" // 默认
	AlgXOR   Algorithm = "xor"
	AlgCRC8  Algorithm = "crc8"  // 多项式 0x07，初值 0
	AlgCRC16 Algorithm = "crc16" // CCITT 多项式 0x1021，初值 0，取低 8 位
	AlgNone  Algorithm = "none"  // 校验字节恒为 0
)

// ParseAlgorithm 解析算法名称，空字符串返回默认的 sum
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return AlgSum, nil
	case AlgSum, AlgXOR, AlgCRC8, AlgCRC16, AlgNone:
		return a, nil
	default:
		return "", fmt.Errorf("unknown checksum algorithm %q", s)
	}
}

// Compute 计算 data 的校验字节
func (a Algorithm) Compute(data []byte) byte {
	switch a {
	case AlgXOR:
		var x byte
		for _, b := range data {
			x ^= b
		}
		return x
	case AlgCRC8:
		return crc8(data)
	case AlgCRC16:
		return byte(crc16(data) & 0xFF)
	case AlgNone:
		return 0
	default:
		return CalculateChecksum(data)
	}
}

func crc8(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x07
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
