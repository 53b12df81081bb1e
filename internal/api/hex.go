package api

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var errEmptyHex = errors.New("empty hex input")

// ParseHex 解析人工输入的十六进制串，容忍空格、逗号与 0x 前缀，
// 例如 "AA 00 0x1F,55" 或 "aa001f55"
func ParseHex(s string) ([]byte, error) {
	s = strings.NewReplacer(",", " ", "\t", " ", "\n", " ", "\r", " ").Replace(s)
	var sb strings.Builder
	for _, tok := range strings.Fields(s) {
		tok = strings.TrimPrefix(strings.TrimPrefix(tok, "0x"), "0X")
		sb.WriteString(tok)
	}
	if sb.Len() == 0 {
		return nil, errEmptyHex
	}
	b, err := hex.DecodeString(sb.String())
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return b, nil
}

// FormatHex 以空格分隔的大写十六进制输出
func FormatHex(b []byte) string {
	var sb strings.Builder
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", v)
	}
	return sb.String()
}
