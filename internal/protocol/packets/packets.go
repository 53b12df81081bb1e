// Package packets 内置的遥测包定义
//
// 每种包只声明字段，帧头、校验与帧尾统一由 frame.Codec 处理，
// 编码与解码两个方向都可用。
package packets

import (
	"github.com/taoyao-code/framelink/internal/protocol/frame"
)

// CyyPacket 瞄准误差上报
type CyyPacket struct {
	My     float32 `frame:"my"`
	Name   int32   `frame:"name"`
	Target float32 `frame:"target"`
}

// DartAimPacket 飞镖像素误差，keep_* 为保留位
type DartAimPacket struct {
	ErrOfPix float32 `frame:"err_of_pix"`
	Keep1    float32 `frame:"keep_1"`
	Keep2    float32 `frame:"keep_2"`
	Keep3    float32 `frame:"keep_3"`
}

// WeaponPacket 武器指令：16 字节瞄准标识 + 开火指令
type WeaponPacket struct {
	Aim  [16]byte `frame:"aim"`
	Fire int32    `frame:"fire"`
}

// 编解码器，可并发使用
var (
	Cyy     = frame.MustTyped[CyyPacket]("CyyPacket")
	DartAim = frame.MustTyped[DartAimPacket]("Dart_aim_Packet")
	Weapon  = frame.MustTyped[WeaponPacket]("WeaponPacket")
)

// Builtin 返回全部内置包的通用编解码器
func Builtin() []*frame.Codec {
	return []*frame.Codec{Cyy.Codec(), DartAim.Codec(), Weapon.Codec()}
}

// SetAim 写入瞄准标识，超出 16 字节的部分被截断
func (p *WeaponPacket) SetAim(s string) {
	p.Aim = [16]byte{}
	copy(p.Aim[:], s)
}
