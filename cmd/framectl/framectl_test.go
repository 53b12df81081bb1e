package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/framelink/internal/api"
	"github.com/taoyao-code/framelink/internal/protocol/packets"
)

func executeCommand(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root := newRootCmd()
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

const cyyHex = "AA 00 00 C0 3F 2A 00 00 00 00 00 50 C0 39 55"

func TestSchemasCommand(t *testing.T) {
	out, err := executeCommand("schemas")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "CyyPacket")
	assert.Contains(t, out, "Dart_aim_Packet")
	assert.Contains(t, out, "WeaponPacket")

	out, err = executeCommand("schemas", "-o", "json")
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, 15.0, rows[0]["frame_size"])
}

func TestSchemasCommand_Defs(t *testing.T) {
	dir := t.TempDir()
	def := `{"structName":"SensorPacket","fields":[{"name":"id","type":"uint8"}],"verify":"xor"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sensor.json"), []byte(def), 0o644))

	out, err := executeCommand("schemas", "--defs", dir, "--no-builtin", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "name: SensorPacket")
	assert.Contains(t, out, "checksum: xor")
	assert.NotContains(t, out, "CyyPacket")
}

func TestDescribeCommand(t *testing.T) {
	out, err := executeCommand("describe", "WeaponPacket")
	require.NoError(t, err)
	assert.Contains(t, out, "WeaponPacket{aim [16]byte; fire int32}")
	assert.Contains(t, out, "OFFSET")

	_, err = executeCommand("describe", "Nope")
	assert.Error(t, err)
}

func TestEncodeCommand(t *testing.T) {
	out, err := executeCommand("encode", "CyyPacket", "my=1.5", "name=42", "target=-3.25")
	require.NoError(t, err)
	assert.Contains(t, out, "SIZE:")
	assert.Contains(t, out, "15")

	out, err = executeCommand("encode", "CyyPacket", "my=1.5", "name=42", "target=-3.25", "-o", "json")
	require.NoError(t, err)
	var res encodeResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, cyyHex, res.Hex)

	tests := []struct {
		name string
		args []string
	}{
		{"缺少等号", []string{"encode", "CyyPacket", "my"}},
		{"重复字段", []string{"encode", "CyyPacket", "my=1", "my=2", "name=1", "target=1"}},
		{"缺少字段", []string{"encode", "CyyPacket", "my=1"}},
		{"非法数值", []string{"encode", "CyyPacket", "my=x", "name=1", "target=1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestDecodeCommand(t *testing.T) {
	out, err := executeCommand("decode", "CyyPacket", cyyHex)
	require.NoError(t, err)
	assert.Contains(t, out, "my")
	assert.Contains(t, out, "1.5")
	assert.Contains(t, out, "-3.25")

	// 分散参数与 0x 前缀
	_, err = executeCommand("decode", "CyyPacket", "0xAA", "0000C03F", "2A000000", "000050C0", "39,55")
	require.NoError(t, err)

	_, err = executeCommand("decode", "CyyPacket", "AA 00 00 C0 3F 2A 00 00 00 00 00 50 C0 00 55")
	assert.ErrorContains(t, err, "checksum")
}

func TestSendCommand(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	got := make(chan []byte, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		buf := make([]byte, 2*packets.DartAim.Codec().FrameSize())
		_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, _ := io.ReadFull(c, buf)
		got <- buf[:n]
	}()

	out, err := executeCommand("send", "Dart_aim_Packet", "--addr", ln.Addr().String(), "--count", "2",
		"err_of_pix=2", "keep_1=0", "keep_2=0", "keep_3=0")
	require.NoError(t, err)
	assert.Contains(t, out, "sent 2 x 19 bytes")

	one := packets.DartAim.Encode(packets.DartAimPacket{ErrOfPix: 2})
	select {
	case b := <-got:
		assert.Equal(t, append(append([]byte{}, one...), one...), b)
	case <-time.After(3 * time.Second):
		t.Fatal("未收到数据")
	}

	_, err = executeCommand("send", "Dart_aim_Packet", "err_of_pix=2")
	assert.ErrorContains(t, err, "--addr")
}

func TestFormatHexMatchesCodec(t *testing.T) {
	b := packets.Cyy.Encode(packets.CyyPacket{My: 1.5, Name: 42, Target: -3.25})
	assert.Equal(t, cyyHex, api.FormatHex(b))
}

func TestTableFormatter(t *testing.T) {
	type row struct {
		Name string `json:"name"`
		Size int    `json:"frame_size"`
	}
	f := newFormatter("table")

	out := f.Format([]row{{"CyyPacket", 15}, {"WeaponPacket", 23}})
	lines := bytes.Split(bytes.TrimSpace([]byte(out)), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), "FRAME_SIZE")
	assert.Contains(t, string(lines[2]), "WeaponPacket")

	assert.Equal(t, "No entries.\n", f.Format([]row{}))
	assert.Contains(t, f.Format(row{"CyyPacket", 15}), "NAME:")
	assert.Equal(t, "42\n", f.Format(42))
}
