package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/framelink/internal/gateway"
	"github.com/taoyao-code/framelink/internal/protocol/frame"
	"github.com/taoyao-code/framelink/internal/protocol/packets"
	"github.com/taoyao-code/framelink/internal/registry"
	"github.com/taoyao-code/framelink/internal/tcpserver"
)

type fakeChannels struct {
	sent []frame.Payload
	err  error
}

func (f *fakeChannels) Send(name string, p frame.Payload) ([]byte, int, error) {
	if name != "weapon" {
		return nil, 0, gateway.ErrUnknownChannel
	}
	if f.err != nil {
		return nil, 0, f.err
	}
	f.sent = append(f.sent, p)
	b, err := packets.Weapon.Codec().Encode(p)
	return b, 1, err
}

func (f *fakeChannels) Stats() gateway.Stats {
	return gateway.Stats{Channels: []gateway.ChannelInfo{{
		Schema:       "WeaponPacket",
		ChannelStats: tcpserver.ChannelStats{Channel: "weapon", Addr: "127.0.0.1:7003", FrameSize: 23, ActiveConnections: 2},
	}}}
}

func newConsole(t *testing.T, ch ChannelController, keys ...string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := registry.New()
	reg.MustRegister(packets.Builtin()...)
	r := gin.New()
	ConsoleRoutes(NewConsoleHandler(reg, ch, nil, zap.NewNop()), keys, zap.NewNop())(r)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestConsole_Schemas(t *testing.T) {
	r := newConsole(t, nil)

	rr := do(r, http.MethodGet, "/api/v1/schemas", "")
	require.Equal(t, http.StatusOK, rr.Code)
	list := decodeJSON(t, rr)["schemas"].([]any)
	require.Len(t, list, 3)
	first := list[0].(map[string]any)
	assert.Equal(t, "CyyPacket", first["name"])
	assert.Equal(t, 15.0, first["frame_size"])
	assert.Equal(t, "0xAA", first["header"])
	assert.Equal(t, "sum", first["checksum"])

	rr = do(r, http.MethodGet, "/api/v1/schemas/WeaponPacket", "")
	require.Equal(t, http.StatusOK, rr.Code)
	detail := decodeJSON(t, rr)
	fields := detail["fields"].([]any)
	require.Len(t, fields, 2)
	assert.Equal(t, map[string]any{"name": "aim", "kind": "bytes", "width": 16.0, "offset": 0.0}, fields[0])
	assert.Equal(t, 16.0, fields[1].(map[string]any)["offset"])

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/schemas/Nope", "").Code)
}

func TestConsole_Encode(t *testing.T) {
	r := newConsole(t, nil)

	rr := do(r, http.MethodPost, "/api/v1/schemas/CyyPacket/encode",
		`{"values":{"my":1.5,"name":42,"target":-3.25}}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	out := decodeJSON(t, rr)
	want := packets.Cyy.Encode(packets.CyyPacket{My: 1.5, Name: 42, Target: -3.25})
	assert.Equal(t, FormatHex(want), out["hex"])
	assert.Equal(t, 15.0, out["size"])
	assert.NotContains(t, out, "delivered")

	tests := []struct {
		name string
		body string
	}{
		{"缺少字段", `{"values":{"my":1.5}}`},
		{"未知字段", `{"values":{"my":1,"name":2,"target":3,"x":4}}`},
		{"整数越界", `{"values":{"my":1,"name":4294967296,"target":3}}`},
		{"非法JSON", `{"values":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(r, http.MethodPost, "/api/v1/schemas/CyyPacket/encode", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestConsole_Decode(t *testing.T) {
	r := newConsole(t, nil)

	var pkt packets.WeaponPacket
	pkt.SetAim("alpha")
	pkt.Fire = 3
	frameHex := FormatHex(packets.Weapon.Encode(pkt))

	rr := do(r, http.MethodPost, "/api/v1/schemas/WeaponPacket/decode", `{"hex":"`+frameHex+`"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	out := decodeJSON(t, rr)
	assert.Equal(t, map[string]any{"aim": "alpha", "fire": 3.0}, out["fields"])

	t.Run("校验失败返回422", func(t *testing.T) {
		bad := packets.Weapon.Encode(pkt)
		bad[len(bad)-2]++
		rr := do(r, http.MethodPost, "/api/v1/schemas/WeaponPacket/decode", `{"hex":"`+FormatHex(bad)+`"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		out := decodeJSON(t, rr)
		assert.Equal(t, "checksum", out["kind"])
		assert.NotEmpty(t, out["error"])
	})

	t.Run("长度错误返回422", func(t *testing.T) {
		rr := do(r, http.MethodPost, "/api/v1/schemas/WeaponPacket/decode", `{"hex":"AA 55"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		assert.Equal(t, "length", decodeJSON(t, rr)["kind"])
	})

	t.Run("非法十六进制", func(t *testing.T) {
		rr := do(r, http.MethodPost, "/api/v1/schemas/WeaponPacket/decode", `{"hex":"zz"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestConsole_Channels(t *testing.T) {
	ch := &fakeChannels{}
	r := newConsole(t, ch)

	rr := do(r, http.MethodGet, "/api/v1/channels", "")
	require.Equal(t, http.StatusOK, rr.Code)
	chans := decodeJSON(t, rr)["channels"].([]any)
	require.Len(t, chans, 1)
	assert.Equal(t, "weapon", chans[0].(map[string]any)["channel"])
	assert.Equal(t, "WeaponPacket", chans[0].(map[string]any)["schema"])

	rr = do(r, http.MethodPost, "/api/v1/channels/weapon/send", `{"values":{"aim":"t1","fire":1}}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	out := decodeJSON(t, rr)
	assert.Equal(t, 23.0, out["size"])
	assert.Equal(t, 1.0, out["delivered"])
	require.Len(t, ch.sent, 1)
	assert.Equal(t, int32(1), ch.sent[0][1])

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/api/v1/channels/other/send", `{"values":{}}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/v1/channels/weapon/send", `{"values":{"fire":1}}`).Code)

	ch.err = errors.New("boom")
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/v1/channels/weapon/send", `{"values":{"aim":"t1","fire":1}}`).Code)
}

func TestConsole_NoChannels(t *testing.T) {
	r := newConsole(t, nil)
	rr := do(r, http.MethodGet, "/api/v1/channels", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decodeJSON(t, rr)["channels"])
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/api/v1/channels/weapon/send", `{"values":{}}`).Code)
}

func TestConsole_Auth(t *testing.T) {
	r := newConsole(t, nil, "sk_console_key")
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/v1/schemas", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/schemas", nil)
	req.Header.Set("X-API-Key", "sk_console_key")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}
