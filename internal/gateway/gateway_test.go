package gateway

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	cfgpkg "github.com/taoyao-code/framelink/internal/config"
	"github.com/taoyao-code/framelink/internal/metrics"
	"github.com/taoyao-code/framelink/internal/protocol/frame"
	"github.com/taoyao-code/framelink/internal/protocol/packets"
	"github.com/taoyao-code/framelink/internal/registry"
	"github.com/taoyao-code/framelink/internal/sink"
)

type captureSink struct {
	mu   sync.Mutex
	got  []sink.Telemetry
	gotC chan struct{}
}

func newCapture() *captureSink { return &captureSink{gotC: make(chan struct{}, 16)} }

func (c *captureSink) Name() string { return "capture" }

func (c *captureSink) Publish(_ context.Context, t sink.Telemetry) error {
	c.mu.Lock()
	c.got = append(c.got, t)
	c.mu.Unlock()
	c.gotC <- struct{}{}
	return nil
}

func (c *captureSink) wait(t *testing.T) sink.Telemetry {
	t.Helper()
	select {
	case <-c.gotC:
	case <-time.After(2 * time.Second):
		t.Fatal("等待遥测超时")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.got[len(c.got)-1]
}

type fixture struct {
	gw   *Gateway
	out  *captureSink
	appm *metrics.AppMetrics
	logs *observer.ObservedLogs
}

func newFixture(t *testing.T, channels ...cfgpkg.ChannelConfig) *fixture {
	t.Helper()
	reg := registry.New()
	reg.MustRegister(packets.Builtin()...)

	core, logs := observer.New(zap.DebugLevel)
	appm := metrics.NewAppMetrics(prometheus.NewRegistry())
	out := newCapture()
	gw := New(cfgpkg.TCPConfig{WriteTimeout: time.Second, MaxConsecutiveErrors: 2}, reg, out, appm, zap.New(core))
	for _, c := range channels {
		require.NoError(t, gw.AddChannel(c))
	}
	require.NoError(t, gw.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = gw.Shutdown(ctx)
	})
	return &fixture{gw: gw, out: out, appm: appm, logs: logs}
}

func (f *fixture) dial(t *testing.T, channel string) net.Conn {
	t.Helper()
	ch, err := f.gw.Channel(channel)
	require.NoError(t, err)
	c, err := net.Dial("tcp", ch.Server.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestGateway_DecodeAndPublish(t *testing.T) {
	f := newFixture(t, cfgpkg.ChannelConfig{Name: "aim", Addr: "127.0.0.1:0", Schema: "CyyPacket"})
	c := f.dial(t, "aim")

	_, err := c.Write(packets.Cyy.Encode(packets.CyyPacket{My: 1.5, Name: 42, Target: -3.25}))
	require.NoError(t, err)

	tel := f.out.wait(t)
	assert.Equal(t, "aim", tel.Channel)
	assert.Equal(t, "CyyPacket", tel.Schema)
	assert.Equal(t, map[string]any{"my": float32(1.5), "name": int32(42), "target": float32(-3.25)}, tel.Fields)
	assert.Equal(t, c.LocalAddr().String(), tel.Remote)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.appm.FrameDecodeTotal.WithLabelValues("CyyPacket", "ok")))
}

func TestGateway_RejectedFrame(t *testing.T) {
	f := newFixture(t, cfgpkg.ChannelConfig{Name: "dart", Addr: "127.0.0.1:0", Schema: "Dart_aim_Packet"})
	c := f.dial(t, "dart")

	bad := packets.DartAim.Encode(packets.DartAimPacket{ErrOfPix: 2})
	bad[len(bad)-2] ^= 0xFF // 破坏校验字节
	_, err := c.Write(bad)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return f.logs.FilterMessage("frame rejected").Len() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.appm.FrameDecodeTotal.WithLabelValues("Dart_aim_Packet", "checksum")))

	entries := f.logs.FilterMessage("frame rejected").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "checksum", fields["error_kind"])
	assert.Equal(t, "dart", fields["channel"])
	assert.Len(t, fields["hex"], 2*packets.DartAim.Codec().FrameSize())

	// 连续第二个坏帧后连接被断开
	_, err = c.Write(bad)
	require.NoError(t, err)
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = c.Read(make([]byte, 1))
	assert.Error(t, err)

	f.out.mu.Lock()
	defer f.out.mu.Unlock()
	assert.Empty(t, f.out.got)
}

func TestGateway_Send(t *testing.T) {
	f := newFixture(t, cfgpkg.ChannelConfig{Name: "weapon", Addr: "127.0.0.1:0", Schema: "WeaponPacket"})
	c := f.dial(t, "weapon")

	ch, err := f.gw.Channel("weapon")
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return ch.Server.ActiveConnections() == 1 }, time.Second, 10*time.Millisecond)

	var pkt packets.WeaponPacket
	pkt.SetAim("target-7")
	pkt.Fire = 1
	b, n, err := f.gw.Send("weapon", packets.Weapon.Payload(pkt))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, packets.Weapon.Encode(pkt), b)

	got := make([]byte, len(b))
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = io.ReadFull(c, got)
	require.NoError(t, err)
	decoded, err := packets.Weapon.Decode(got)
	require.NoError(t, err)
	assert.Equal(t, pkt, decoded)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.appm.FrameEncodeTotal.WithLabelValues("WeaponPacket")))

	_, _, err = f.gw.Send("missing", nil)
	assert.ErrorIs(t, err, ErrUnknownChannel)
	_, _, err = f.gw.Send("weapon", frame.Payload{int32(1)})
	assert.ErrorIs(t, err, frame.ErrPayloadMismatch)
}

func TestGateway_AddChannelErrors(t *testing.T) {
	reg := registry.New()
	reg.MustRegister(packets.Builtin()...)
	gw := New(cfgpkg.TCPConfig{}, reg, nil, nil, nil)

	err := gw.AddChannel(cfgpkg.ChannelConfig{Name: "x", Addr: "127.0.0.1:0", Schema: "Nope"})
	assert.ErrorIs(t, err, registry.ErrNotFound)

	require.NoError(t, gw.AddChannel(cfgpkg.ChannelConfig{Name: "x", Addr: "127.0.0.1:0", Schema: "CyyPacket"}))
	assert.Error(t, gw.AddChannel(cfgpkg.ChannelConfig{Name: "x", Addr: "127.0.0.1:0", Schema: "CyyPacket"}))
}

func TestGateway_StartFailureRollsBack(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	reg := registry.New()
	reg.MustRegister(packets.Builtin()...)
	gw := New(cfgpkg.TCPConfig{}, reg, nil, nil, nil)
	require.NoError(t, gw.AddChannel(cfgpkg.ChannelConfig{Name: "ok", Addr: "127.0.0.1:0", Schema: "CyyPacket"}))
	require.NoError(t, gw.AddChannel(cfgpkg.ChannelConfig{Name: "busy", Addr: ln.Addr().String(), Schema: "CyyPacket"}))

	assert.Error(t, gw.Start())
	ok, err := gw.Channel("ok")
	require.NoError(t, err)
	_, err = net.DialTimeout("tcp", ok.Server.Addr().String(), 200*time.Millisecond)
	assert.Error(t, err, "已启动的通道应被关闭")
}

func TestGateway_Stats(t *testing.T) {
	f := newFixture(t,
		cfgpkg.ChannelConfig{Name: "aim", Addr: "127.0.0.1:0", Schema: "CyyPacket"},
		cfgpkg.ChannelConfig{Name: "dart", Addr: "127.0.0.1:0", Schema: "Dart_aim_Packet"},
	)
	st := f.gw.Stats()
	require.Len(t, st.Channels, 2)
	assert.Equal(t, "aim", st.Channels[0].Channel)
	assert.Equal(t, "CyyPacket", st.Channels[0].Schema)
	assert.Equal(t, 15, st.Channels[0].FrameSize)
	assert.Equal(t, 19, st.Channels[1].FrameSize)
	assert.Equal(t, 1024, st.Connections.MaxConnections)
	assert.Nil(t, st.AcceptRate)
}
