package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 帧收发与通道指标
type AppMetrics struct {
	FrameEncodeTotal *prometheus.CounterVec // labels: schema
	FrameDecodeTotal *prometheus.CounterVec // labels: schema, result=ok|length|header|footer|checksum|other
	TCPAccepted      prometheus.Counter
	TCPBytesReceived prometheus.Counter
	TCPRejected      *prometheus.CounterVec // labels: reason=limit|rate
	TCPActive        prometheus.Gauge       // 当前连接数
	SinkPublishTotal *prometheus.CounterVec // labels: sink, result=ok|error
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		FrameEncodeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frame_encode_total",
			Help: "Frames encoded by schema.",
		}, []string{"schema"}),
		FrameDecodeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frame_decode_total",
			Help: "Frame decode attempts by schema and result.",
		}, []string{"schema", "result"}),
		TCPAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcp_accept_total",
			Help: "Total accepted TCP connections.",
		}),
		TCPBytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcp_bytes_received_total",
			Help: "Total bytes received over TCP.",
		}),
		TCPRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tcp_rejected_total",
			Help: "TCP connections rejected before serving.",
		}, []string{"reason"}),
		TCPActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tcp_active_connections",
			Help: "Current number of open TCP connections.",
		}),
		SinkPublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sink_publish_total",
			Help: "Telemetry publish attempts by sink and result.",
		}, []string{"sink", "result"}),
	}
	reg.MustRegister(m.FrameEncodeTotal, m.FrameDecodeTotal, m.TCPAccepted, m.TCPBytesReceived, m.TCPRejected, m.TCPActive, m.SinkPublishTotal)
	return m
}

// ObserveDecode 记录一次解码结果，result 取值同 frame.ErrorKind
func (m *AppMetrics) ObserveDecode(schema, result string) {
	if m == nil {
		return
	}
	m.FrameDecodeTotal.WithLabelValues(schema, result).Inc()
}

// ObserveEncode 记录一次成功编码
func (m *AppMetrics) ObserveEncode(schema string) {
	if m == nil {
		return
	}
	m.FrameEncodeTotal.WithLabelValues(schema).Inc()
}

// ObservePublish 记录 sink 发布结果
func (m *AppMetrics) ObservePublish(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SinkPublishTotal.WithLabelValues(sink, result).Inc()
}
