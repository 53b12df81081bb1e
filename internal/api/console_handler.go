package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/framelink/internal/gateway"
	"github.com/taoyao-code/framelink/internal/metrics"
	"github.com/taoyao-code/framelink/internal/protocol/frame"
	"github.com/taoyao-code/framelink/internal/registry"
)

// ChannelController 下行发送与通道状态，由 gateway.Gateway 实现
type ChannelController interface {
	Send(name string, p frame.Payload) ([]byte, int, error)
	Stats() gateway.Stats
}

// ConsoleHandler 协议控制台：查看 schema、手工编码/解码、向通道下发
type ConsoleHandler struct {
	registry *registry.Registry
	channels ChannelController
	appm     *metrics.AppMetrics
	logger   *zap.Logger
}

// NewConsoleHandler channels 可为 nil（仅编解码，无通道）
func NewConsoleHandler(reg *registry.Registry, channels ChannelController, appm *metrics.AppMetrics, logger *zap.Logger) *ConsoleHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleHandler{registry: reg, channels: channels, appm: appm, logger: logger}
}

// SchemaSummary schema 概要
type SchemaSummary struct {
	Name        string `json:"name"`
	PayloadSize int    `json:"payload_size"`
	FrameSize   int    `json:"frame_size"`
	Header      string `json:"header"`
	Footer      string `json:"footer"`
	Checksum    string `json:"checksum"`
	ByteOrder   string `json:"byte_order"`
}

// FieldLayout 字段布局（偏移相对载荷起点）
type FieldLayout struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Width  int    `json:"width"`
	Offset int    `json:"offset"`
}

// SchemaDetail schema 详情
type SchemaDetail struct {
	SchemaSummary
	Fields []FieldLayout `json:"fields"`
}

type valuesRequest struct {
	Values map[string]any `json:"values"`
}

type decodeRequest struct {
	Hex string `json:"hex"`
}

// EncodeResponse 编码结果
type EncodeResponse struct {
	Hex       string `json:"hex"`
	Size      int    `json:"size"`
	Delivered *int   `json:"delivered,omitempty"`
}

func summarize(c *frame.Codec) SchemaSummary {
	return SchemaSummary{
		Name:        c.Name(),
		PayloadSize: c.Schema().PayloadSize(),
		FrameSize:   c.FrameSize(),
		Header:      fmt.Sprintf("0x%02X", c.Header()),
		Footer:      fmt.Sprintf("0x%02X", c.Footer()),
		Checksum:    string(c.Checksum()),
		ByteOrder:   fmt.Sprint(c.ByteOrder()),
	}
}

// ListSchemas GET /api/v1/schemas
func (h *ConsoleHandler) ListSchemas(c *gin.Context) {
	names := h.registry.Names()
	out := make([]SchemaSummary, 0, len(names))
	for _, n := range names {
		if codec, ok := h.registry.Lookup(n); ok {
			out = append(out, summarize(codec))
		}
	}
	c.JSON(http.StatusOK, gin.H{"schemas": out})
}

// GetSchema GET /api/v1/schemas/:name
func (h *ConsoleHandler) GetSchema(c *gin.Context) {
	codec, ok := h.lookup(c)
	if !ok {
		return
	}
	fields := codec.Schema().Fields()
	detail := SchemaDetail{SchemaSummary: summarize(codec), Fields: make([]FieldLayout, 0, len(fields))}
	for _, f := range fields {
		detail.Fields = append(detail.Fields, FieldLayout{Name: f.Name, Kind: f.Kind.String(), Width: f.Width, Offset: f.Offset})
	}
	c.JSON(http.StatusOK, detail)
}

// Encode POST /api/v1/schemas/:name/encode
func (h *ConsoleHandler) Encode(c *gin.Context) {
	codec, ok := h.lookup(c)
	if !ok {
		return
	}
	p, ok := h.bindPayload(c, codec)
	if !ok {
		return
	}
	b, err := codec.Encode(p)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.appm.ObserveEncode(codec.Name())
	c.JSON(http.StatusOK, EncodeResponse{Hex: FormatHex(b), Size: len(b)})
}

// Decode POST /api/v1/schemas/:name/decode
func (h *ConsoleHandler) Decode(c *gin.Context) {
	codec, ok := h.lookup(c)
	if !ok {
		return
	}
	var req decodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	raw, err := ParseHex(req.Hex)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := codec.Decode(raw)
	h.appm.ObserveDecode(codec.Name(), frame.ErrorKind(err))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": err.Error(),
			"kind":  frame.ErrorKind(err),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"schema": codec.Name(),
		"fields": codec.Schema().Named(p),
	})
}

// ListChannels GET /api/v1/channels
func (h *ConsoleHandler) ListChannels(c *gin.Context) {
	if h.channels == nil {
		c.JSON(http.StatusOK, gateway.Stats{Channels: []gateway.ChannelInfo{}})
		return
	}
	c.JSON(http.StatusOK, h.channels.Stats())
}

// Send POST /api/v1/channels/:name/send
func (h *ConsoleHandler) Send(c *gin.Context) {
	if h.channels == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": gateway.ErrUnknownChannel.Error()})
		return
	}
	name := c.Param("name")
	var schema *frame.Codec
	for _, ch := range h.channels.Stats().Channels {
		if ch.Channel == name {
			schema, _ = h.registry.Lookup(ch.Schema)
			break
		}
	}
	if schema == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("%s: %s", gateway.ErrUnknownChannel, name)})
		return
	}
	p, ok := h.bindPayload(c, schema)
	if !ok {
		return
	}

	b, n, err := h.channels.Send(name, p)
	switch {
	case errors.Is(err, gateway.ErrUnknownChannel):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.logger.Info("console frame sent",
		zap.String("channel", name),
		zap.String("request_id", c.GetString("request_id")),
		zap.Int("delivered", n),
	)
	c.JSON(http.StatusOK, EncodeResponse{Hex: FormatHex(b), Size: len(b), Delivered: &n})
}

func (h *ConsoleHandler) lookup(c *gin.Context) (*frame.Codec, bool) {
	codec, err := h.registry.Get(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return nil, false
	}
	return codec, true
}

// bindPayload 解析 {values:{...}}，数字保留为 json.Number 以免精度丢失
func (h *ConsoleHandler) bindPayload(c *gin.Context, codec *frame.Codec) (frame.Payload, bool) {
	var req valuesRequest
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return nil, false
	}
	p, err := codec.Schema().Coerce(req.Values)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return p, true
}
