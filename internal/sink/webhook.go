package sink

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// 请求签名头
const (
	HeaderAPIKey    = "X-Api-Key"
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
	HeaderNonce     = "X-Nonce"
)

// WebhookSink 以签名 HTTP POST 推送遥测
type WebhookSink struct {
	client   *http.Client
	endpoint string
	path     string
	apiKey   string
	secret   string
	retries  int
	backoff  []time.Duration
	now      func() time.Time
}

// NewWebhookSink endpoint 必须是绝对 URL
func NewWebhookSink(client *http.Client, endpoint, apiKey, secret string, retries int) (*WebhookSink, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("webhook url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("webhook url %q is not absolute", endpoint)
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if retries < 0 {
		retries = 0
	}
	return &WebhookSink{
		client:   client,
		endpoint: endpoint,
		path:     u.Path,
		apiKey:   apiKey,
		secret:   secret,
		retries:  retries,
		backoff:  []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 500 * time.Millisecond, time.Second, 2 * time.Second},
		now:      time.Now,
	}, nil
}

func (s *WebhookSink) Name() string { return "webhook" }

// SignHMAC HMAC-SHA256(secret, canonical) 的小写 hex
func SignHMAC(secret, canonical string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// Canonical 签名原文: METHOD\npath\ntimestamp\nnonce\nsha256(body)
func Canonical(method, path string, ts int64, nonce string, body []byte) string {
	h := sha256.Sum256(body)
	return fmt.Sprintf("%s\n%s\n%d\n%s\n%s", strings.ToUpper(method), path, ts, nonce, hex.EncodeToString(h[:]))
}

// Publish 2xx 视为成功；网络错误与 5xx 按退避重试，4xx 直接失败
func (s *WebhookSink) Publish(ctx context.Context, t Telemetry) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		code, err := s.post(ctx, body)
		switch {
		case err != nil:
			lastErr = err
		case code >= 200 && code < 300:
			return nil
		case code < 500:
			return fmt.Errorf("webhook rejected: http %d", code)
		default:
			lastErr = fmt.Errorf("webhook: http %d", code)
		}
		if attempt == s.retries {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Join(lastErr, ctx.Err())
		case <-time.After(s.backoff[min(attempt, len(s.backoff)-1)]):
		}
	}
	return lastErr
}

// 每次尝试重新签名，nonce 不复用
func (s *WebhookSink) post(ctx context.Context, body []byte) (int, error) {
	ts := s.now().Unix()
	nonce := uuid.NewString()
	sig := SignHMAC(s.secret, Canonical(http.MethodPost, s.path, ts, nonce, body))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderAPIKey, s.apiKey)
	req.Header.Set(HeaderSignature, sig)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderNonce, nonce)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}
