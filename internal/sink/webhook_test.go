package sink

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockWebhook 校验签名并记录收到的事件
type mockWebhook struct {
	*httptest.Server
	secret string
	status atomic.Int32 // 前 fails 次请求返回的状态码
	fails  atomic.Int32

	mu       sync.Mutex
	received []Telemetry
	nonces   []string
	badSig   int
}

func newMockWebhook(t *testing.T, secret string) *mockWebhook {
	m := &mockWebhook{secret: secret}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ts, _ := strconv.ParseInt(r.Header.Get(HeaderTimestamp), 10, 64)
		nonce := r.Header.Get(HeaderNonce)
		want := SignHMAC(m.secret, Canonical(r.Method, r.URL.Path, ts, nonce, body))

		m.mu.Lock()
		defer m.mu.Unlock()
		m.nonces = append(m.nonces, nonce)
		if want != r.Header.Get(HeaderSignature) || r.Header.Get(HeaderAPIKey) != "k1" {
			m.badSig++
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if m.fails.Load() > 0 {
			m.fails.Add(-1)
			w.WriteHeader(int(m.status.Load()))
			return
		}
		var tel Telemetry
		if err := json.Unmarshal(body, &tel); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		m.received = append(m.received, tel)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(m.Close)
	return m
}

func fastWebhook(t *testing.T, endpoint, secret string, retries int) *WebhookSink {
	s, err := NewWebhookSink(nil, endpoint, "k1", secret, retries)
	require.NoError(t, err)
	s.backoff = []time.Duration{time.Millisecond}
	return s
}

func TestSignHMAC(t *testing.T) {
	// RFC 4231 test case 2
	assert.Equal(t,
		"5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843",
		SignHMAC("Jefe", "what do ya want for nothing?"))

	c := Canonical("post", "/hook", 1700000000, "n1", []byte("{}"))
	assert.Equal(t, "POST\n/hook\n1700000000\nn1\n44136fa355b3678a1146ad16f7e8649e94fb4fc21fe77e8310c060f61caaff8a", c)
}

func TestWebhookSink_Publish(t *testing.T) {
	m := newMockWebhook(t, "s3cret")
	s := fastWebhook(t, m.URL+"/telemetry", "s3cret", 2)
	assert.Equal(t, "webhook", s.Name())

	tel := sample()
	require.NoError(t, s.Publish(context.Background(), tel))

	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.received, 1)
	assert.Equal(t, tel.ID, m.received[0].ID)
	assert.Equal(t, "aim", m.received[0].Channel)
	assert.Zero(t, m.badSig)
}

func TestWebhookSink_Retry(t *testing.T) {
	m := newMockWebhook(t, "s3cret")
	m.status.Store(http.StatusServiceUnavailable)
	m.fails.Store(2)
	s := fastWebhook(t, m.URL, "s3cret", 2)

	require.NoError(t, s.Publish(context.Background(), sample()))

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Len(t, m.received, 1)
	require.Len(t, m.nonces, 3)
	assert.NotEqual(t, m.nonces[0], m.nonces[1], "每次重试重新生成 nonce")
}

func TestWebhookSink_Errors(t *testing.T) {
	t.Run("5xx重试耗尽", func(t *testing.T) {
		m := newMockWebhook(t, "s3cret")
		m.status.Store(http.StatusBadGateway)
		m.fails.Store(10)
		s := fastWebhook(t, m.URL, "s3cret", 1)
		err := s.Publish(context.Background(), sample())
		assert.ErrorContains(t, err, "http 502")
		assert.Equal(t, int32(8), m.fails.Load())
	})

	t.Run("4xx不重试", func(t *testing.T) {
		m := newMockWebhook(t, "other")
		s := fastWebhook(t, m.URL, "s3cret", 3)
		err := s.Publish(context.Background(), sample())
		assert.ErrorContains(t, err, "http 401")
		m.mu.Lock()
		defer m.mu.Unlock()
		assert.Equal(t, 1, m.badSig)
	})

	t.Run("context取消", func(t *testing.T) {
		m := newMockWebhook(t, "s3cret")
		m.status.Store(http.StatusInternalServerError)
		m.fails.Store(10)
		s := fastWebhook(t, m.URL, "s3cret", 5)
		s.backoff = []time.Duration{time.Hour}
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err := s.Publish(ctx, sample())
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("非法地址", func(t *testing.T) {
		_, err := NewWebhookSink(nil, "/relative", "", "", 0)
		assert.Error(t, err)
		_, err = NewWebhookSink(nil, "://bad", "", "", 0)
		assert.Error(t, err)
	})
}
