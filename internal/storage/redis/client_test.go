package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	cfgpkg "github.com/taoyao-code/framelink/internal/config"
)

func TestOptions(t *testing.T) {
	opt := Options(cfgpkg.RedisConfig{
		Addr:        "10.0.0.1:6380",
		DB:          2,
		PoolSize:    4,
		DialTimeout: time.Second,
	})
	assert.Equal(t, "10.0.0.1:6380", opt.Addr)
	assert.Equal(t, 2, opt.DB)
	assert.Equal(t, 4, opt.PoolSize)
	assert.Equal(t, time.Second, opt.DialTimeout)
}

func TestNewClient_Disabled(t *testing.T) {
	c, err := NewClient(context.Background(), cfgpkg.RedisConfig{Enabled: false})
	assert.Nil(t, c)
	assert.Error(t, err)
}

func TestNewClient_Unreachable(t *testing.T) {
	c, err := NewClient(context.Background(), cfgpkg.RedisConfig{
		Enabled:     true,
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
	})
	assert.Nil(t, c)
	assert.Error(t, err)
}
