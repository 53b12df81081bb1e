// Package registry 维护 schema 名称到编解码器的映射
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/taoyao-code/framelink/internal/protocol/frame"
)

var (
	ErrDuplicate = errors.New("schema already registered")
	ErrNotFound  = errors.New("schema not found")
)

// Registry 并发安全的 schema 注册表
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]*frame.Codec
}

func New() *Registry {
	return &Registry{codecs: make(map[string]*frame.Codec)}
}

// Register 注册编解码器，名称取自其 schema，重名报错
func (r *Registry) Register(c *frame.Codec) error {
	if c == nil {
		return errors.New("nil codec")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	name := c.Name()
	if _, ok := r.codecs[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.codecs[name] = c
	return nil
}

// MustRegister 注册失败时 panic
func (r *Registry) MustRegister(cs ...*frame.Codec) {
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
}

// Lookup 按名称查找
func (r *Registry) Lookup(name string) (*frame.Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[name]
	return c, ok
}

// Get 同 Lookup，未找到时返回 ErrNotFound
func (r *Registry) Get(name string) (*frame.Codec, error) {
	c, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return c, nil
}

// Names 返回已注册名称（升序）
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.codecs))
	for n := range r.codecs {
		names = append(names, n)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.codecs)
}
