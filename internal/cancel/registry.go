// Package cancel 提供协作式取消：进程内的 id → 取消信号注册表，
// 加上以任务状态为准的 DB 兜底，保证跨进程的取消请求最终可见。
package cancel

import (
	"context"
	"errors"
	"sync"
)

// ErrAlreadyRegistered 同一 id 已在执行中，不允许重复注册
var ErrAlreadyRegistered = errors.New("cancel: id already registered")

// Token 一次执行的取消信号。用关闭 channel 的方式广播，
// 任意数量的等待方都能同时观察到；Cancel 可重复调用。
type Token struct {
	once sync.Once
	ch   chan struct{}
}

func newToken() *Token {
	return &Token{ch: make(chan struct{})}
}

// Cancel 置位取消意图（幂等）
func (t *Token) Cancel() {
	t.once.Do(func() { close(t.ch) })
}

// Cancelled 非阻塞查询
func (t *Token) Cancelled() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}

// Done 供 select 等待
func (t *Token) Done() <-chan struct{} {
	return t.ch
}

// Registry 进程内的 id → Token 注册表。注册表只承载布尔意图，不带业务数据。
type Registry struct {
	mu     sync.Mutex
	tokens map[string]*Token
}

func NewRegistry() *Registry {
	return &Registry{tokens: map[string]*Token{}}
}

// Register 在执行开始时调用一次，存入全新的未置位信号。
// id 已存在时返回 ErrAlreadyRegistered（同一任务不允许两个执行线程）。
func (r *Registry) Register(id string) (*Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[id]; ok {
		return nil, ErrAlreadyRegistered
	}
	t := newToken()
	r.tokens[id] = t
	return t, nil
}

// Get 仅查本地
func (r *Registry) Get(id string) (*Token, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	return t, ok
}

// Cancel 置位本地信号；id 不在本地时返回 false，调用方走 DB 兜底
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	t, ok := r.tokens[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	t.Cancel()
	return true
}

// Unregister 无条件移除。必须放在执行的 defer 里，保证 id 不会泄漏到执行之外。
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, id)
}

// StatusFallback DB 兜底：查任务是否已被标记为 Cancelled。
// 由仓储侧实现（一次 DB 读），让别的进程接受的取消请求最终被执行方观察到。
type StatusFallback func(ctx context.Context, id string) bool

// Checker 把本地信号和 DB 兜底合成一次检查。
// 本地命中时零开销；本地未置位时付出一次 DB 读的代价。
type Checker struct {
	reg      *Registry
	fallback StatusFallback
}

func NewChecker(reg *Registry, fallback StatusFallback) *Checker {
	return &Checker{reg: reg, fallback: fallback}
}

// Cancelled 在检查点调用：先看本地 Token，再走 DB 兜底
func (c *Checker) Cancelled(ctx context.Context, id string) bool {
	if t, ok := c.reg.Get(id); ok && t.Cancelled() {
		return true
	}
	if c.fallback != nil {
		return c.fallback(ctx, id)
	}
	return false
}
