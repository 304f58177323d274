package repair

import (
	"context"
	"sync"
	"time"

	"resume-forge/pkg/log"
)

// Registry 为每个项目持有一个 Controller，并负责编辑后的防抖编译。
type Registry struct {
	ctx       context.Context
	deps      Deps
	opts      Options
	debouncer *Debouncer

	mu          sync.Mutex
	controllers map[string]*registryEntry
}

type registryEntry struct {
	controller *Controller
	lastUsed   time.Time
}

// NewRegistry 创建一个 Registry。ctx 用于防抖触发的后台编译，取消后不再发起新的编译。
func NewRegistry(ctx context.Context, deps Deps, opts Options, debounce time.Duration) *Registry {
	return &Registry{
		ctx:         ctx,
		deps:        deps,
		opts:        opts,
		debouncer:   NewDebouncer(debounce),
		controllers: make(map[string]*registryEntry),
	}
}

// Get 返回项目的控制器，不存在时创建。
func (r *Registry) Get(projectID string) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.controllers[projectID]
	if !ok {
		e = &registryEntry{controller: NewController(projectID, r.deps, r.opts)}
		r.controllers[projectID] = e
	}
	e.lastUsed = time.Now()
	return e.controller
}

// NotifyEdit 在项目被编辑后调用，防抖结束后自动编译。
func (r *Registry) NotifyEdit(projectID string) {
	r.debouncer.Trigger(projectID, func() {
		if r.ctx.Err() != nil {
			return
		}
		if err := r.Get(projectID).Compile(r.ctx); err != nil {
			log.Warnw("[RepairLoop] 编辑后的自动编译失败", "project_id", projectID, "error", err)
		}
	})
}

// Len 返回当前缓存的控制器数量。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.controllers)
}

// Sweep 移除超过 ttl 未使用的空闲控制器。失败中的、正在编译的、有订阅者的
// 或者还有待执行防抖编译的控制器会保留。
func (r *Registry) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, e := range r.controllers {
		if e.lastUsed.After(cutoff) || r.debouncer.IsPending(id) || !e.controller.evictable() {
			continue
		}
		delete(r.controllers, id)
		removed++
	}
	if removed > 0 {
		log.Infof("[RepairLoop] 清理了 %d 个空闲控制器", removed)
	}
	return removed
}

// StartJanitor 定期清理空闲控制器，ctx 取消后退出。
func (r *Registry) StartJanitor(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				r.Sweep(ttl)
			}
		}
	}()
}

// Close 取消所有等待中的防抖编译。
func (r *Registry) Close() {
	r.debouncer.Stop()
}
