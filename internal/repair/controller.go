// Package repair 实现了项目的编译-修复循环。
package repair

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"resume-forge/internal/model"
	"resume-forge/pkg/compiler"
	"resume-forge/pkg/log"
	"resume-forge/pkg/storage"
)

// ErrNotFailed 表示只有在编译失败后才能手动修复。
var ErrNotFailed = errors.New("project is not in failed state")

// State 是编译循环的状态。
type State string

const (
	StateIdle        State = "idle"
	StateCompiling   State = "compiling"
	StateSuccess     State = "success"
	StateFailed      State = "failed"
	StateRepairing   State = "repairing"
	StateRecompiling State = "recompiling"
	StateGaveUp      State = "gave_up"
)

// Event 在每次状态变化时发给订阅者。
type Event struct {
	ProjectID  string    `json:"projectId"`
	State      State     `json:"state"`
	Attempt    int       `json:"attempt"`
	RetryCount int       `json:"retryCount"`
	Diagnostic string    `json:"diagnostic,omitempty"`
	At         time.Time `json:"at"`
}

// Snapshot 是控制器当前状态的只读副本。
type Snapshot struct {
	ProjectID      string `json:"projectId"`
	State          State  `json:"state"`
	RetryCount     int    `json:"retryCount"`
	Episode        uint64 `json:"episode"`
	AutoRepairs    int    `json:"autoRepairs"`
	LastDiagnostic string `json:"lastDiagnostic,omitempty"`
}

// Compiler 把 markup 编译为 PDF。
type Compiler interface {
	Compile(ctx context.Context, markup string) ([]byte, error)
}

// Repairer 根据诊断生成修复后的 markup。
type Repairer interface {
	RepairMarkup(ctx context.Context, docKind, markup, diagnostic string) (string, error)
}

// ProjectStore 读写项目的 markup 和编译结果。
type ProjectStore interface {
	FindByID(id string) (*model.Project, error)
	UpdateMarkup(id, markup string) error
	UpdateCompileResult(id, artifactKey, lastError string) error
}

// ArtifactStore 保存编译产物。
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Deps 是控制器依赖的外部组件。
type Deps struct {
	Compiler  Compiler
	Repairer  Repairer
	Projects  ProjectStore
	Artifacts ArtifactStore
}

// Options 配置自动修复行为。
type Options struct {
	MaxAutoRepairs int
}

// episode 是自上次成功以来、诊断相同的一串失败。fingerprint 为本轮最近一次诊断的摘要。
type episode struct {
	seq         uint64
	fingerprint string
	autoRepairs int
}

// failureSource 区分失败来自哪一步。
type failureSource int

const (
	// 用户编辑或手动触发的编译
	failCompile failureSource = iota
	// 修复后的重新编译，不开启新的失败轮次
	failRecompile
	// 编译服务或产物存储不可用，诊断不来自 markup
	failInfra
)

// Controller 管理单个项目的编译循环。同一项目的循环串行执行。
type Controller struct {
	projectID string
	deps      Deps
	opts      Options

	cycleMu sync.Mutex

	mu         sync.Mutex
	state      State
	retryCount int
	attempt    int
	lastDiag   string
	current    *episode
	nextSeq    uint64
	subs       map[int]chan Event
	nextSubID  int
}

// NewController 创建一个处于 Idle 状态的控制器。
func NewController(projectID string, deps Deps, opts Options) *Controller {
	if opts.MaxAutoRepairs < 0 {
		opts.MaxAutoRepairs = 0
	}
	return &Controller{
		projectID: projectID,
		deps:      deps,
		opts:      opts,
		state:     StateIdle,
		subs:      make(map[int]chan Event),
	}
}

// Subscribe 返回事件通道和取消函数。订阅者处理过慢时事件会被丢弃。
func (c *Controller) Subscribe() (<-chan Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSubID
	c.nextSubID++
	ch := make(chan Event, 16)
	c.subs[id] = ch
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

// Snapshot 返回当前状态。
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		ProjectID:      c.projectID,
		State:          c.state,
		RetryCount:     c.retryCount,
		LastDiagnostic: c.lastDiag,
	}
	if c.current != nil {
		s.Episode = c.current.seq
		s.AutoRepairs = c.current.autoRepairs
	}
	return s
}

// evictable 报告控制器是否可以从缓存中移除：空闲或上次编译成功、没有进行中的循环、没有订阅者。
func (c *Controller) evictable() bool {
	if !c.cycleMu.TryLock() {
		return false
	}
	defer c.cycleMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	return (c.state == StateIdle || c.state == StateSuccess) && len(c.subs) == 0
}

// Compile 编译项目当前的 markup。失败时若本轮失败尚未自动修复过，会自动修复并重新编译一次。
func (c *Controller) Compile(ctx context.Context) error {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	project, err := c.deps.Projects.FindByID(c.projectID)
	if err != nil {
		return err
	}

	c.transition(StateCompiling, "")
	pdf, err := c.deps.Compiler.Compile(ctx, project.Markup)
	if err == nil {
		return c.succeed(ctx, pdf)
	}

	diag, transport := diagnosticOf(err)
	src := failCompile
	if transport {
		src = failInfra
	}
	c.fail(diag, src)
	if transport {
		log.Warnw("[RepairLoop] 编译服务不可用，不进行自动修复", "project_id", c.projectID, "error", err)
		return err
	}
	if !c.takeAutoRepair() {
		log.Infof("[RepairLoop] 本轮失败已自动修复过，等待用户操作, projectID: %s", c.projectID)
		return err
	}
	return c.repairAndRecompile(ctx, project, diag)
}

// Repair 由用户触发：修复最近一次的诊断并重新编译。只能在 Failed 状态下调用。
func (c *Controller) Repair(ctx context.Context) error {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	project, err := c.deps.Projects.FindByID(c.projectID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	state, diag := c.state, c.lastDiag
	if state == StateIdle && project.LastError != "" {
		// 进程重启后从项目记录恢复失败状态
		state, diag = StateFailed, project.LastError
		c.state, c.lastDiag = state, diag
	}
	c.mu.Unlock()
	if state != StateFailed {
		return ErrNotFailed
	}
	return c.repairAndRecompile(ctx, project, diag)
}

func (c *Controller) repairAndRecompile(ctx context.Context, project *model.Project, diag string) error {
	c.transition(StateRepairing, diag)
	repaired, err := c.deps.Repairer.RepairMarkup(ctx, project.Kind, project.Markup, diag)
	if err != nil {
		log.Errorw("[RepairLoop] 生成修复内容失败", "project_id", c.projectID, "error", err)
		c.giveUp(diag)
		return fmt.Errorf("repair generation failed: %w", err)
	}
	if err := c.deps.Projects.UpdateMarkup(c.projectID, repaired); err != nil {
		c.giveUp(diag)
		return fmt.Errorf("failed to save repaired markup: %w", err)
	}

	c.transition(StateRecompiling, "")
	pdf, err := c.deps.Compiler.Compile(ctx, repaired)
	if err == nil {
		return c.succeed(ctx, pdf)
	}
	newDiag, transport := diagnosticOf(err)
	src := failRecompile
	if transport {
		src = failInfra
	}
	c.recordFailure(newDiag, src)
	c.giveUp(newDiag)
	return err
}

func (c *Controller) succeed(ctx context.Context, pdf []byte) error {
	key := storage.ArtifactKey(c.projectID)
	if err := c.deps.Artifacts.Put(ctx, key, pdf, "application/pdf"); err != nil {
		diag := fmt.Sprintf("failed to store artifact: %v", err)
		c.fail(diag, failInfra)
		return errors.New(diag)
	}
	if err := c.deps.Projects.UpdateCompileResult(c.projectID, key, ""); err != nil {
		log.Errorw("[RepairLoop] 更新项目编译结果失败", "project_id", c.projectID, "error", err)
	}

	c.mu.Lock()
	c.retryCount = 0
	c.lastDiag = ""
	c.current = nil
	c.mu.Unlock()
	c.transition(StateSuccess, "")
	return nil
}

// fail 记录一次失败并发出 Failed 事件。
func (c *Controller) fail(diag string, src failureSource) {
	c.recordFailure(diag, src)
	c.transition(StateFailed, diag)
}

// recordFailure 记录诊断并维护失败轮次。编译得到与本轮不同的诊断时开启新一轮，
// 新一轮重新获得自动修复机会。
func (c *Controller) recordFailure(diag string, src failureSource) {
	if err := c.deps.Projects.UpdateCompileResult(c.projectID, "", diag); err != nil {
		log.Errorw("[RepairLoop] 记录编译诊断失败", "project_id", c.projectID, "error", err)
	}
	fp := ""
	if src != failInfra {
		fp = Fingerprint(diag)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.retryCount++
	c.lastDiag = diag
	switch {
	case c.current == nil:
		c.openEpisode(fp)
	case fp == "":
		// 基础设施错误不改变本轮的诊断
	case c.current.fingerprint == "":
		c.current.fingerprint = fp
	case src == failCompile && c.current.fingerprint != fp:
		c.openEpisode(fp)
	default:
		c.current.fingerprint = fp
	}
}

// openEpisode 开启新的失败轮次，调用方需持有 c.mu。
func (c *Controller) openEpisode(fp string) {
	c.nextSeq++
	c.current = &episode{seq: c.nextSeq, fingerprint: fp}
	log.Infow("[RepairLoop] 新的失败轮次", "project_id", c.projectID, "episode", c.current.seq, "fingerprint", fp)
}

func (c *Controller) giveUp(diag string) {
	c.transition(StateGaveUp, diag)
	c.transition(StateFailed, diag)
}

// takeAutoRepair 占用本轮的一次自动修复机会。
func (c *Controller) takeAutoRepair() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.autoRepairs >= c.opts.MaxAutoRepairs {
		return false
	}
	c.current.autoRepairs++
	return true
}

func (c *Controller) transition(state State, diag string) {
	c.mu.Lock()
	c.state = state
	if state == StateCompiling || state == StateRecompiling {
		c.attempt++
	}
	ev := Event{
		ProjectID:  c.projectID,
		State:      state,
		Attempt:    c.attempt,
		RetryCount: c.retryCount,
		Diagnostic: diag,
		At:         time.Now(),
	}
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	c.mu.Unlock()

	log.Infow("[RepairLoop] 状态变化", "project_id", c.projectID, "state", state, "attempt", ev.Attempt, "retry_count", ev.RetryCount)
}

func diagnosticOf(err error) (string, bool) {
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		return ce.Diagnostic, ce.Transport
	}
	return err.Error(), true
}

// Fingerprint 返回诊断文本的 blake2b-256 摘要。
func Fingerprint(diag string) string {
	sum := blake2b.Sum256([]byte(diag))
	return hex.EncodeToString(sum[:])
}
