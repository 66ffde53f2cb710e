package pool

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrStopped 协程池已停止
var ErrStopped = errors.New("worker pool stopped")

// WorkerPool 协程池
//
// 用于限制后台任务（欢迎邮件等）的并发数量
type WorkerPool struct {
	maxWorkers int
	taskQueue  chan func()
	wg         sync.WaitGroup
	log        *zap.Logger
	mu         sync.RWMutex
	stopped    bool
}

// NewWorkerPool 创建协程池
//
// 参数:
//   - maxWorkers: 最大协程数
//   - queueSize: 任务队列大小
func NewWorkerPool(maxWorkers, queueSize int, log *zap.Logger) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkerPool{
		maxWorkers: maxWorkers,
		taskQueue:  make(chan func(), queueSize),
		log:        log,
	}
}

// Start 启动协程池
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Submit 提交任务，队列已满时阻塞直到有空位或 ctx 结束
func (p *WorkerPool) Submit(ctx context.Context, task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.taskQueue <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit 尝试提交任务，队列已满或已停止时立即返回 false
func (p *WorkerPool) TrySubmit(task func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}
	select {
	case p.taskQueue <- task:
		return true
	default:
		return false
	}
}

// Pending 队列中等待执行的任务数
func (p *WorkerPool) Pending() int {
	return len(p.taskQueue)
}

// Stop 停止接收任务并等待已入队任务执行完
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.taskQueue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// worker 工作协程
func (p *WorkerPool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.run(task)
		}
	}
}

// run 执行任务并捕获 panic
func (p *WorkerPool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("worker task panicked", zap.Any("panic", r))
		}
	}()
	task()
}
