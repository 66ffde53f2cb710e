package monitoring

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HealthStatus 健康状态
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck 单项检查结果
type HealthCheck struct {
	Name        string        `json:"name"`
	Status      HealthStatus  `json:"status"`
	Message     string        `json:"message,omitempty"`
	Duration    time.Duration `json:"duration"`
	LastChecked time.Time     `json:"last_checked"`
}

// HealthReport 健康报告
type HealthReport struct {
	Status      HealthStatus  `json:"status"`
	Timestamp   time.Time     `json:"timestamp"`
	Uptime      time.Duration `json:"uptime"`
	Checks      []HealthCheck `json:"checks"`
	Version     string        `json:"version"`
	Environment string        `json:"environment"`
}

// CheckFunc 检查函数，返回 nil 表示正常
type CheckFunc func(ctx context.Context) error

type namedCheck struct {
	name string
	// 失败时报告的状态：关键依赖为 unhealthy，可降级依赖为 degraded
	failStatus HealthStatus
	fn         CheckFunc
}

// HealthChecker 汇总各依赖的健康状态，供 /health 详细报告和周期日志使用
type HealthChecker struct {
	mu        sync.RWMutex
	checks    []namedCheck
	logger    *zap.Logger
	startTime time.Time
	version   string
	env       string
	timeout   time.Duration
}

// NewHealthChecker 创建健康检查器，内置内存与协程数检查
func NewHealthChecker(logger *zap.Logger, version, env string) *HealthChecker {
	return &HealthChecker{
		logger:    logger,
		startTime: time.Now(),
		version:   version,
		env:       env,
		timeout:   3 * time.Second,
	}
}

// AddCritical 添加关键依赖检查（失败即 unhealthy）
func (hc *HealthChecker) AddCritical(name string, fn CheckFunc) {
	hc.add(name, HealthStatusUnhealthy, fn)
}

// AddOptional 添加可降级依赖检查（失败为 degraded）
func (hc *HealthChecker) AddOptional(name string, fn CheckFunc) {
	hc.add(name, HealthStatusDegraded, fn)
}

func (hc *HealthChecker) add(name string, status HealthStatus, fn CheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks = append(hc.checks, namedCheck{name: name, failStatus: status, fn: fn})
}

// CheckHealth 执行全部检查
func (hc *HealthChecker) CheckHealth(ctx context.Context) *HealthReport {
	hc.mu.RLock()
	checks := append([]namedCheck(nil), hc.checks...)
	hc.mu.RUnlock()

	report := &HealthReport{
		Timestamp:   time.Now(),
		Uptime:      time.Since(hc.startTime),
		Version:     hc.version,
		Environment: hc.env,
		Checks:      make([]HealthCheck, 0, len(checks)+2),
	}

	for _, c := range checks {
		report.Checks = append(report.Checks, hc.run(ctx, c))
	}
	report.Checks = append(report.Checks, checkMemory(), checkGoroutines())

	report.Status = HealthStatusHealthy
	for _, c := range report.Checks {
		switch c.Status {
		case HealthStatusUnhealthy:
			report.Status = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if report.Status != HealthStatusUnhealthy {
				report.Status = HealthStatusDegraded
			}
		}
	}
	return report
}

func (hc *HealthChecker) run(ctx context.Context, c namedCheck) HealthCheck {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, hc.timeout)
	defer cancel()

	check := HealthCheck{Name: c.name, LastChecked: start, Status: HealthStatusHealthy}
	if err := c.fn(ctx); err != nil {
		check.Status = c.failStatus
		check.Message = err.Error()
	}
	check.Duration = time.Since(start)
	return check
}

// checkMemory 检查堆内存
func checkMemory() HealthCheck {
	start := time.Now()
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	usageMB := float64(m.Alloc) / 1024 / 1024
	check := HealthCheck{Name: "memory", LastChecked: start, Status: HealthStatusHealthy}
	if usageMB > 1024 {
		check.Status = HealthStatusDegraded
	}
	check.Message = fmt.Sprintf("heap %.2f MB", usageMB)
	check.Duration = time.Since(start)
	return check
}

// checkGoroutines 检查协程数量，连接数多时 WebSocket 会占用大量协程
func checkGoroutines() HealthCheck {
	start := time.Now()
	n := runtime.NumGoroutine()
	check := HealthCheck{Name: "goroutines", LastChecked: start, Status: HealthStatusHealthy}
	if n > 10000 {
		check.Status = HealthStatusDegraded
	}
	check.Message = fmt.Sprintf("%d goroutines", n)
	check.Duration = time.Since(start)
	return check
}

// GetUptime 获取运行时间
func (hc *HealthChecker) GetUptime() time.Duration {
	return time.Since(hc.startTime)
}

// StartPeriodicHealthCheck 定期检查并记录日志，直到 ctx 结束
func (hc *HealthChecker) StartPeriodicHealthCheck(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := hc.CheckHealth(ctx)
			fields := []zap.Field{
				zap.String("status", string(report.Status)),
				zap.Duration("uptime", report.Uptime),
			}
			switch report.Status {
			case HealthStatusUnhealthy:
				hc.logger.Error("System health check failed", append(fields, zap.Any("checks", report.Checks))...)
			case HealthStatusDegraded:
				hc.logger.Warn("System health check degraded", append(fields, zap.Any("checks", report.Checks))...)
			default:
				hc.logger.Debug("System health check passed", fields...)
			}
		}
	}
}
