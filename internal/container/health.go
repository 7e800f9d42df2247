package container

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/connpool/pkg/connector/core"
	"github.com/ajitpratap0/connpool/pkg/logger"
	"github.com/ajitpratap0/connpool/pkg/metrics"
)

// Health states reported per pool.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// unhealthyAfter consecutive failures turn a degraded pool unhealthy.
const unhealthyAfter = 3

// PoolHealth is the last health check result of one pool.
type PoolHealth struct {
	Pool                core.PoolIdentity `json:"pool"`
	Status              string            `json:"status"`
	CheckedAt           time.Time         `json:"checked_at"`
	ConsecutiveFailures int               `json:"consecutive_failures,omitempty"`
	LastError           string            `json:"last_error,omitempty"`
}

// PingFunc checks one pool.
type PingFunc func(ctx context.Context, id core.PoolIdentity) error

// HealthChecker periodically pings every pool listed by pools.
type HealthChecker struct {
	interval time.Duration
	timeout  time.Duration
	pools    func() []core.PoolIdentity
	ping     PingFunc
	logger   *zap.Logger

	mu     sync.RWMutex
	status map[core.PoolIdentity]*PoolHealth

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewHealthChecker creates a health checker.
func NewHealthChecker(interval, timeout time.Duration, pools func() []core.PoolIdentity, ping PingFunc) *HealthChecker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HealthChecker{
		interval: interval,
		timeout:  timeout,
		pools:    pools,
		ping:     ping,
		logger:   logger.With(zap.String("component", "health_checker")),
		status:   make(map[core.PoolIdentity]*PoolHealth),
		stopCh:   make(chan struct{}),
	}
}

// Start begins periodic health checks. A zero interval disables them.
func (hc *HealthChecker) Start(ctx context.Context) {
	if hc.interval <= 0 {
		return
	}
	hc.wg.Add(1)
	go func() {
		defer hc.wg.Done()
		ticker := time.NewTicker(hc.interval)
		defer ticker.Stop()

		hc.CheckAll(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-hc.stopCh:
				return
			case <-ticker.C:
				hc.CheckAll(ctx)
			}
		}
	}()
}

// Stop stops the health checker and waits for a running check to finish.
func (hc *HealthChecker) Stop() {
	hc.stopOnce.Do(func() { close(hc.stopCh) })
	hc.wg.Wait()
}

// CheckAll checks every pool once. Results of pools that disappeared are
// dropped.
func (hc *HealthChecker) CheckAll(ctx context.Context) {
	current := make(map[core.PoolIdentity]bool)
	for _, id := range hc.pools() {
		current[id] = true
		hc.Check(ctx, id)
	}

	hc.mu.Lock()
	defer hc.mu.Unlock()
	for id := range hc.status {
		if !current[id] {
			delete(hc.status, id)
			metrics.PoolHealth.DeleteLabelValues(id.String())
		}
	}
}

// Check checks one pool and records the result.
func (hc *HealthChecker) Check(ctx context.Context, id core.PoolIdentity) PoolHealth {
	checkCtx, cancel := context.WithTimeout(ctx, hc.timeout)
	defer cancel()
	err := hc.ping(checkCtx, id)

	hc.mu.Lock()
	defer hc.mu.Unlock()

	h, ok := hc.status[id]
	if !ok {
		h = &PoolHealth{Pool: id}
		hc.status[id] = h
	}
	h.CheckedAt = time.Now()

	if err != nil {
		h.ConsecutiveFailures++
		h.LastError = err.Error()
		if h.ConsecutiveFailures >= unhealthyAfter {
			h.Status = StatusUnhealthy
		} else {
			h.Status = StatusDegraded
		}
		hc.logger.Warn("health check failed",
			zap.Stringer("pool", id),
			zap.Error(err),
			zap.String("status", h.Status),
			zap.Int("consecutive_failures", h.ConsecutiveFailures))
	} else {
		h.ConsecutiveFailures = 0
		h.LastError = ""
		h.Status = StatusHealthy
		hc.logger.Debug("health check passed", zap.Stringer("pool", id))
	}

	metrics.PoolHealth.WithLabelValues(id.String()).Set(healthValue(h.Status))
	return *h
}

func healthValue(status string) float64 {
	switch status {
	case StatusHealthy:
		return 1
	case StatusDegraded:
		return 0.5
	default:
		return 0
	}
}

// Status returns the last result for id.
func (hc *HealthChecker) Status(id core.PoolIdentity) (PoolHealth, bool) {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	h, ok := hc.status[id]
	if !ok {
		return PoolHealth{}, false
	}
	return *h, true
}

// Statuses returns the last results of all checked pools.
func (hc *HealthChecker) Statuses() []PoolHealth {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	out := make([]PoolHealth, 0, len(hc.status))
	for _, h := range hc.status {
		out = append(out, *h)
	}
	return out
}
