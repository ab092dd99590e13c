// Package monoclock — монотонные часы в наносекундах для цикла кадров и пейсера.
// Пейсер часы не читает: now передаёт вызывающий код.
package monoclock

import (
	"context"
	"sync"
	"time"
)

// Clock — источник монотонного времени.
type Clock interface {
	// NowNs возвращает текущее монотонное время в наносекундах.
	NowNs() uint64
	// SleepUntil блокирует до момента ns или отмены ctx.
	SleepUntil(ctx context.Context, ns uint64) error
}

// System — системные монотонные часы (CLOCK_MONOTONIC на Linux).
type System struct{}

// NowNs возвращает текущее монотонное время.
func (System) NowNs() uint64 {
	return nowNs()
}

// SleepUntil спит до ns; если момент уже прошёл, возвращается сразу.
func (s System) SleepUntil(ctx context.Context, ns uint64) error {
	now := s.NowNs()
	if ns <= now {
		return ctx.Err()
	}
	timer := time.NewTimer(time.Duration(ns - now))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Manual — виртуальные часы: время двигается только через Advance/Set/SleepUntil.
// Используются в симуляции и тестах, чтобы прогон был детерминированным и мгновенным.
type Manual struct {
	mu  sync.Mutex
	now uint64
}

// NewManual создаёт виртуальные часы, стартующие с startNs.
func NewManual(startNs uint64) *Manual {
	return &Manual{now: startNs}
}

// NowNs возвращает виртуальное время.
func (m *Manual) NowNs() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance сдвигает время вперёд на d.
func (m *Manual) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.now += uint64(d)
	m.mu.Unlock()
}

// Set переставляет время на ns; назад не двигает.
func (m *Manual) Set(ns uint64) {
	m.mu.Lock()
	if ns > m.now {
		m.now = ns
	}
	m.mu.Unlock()
}

// SleepUntil мгновенно переводит часы на ns (если ns в будущем).
func (m *Manual) SleepUntil(ctx context.Context, ns uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.Set(ns)
	return nil
}
