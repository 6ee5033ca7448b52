// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bufferpool recycles GPU readback buffers across capture ticks.
//
// A buffer is always in exactly one of three states: idle in the pool, on
// loan to a caller, or destroyed. Acquire may be called from the tick
// goroutine while Release runs on readback callbacks; both take the pool
// mutex only for the queue operation, never across a device call.
package bufferpool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ManuGH/xrcap/internal/gpu"
	"github.com/ManuGH/xrcap/internal/log"
	"github.com/ManuGH/xrcap/internal/metrics"
)

var (
	// ErrNotOnLoan is returned when releasing a buffer the pool did not hand out.
	ErrNotOnLoan = errors.New("bufferpool: buffer not on loan")
	// ErrInvalidSize is returned for non-positive element counts.
	ErrInvalidSize = errors.New("bufferpool: invalid buffer size")
)

// Pool is a bounded FIFO of idle buffers.
type Pool struct {
	alloc   gpu.Allocator
	maxIdle int
	logger  zerolog.Logger

	mu       sync.Mutex
	idle     []gpu.Buffer
	loaned   map[gpu.Buffer]struct{}
	disposed bool
}

// New returns a pool that keeps at most maxIdle idle buffers.
func New(alloc gpu.Allocator, maxIdle int) *Pool {
	if maxIdle < 0 {
		maxIdle = 0
	}
	return &Pool{
		alloc:   alloc,
		maxIdle: maxIdle,
		logger:  log.WithComponent("bufferpool"),
		loaned:  make(map[gpu.Buffer]struct{}),
	}
}

// Acquire returns a buffer with exactly n elements. Only the head of the
// idle queue is considered: a size mismatch destroys it and a fresh buffer
// is allocated.
func (p *Pool) Acquire(n int) (gpu.Buffer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, n)
	}

	p.mu.Lock()
	var head gpu.Buffer
	if len(p.idle) > 0 {
		head = p.idle[0]
		p.idle[0] = nil
		p.idle = p.idle[1:]
	}
	idle := len(p.idle)
	p.mu.Unlock()
	metrics.SetBufferPoolIdle(idle)

	if head != nil {
		if head.Elements() == n {
			p.loan(head)
			metrics.IncBufferPoolOp("reuse")
			return head, nil
		}
		p.alloc.Destroy(head)
		metrics.IncBufferPoolOp("destroy_mismatch")
	}

	buf, err := p.alloc.NewBuffer(n)
	if err != nil {
		return nil, fmt.Errorf("bufferpool: allocate %d elements: %w", n, err)
	}
	p.loan(buf)
	metrics.IncBufferPoolOp("allocate")
	return buf, nil
}

func (p *Pool) loan(buf gpu.Buffer) {
	p.mu.Lock()
	p.loaned[buf] = struct{}{}
	p.mu.Unlock()
}

// Release returns a loaned buffer. After Dispose, or when the pool is at
// capacity, the buffer is destroyed instead of queued.
func (p *Pool) Release(buf gpu.Buffer) error {
	if buf == nil {
		return ErrNotOnLoan
	}

	p.mu.Lock()
	if _, ok := p.loaned[buf]; !ok {
		p.mu.Unlock()
		p.logger.Warn().
			Str("event", "bufferpool.release_rejected").
			Int("elements", buf.Elements()).
			Msg("release of buffer not on loan ignored")
		metrics.IncBufferPoolOp("release_rejected")
		return ErrNotOnLoan
	}
	delete(p.loaned, buf)

	keep := !p.disposed && len(p.idle) < p.maxIdle
	if keep {
		p.idle = append(p.idle, buf)
	}
	idle := len(p.idle)
	p.mu.Unlock()
	metrics.SetBufferPoolIdle(idle)

	if !keep {
		p.alloc.Destroy(buf)
		metrics.IncBufferPoolOp("destroy_release")
		return nil
	}
	metrics.IncBufferPoolOp("release")
	return nil
}

// Dispose destroys all idle buffers. Buffers still on loan are destroyed
// when released. The pool stays usable for Acquire.
func (p *Pool) Dispose() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.disposed = true
	p.mu.Unlock()
	metrics.SetBufferPoolIdle(0)

	for _, buf := range idle {
		p.alloc.Destroy(buf)
		metrics.IncBufferPoolOp("destroy_dispose")
	}
}

// Idle returns the number of queued buffers.
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Loaned returns the number of buffers currently on loan.
func (p *Pool) Loaned() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.loaned)
}
