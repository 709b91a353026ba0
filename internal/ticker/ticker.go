/*
 * MIT License
 *
 * Copyright (c) 2022-2025 Arsene Tochemey Gandote
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package ticker provides the interval ticker driving the periodic
// heartbeat loops.
package ticker

import (
	"time"

	"go.uber.org/atomic"
)

// Ticker delivers the wall clock on its channel at a fixed interval.
// A slow receiver misses ticks instead of blocking the loop, which is the
// behavior heartbeat loops want: a late heartbeat is worthless, the next
// one supersedes it.
//
// A Ticker is single-use: once stopped it stays stopped.
type Ticker struct {
	Ticks chan time.Time

	interval time.Duration
	ticking  *atomic.Bool
	stopCh   chan struct{}
}

// New creates a Ticker that ticks at the given interval.
// It panics when the interval is not positive.
func New(interval time.Duration) *Ticker {
	if interval <= 0 {
		panic("interval must be greater than zero")
	}
	return &Ticker{
		Ticks:    make(chan time.Time),
		interval: interval,
		ticking:  atomic.NewBool(false),
		stopCh:   make(chan struct{}),
	}
}

// Start starts delivering ticks on the Ticks channel. Starting a running
// ticker is a no-op.
func (x *Ticker) Start() {
	if x.ticking.CompareAndSwap(false, true) {
		go x.loop()
	}
}

// Stop permanently stops the ticker. No ticks are delivered after Stop
// returns.
func (x *Ticker) Stop() {
	if x.ticking.CompareAndSwap(true, false) {
		close(x.stopCh)
	}
}

// Ticking reports whether the ticker is currently delivering ticks
func (x *Ticker) Ticking() bool {
	return x.ticking.Load()
}

func (x *Ticker) loop() {
	clock := time.NewTicker(x.interval)
	defer clock.Stop()
	for {
		select {
		case now := <-clock.C:
			select {
			case x.Ticks <- now:
			default:
			}
		case <-x.stopCh:
			return
		}
	}
}
