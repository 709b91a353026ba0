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

package cluster

import "github.com/pkg/errors"

var (
	// ErrNoCandidates is returned when a selection is attempted over an empty candidate set
	ErrNoCandidates = errors.New("no candidate node to select from")
	// ErrNoHealthyNode is returned when a failover is attempted while every node is marked unhealthy
	ErrNoHealthyNode = errors.New("no healthy node is available")
	// ErrRetryExhausted is returned when the bounded retry budget is consumed without success
	ErrRetryExhausted = errors.New("retry budget exhausted")
	// ErrNodeModeViolation is returned at startup when the agents do not satisfy the configured mode constraint
	ErrNodeModeViolation = errors.New("cluster nodes violate the required agent mode")
	// ErrNoResult is returned by a best-effort broadcast when every node failed
	ErrNoResult = errors.New("no node produced a result")
	// ErrInvalidConfig is returned when the cluster configuration is invalid
	ErrInvalidConfig = errors.New("invalid cluster configuration")
	// ErrReporterStopped is returned when a TTL reporter is used after it has been stopped
	ErrReporterStopped = errors.New("ttl reporter is stopped")
)
