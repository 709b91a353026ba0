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

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/hashicorp/consul/api"
)

// ErrorCategory represents a class of failures an agent call can produce.
// The configured set of categories decides which failures trigger a failover
// to another node and which ones surface to the caller immediately.
type ErrorCategory int

const (
	// CategoryTransport covers transport level failures such as a broken or refused HTTP exchange
	CategoryTransport ErrorCategory = iota
	// CategoryIO covers generic I/O failures such as truncated or reset streams
	CategoryIO
	// CategoryConnectionRefused covers connections actively refused by the remote agent
	CategoryConnectionRefused
	// CategoryTimeout covers timeouts, both network level and context deadlines
	CategoryTimeout
	// CategoryOperation covers agent operation failures, i.e. non-2xx responses from the consul HTTP API
	CategoryOperation
)

// String returns the string representation of the error category
func (c ErrorCategory) String() string {
	switch c {
	case CategoryTransport:
		return "transport"
	case CategoryIO:
		return "io"
	case CategoryConnectionRefused:
		return "connection-refused"
	case CategoryTimeout:
		return "timeout"
	case CategoryOperation:
		return "operation"
	default:
		return ""
	}
}

// DefaultRetryableErrors returns the error categories that are retried
// when no explicit set is configured.
func DefaultRetryableErrors() []ErrorCategory {
	return []ErrorCategory{
		CategoryTransport,
		CategoryIO,
		CategoryConnectionRefused,
		CategoryTimeout,
		CategoryOperation,
	}
}

// classifier decides whether a failed agent call is worth a failover
type classifier struct {
	categories map[ErrorCategory]bool
}

func newClassifier(categories []ErrorCategory) *classifier {
	set := make(map[ErrorCategory]bool, len(categories))
	for _, category := range categories {
		set[category] = true
	}
	return &classifier{categories: set}
}

// Retryable reports whether err belongs to one of the configured retryable categories
func (x *classifier) Retryable(err error) bool {
	category, ok := categorize(err)
	if !ok {
		return false
	}
	return x.categories[category]
}

// categorize maps an error onto the taxonomy above. Unrecognized errors
// are not categorized and are treated as fatal by the retry loop.
func categorize(err error) (ErrorCategory, bool) {
	if err == nil {
		return 0, false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout, true
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return CategoryConnectionRefused, true
	}

	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, net.ErrClosed) {
		return CategoryIO, true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return CategoryTransport, true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return CategoryTransport, true
	}

	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return CategoryOperation, true
	}

	// older consul api code paths surface non-2xx responses as plain errors
	if strings.Contains(err.Error(), "Unexpected response code") {
		return CategoryOperation, true
	}

	return 0, false
}
