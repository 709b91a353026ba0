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
	"net/http"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tochemey/consulcluster/hash"
	"github.com/tochemey/consulcluster/internal/validation"
	"github.com/tochemey/consulcluster/log"
)

// NodeMode constrains the operating mode of the agents a cluster is built from.
type NodeMode int

const (
	// ModeAny accepts any mix of client and server agents
	ModeAny NodeMode = iota
	// ModeClient requires every agent to run in client mode
	ModeClient
	// ModeServer requires every agent to run in server mode
	ModeServer
)

// String returns the string representation of the node mode
func (m NodeMode) String() string {
	switch m {
	case ModeClient:
		return "client"
	case ModeServer:
		return "server"
	default:
		return "any"
	}
}

// Config defines the configuration of the cluster client.
//
// It carries the fixed node membership, the consistent-selection key and the
// tunables of the health monitor and the failover retry loop. A Config is
// consumed once at construction time and never mutated afterwards.
type Config struct {
	// Nodes is the list of agent addresses (host:port) the cluster is built from.
	// The membership is fixed for the lifetime of the process.
	Nodes []string
	// Scheme is the URI scheme used to reach the agents ("http" or "https").
	// Default: "http"
	Scheme string
	// TLS is the TLS configuration applied to every agent client.
	// May be nil when Scheme is "http".
	TLS *api.TLSConfig
	// Token is the ACL token used for authenticated requests.
	Token string
	// Datacenter specifies the datacenter to use. If empty, the agents'
	// default datacenter is used.
	Datacenter string
	// SelectionKey is the key fed to the consistent selector when picking the
	// primary node and any failover replacement. Use a value stable for this
	// application instance, typically its own network identity, so that
	// different instances spread across different agents.
	SelectionKey string
	// HealthCheckInterval is the period of the background health sweep.
	// Default: 10s
	HealthCheckInterval time.Duration
	// Mode constrains the operating mode of the agents.
	// Default: ModeAny
	Mode NodeMode
	// RetryableErrors is the set of error categories that trigger a failover.
	// Default: DefaultRetryableErrors()
	RetryableErrors []ErrorCategory
	// HTTPClient is an optional HTTP client shared by every agent client.
	// When nil each agent client uses the consul api defaults. Per-call
	// timeouts belong to this client, not to the cluster layer.
	HTTPClient *http.Client
	// Hasher is the hasher backing the consistent selector.
	// Default: hash.DefaultHasher()
	Hasher hash.Hasher
	// Logger is the logger used by the cluster client.
	// Default: log.DefaultLogger
	Logger log.Logger
	// Registerer receives the cluster metrics. When nil the metrics are
	// created but not exposed.
	Registerer prometheus.Registerer
}

var _ validation.Validator = (*Config)(nil)

// Sanitize ensures the configuration is valid and sets defaults.
func (config *Config) Sanitize() {
	if config.Scheme == "" {
		config.Scheme = "http"
	}

	if config.HealthCheckInterval <= 0 {
		config.HealthCheckInterval = 10 * time.Second
	}

	if len(config.RetryableErrors) == 0 {
		config.RetryableErrors = DefaultRetryableErrors()
	}

	if config.Hasher == nil {
		config.Hasher = hash.DefaultHasher()
	}

	if config.Logger == nil {
		config.Logger = log.DefaultLogger
	}
}

// Validate checks if the configuration is valid.
func (config *Config) Validate() error {
	chain := validation.New(validation.FailFast()).
		AddAssertion(len(config.Nodes) > 0, "Nodes are required").
		AddValidator(validation.NewEmptyStringValidator("SelectionKey", config.SelectionKey)).
		AddAssertion(config.Scheme == "http" || config.Scheme == "https", "Scheme must be either http or https").
		AddAssertion(config.HealthCheckInterval > 0, "HealthCheckInterval is invalid")

	for _, node := range config.Nodes {
		chain.AddValidator(validation.NewTCPAddressValidator(node))
	}

	return chain.Validate()
}
