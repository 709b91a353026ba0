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
	"fmt"

	"github.com/hashicorp/consul/api"
	"go.uber.org/atomic"
)

// Node wraps a single agent of the cluster.
//
// Its identity is the agent address and is immutable after construction.
// The health flag is written by the health monitor sweeps and by the
// failover loop when a call against the node fails with a retryable error.
type Node struct {
	address string
	client  *api.Client
	healthy *atomic.Bool
	primary *atomic.Bool
	mode    *atomic.String
}

// newNode creates a Node for the given agent address
func newNode(address string, config *Config) (*Node, error) {
	apiConfig := api.DefaultConfig()
	apiConfig.Address = address
	apiConfig.Scheme = config.Scheme
	apiConfig.Token = config.Token
	apiConfig.Datacenter = config.Datacenter

	if config.TLS != nil {
		apiConfig.TLSConfig = *config.TLS
	}

	if config.HTTPClient != nil {
		apiConfig.HttpClient = config.HTTPClient
	}

	client, err := api.NewClient(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create a client for node=(%s): %w", address, err)
	}

	return &Node{
		address: address,
		client:  client,
		healthy: atomic.NewBool(false),
		primary: atomic.NewBool(false),
		mode:    atomic.NewString(ModeClient.String()),
	}, nil
}

// ID returns the stable identity of the node, its agent address
func (x *Node) ID() string {
	return x.address
}

// Client returns the underlying agent client
func (x *Node) Client() *api.Client {
	return x.client
}

// Healthy reports whether the node passed its most recent probe
func (x *Node) Healthy() bool {
	return x.healthy.Load()
}

// IsPrimary reports whether the node is the consistent-hash assigned primary
func (x *Node) IsPrimary() bool {
	return x.primary.Load()
}

// Mode returns the agent operating mode observed on the most recent probe
func (x *Node) Mode() string {
	return x.mode.Load()
}

// String implements fmt.Stringer
func (x *Node) String() string {
	return fmt.Sprintf("node=(%s healthy=%v primary=%v)", x.address, x.Healthy(), x.IsPrimary())
}

func (x *Node) setHealthy(healthy bool) {
	x.healthy.Store(healthy)
}

func (x *Node) setPrimary(primary bool) {
	x.primary.Store(primary)
}

// probe checks the node by querying the agent self-description and
// refreshes the health flag and the observed operating mode.
func (x *Node) probe() error {
	self, err := x.client.Agent().Self()
	if err != nil {
		x.healthy.Store(false)
		return err
	}

	x.mode.Store(agentMode(self))
	x.healthy.Store(true)
	return nil
}

// agentMode extracts the operating mode from an agent self-description
func agentMode(self map[string]map[string]any) string {
	if config, ok := self["Config"]; ok {
		if server, ok := config["Server"].(bool); ok && server {
			return ModeServer.String()
		}
	}
	return ModeClient.String()
}
