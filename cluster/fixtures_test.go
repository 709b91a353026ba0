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
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/tochemey/consulcluster/log"
)

// fakeAgent is an in-process stand-in for a consul agent. It implements just
// enough of the HTTP API for the cluster client, records every request it
// serves and can be flipped into a failing state to drive failover paths.
type fakeAgent struct {
	server   *httptest.Server
	isServer bool

	// down makes every request fail with a 500 until cleared.
	// failures makes the next N requests fail, then the agent recovers.
	down     *atomic.Bool
	failures *atomic.Int64

	mutex    sync.Mutex
	requests []string
	kv       map[string][]byte

	// healthServices is the canned payload of the health service endpoint
	healthServices []map[string]any
}

func startFakeAgent(t *testing.T, isServer bool) *fakeAgent {
	t.Helper()
	agent := &fakeAgent{
		isServer: isServer,
		down:     atomic.NewBool(false),
		failures: atomic.NewInt64(0),
		kv:       make(map[string][]byte),
	}
	agent.server = httptest.NewServer(http.HandlerFunc(agent.handle))
	t.Cleanup(agent.server.Close)
	return agent
}

// Address returns the host:port of the fake agent
func (x *fakeAgent) Address() string {
	return strings.TrimPrefix(x.server.URL, "http://")
}

// Requests returns the number of requests served whose path starts with the
// given prefix
func (x *fakeAgent) Requests(prefix string) int {
	x.mutex.Lock()
	defer x.mutex.Unlock()
	count := 0
	for _, path := range x.requests {
		if strings.HasPrefix(path, prefix) {
			count++
		}
	}
	return count
}

func (x *fakeAgent) handle(w http.ResponseWriter, r *http.Request) {
	x.mutex.Lock()
	x.requests = append(x.requests, r.URL.Path)
	x.mutex.Unlock()

	if x.down.Load() {
		http.Error(w, "agent down", http.StatusInternalServerError)
		return
	}
	if x.failures.Load() > 0 {
		x.failures.Dec()
		http.Error(w, "transient failure", http.StatusInternalServerError)
		return
	}

	// blocking-query metadata expected by the api client
	w.Header().Set("X-Consul-Index", "1")
	w.Header().Set("X-Consul-KnownLeader", "true")
	w.Header().Set("X-Consul-LastContact", "0")

	path := r.URL.Path
	switch {
	case path == "/v1/agent/self":
		writeJSON(w, map[string]map[string]any{
			"Config": {"Server": x.isServer, "NodeName": x.Address()},
		})
	case path == "/v1/status/leader":
		writeJSON(w, "127.0.0.1:8300")
	case path == "/v1/status/peers":
		writeJSON(w, []string{"127.0.0.1:8300"})
	case path == "/v1/catalog/datacenters":
		writeJSON(w, []string{"dc1"})
	case strings.HasPrefix(path, "/v1/health/service/"):
		writeJSON(w, x.healthServices)
	case strings.HasPrefix(path, "/v1/kv/"):
		x.handleKV(w, r, strings.TrimPrefix(path, "/v1/kv/"))
	default:
		// registration, checks, maintenance and the remaining agent
		// endpoints only need acknowledgment
		w.WriteHeader(http.StatusOK)
	}
}

func (x *fakeAgent) handleKV(w http.ResponseWriter, r *http.Request, key string) {
	x.mutex.Lock()
	defer x.mutex.Unlock()

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		x.kv[key] = body
		writeJSON(w, true)
	case http.MethodDelete:
		delete(x.kv, key)
		writeJSON(w, true)
	default:
		value, ok := x.kv[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, []map[string]any{{
			"Key":         key,
			"Value":       value,
			"CreateIndex": 1,
			"ModifyIndex": 1,
		}})
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// startFakeAgents starts n fake agents all running in client mode
func startFakeAgents(t *testing.T, n int) []*fakeAgent {
	t.Helper()
	agents := make([]*fakeAgent, n)
	for i := range agents {
		agents[i] = startFakeAgent(t, false)
	}
	return agents
}

func agentAddresses(agents []*fakeAgent) []string {
	addresses := make([]string, len(agents))
	for i, agent := range agents {
		addresses[i] = agent.Address()
	}
	return addresses
}

// agentByID returns the fake agent serving the given node
func agentByID(agents []*fakeAgent, id string) *fakeAgent {
	for _, agent := range agents {
		if agent.Address() == id {
			return agent
		}
	}
	return nil
}

// newTestCluster builds a started cluster over the given fake agents. The
// health sweep interval is set far out so tests drive sweeps explicitly.
func newTestCluster(t *testing.T, agents []*fakeAgent, overrides func(*Config)) *Cluster {
	t.Helper()
	config := &Config{
		Nodes:               agentAddresses(agents),
		SelectionKey:        "test-instance",
		HealthCheckInterval: time.Hour,
		Logger:              log.DiscardLogger,
	}
	if overrides != nil {
		overrides(config)
	}

	cluster, err := New(context.Background(), config)
	require.NoError(t, err)
	t.Cleanup(func() {
		cluster.Stop(context.Background())
	})
	return cluster
}
