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
	"net"
	"strconv"

	goset "github.com/deckarep/golang-set/v2"
	"github.com/hashicorp/consul/api"
)

// Client is the typed agent API surface of the cluster.
//
// Each method mirrors the corresponding hashicorp/consul/api call and routes
// it through one of the three dispatch policies. Reads and single-target
// writes go through the pinned node with failover. Service and check
// registration is replicated to every healthy node because registrations are
// local to the agent that accepted them. Deregistration and maintenance
// toggles are replicated best effort without retry since their callers are
// typically unwinding. TTL heartbeats and agent reloads go to every node
// regardless of health.
//
// Per-call deadlines follow the consul api convention: set them on the
// QueryOptions/WriteOptions via WithContext, or on the shared HTTP client.
type Client struct {
	cluster *Cluster
}

// NewClient creates a Client on top of an existing cluster
func NewClient(cluster *Cluster) *Client {
	return &Client{cluster: cluster}
}

// Connect creates the cluster from the given configuration and returns the
// typed client over it
func Connect(ctx context.Context, config *Config) (*Client, error) {
	cluster, err := New(ctx, config)
	if err != nil {
		return nil, err
	}
	return NewClient(cluster), nil
}

// Cluster returns the underlying cluster
func (x *Client) Cluster() *Cluster {
	return x.cluster
}

// Stop stops the underlying cluster
func (x *Client) Stop(ctx context.Context) {
	x.cluster.Stop(ctx)
}

// queryResult pairs a value with the query metadata of the node that served it
type queryResult[T any] struct {
	value T
	meta  *api.QueryMeta
}

// writeResult pairs a value with the write metadata of the node that served it
type writeResult[T any] struct {
	value T
	meta  *api.WriteMeta
}

func failoverQuery[T any](x *Client, op func(*api.Client) (T, *api.QueryMeta, error)) (T, *api.QueryMeta, error) {
	out, err := InvokeWithFailover(context.Background(), x.cluster, func(node *Node) (queryResult[T], error) {
		value, meta, err := op(node.Client())
		return queryResult[T]{value: value, meta: meta}, err
	})
	return out.value, out.meta, err
}

func failoverWrite[T any](x *Client, op func(*api.Client) (T, *api.WriteMeta, error)) (T, *api.WriteMeta, error) {
	out, err := InvokeWithFailover(context.Background(), x.cluster, func(node *Node) (writeResult[T], error) {
		value, meta, err := op(node.Client())
		return writeResult[T]{value: value, meta: meta}, err
	})
	return out.value, out.meta, err
}

// KVGet fetches a single key from the key-value store
func (x *Client) KVGet(key string, opts *api.QueryOptions) (*api.KVPair, *api.QueryMeta, error) {
	return failoverQuery(x, func(client *api.Client) (*api.KVPair, *api.QueryMeta, error) {
		return client.KV().Get(key, opts)
	})
}

// KVList fetches every key-value pair under the given prefix
func (x *Client) KVList(prefix string, opts *api.QueryOptions) (api.KVPairs, *api.QueryMeta, error) {
	return failoverQuery(x, func(client *api.Client) (api.KVPairs, *api.QueryMeta, error) {
		return client.KV().List(prefix, opts)
	})
}

// KVKeys lists the keys under the given prefix up to the given separator
func (x *Client) KVKeys(prefix, separator string, opts *api.QueryOptions) ([]string, *api.QueryMeta, error) {
	return failoverQuery(x, func(client *api.Client) ([]string, *api.QueryMeta, error) {
		return client.KV().Keys(prefix, separator, opts)
	})
}

// KVPut writes a key-value pair
func (x *Client) KVPut(pair *api.KVPair, opts *api.WriteOptions) (*api.WriteMeta, error) {
	meta, err := InvokeWithFailover(context.Background(), x.cluster, func(node *Node) (*api.WriteMeta, error) {
		return node.Client().KV().Put(pair, opts)
	})
	return meta, err
}

// KVDelete removes a single key from the key-value store
func (x *Client) KVDelete(key string, opts *api.WriteOptions) (*api.WriteMeta, error) {
	meta, err := InvokeWithFailover(context.Background(), x.cluster, func(node *Node) (*api.WriteMeta, error) {
		return node.Client().KV().Delete(key, opts)
	})
	return meta, err
}

// KVDeleteTree removes every key under the given prefix
func (x *Client) KVDeleteTree(prefix string, opts *api.WriteOptions) (*api.WriteMeta, error) {
	meta, err := InvokeWithFailover(context.Background(), x.cluster, func(node *Node) (*api.WriteMeta, error) {
		return node.Client().KV().DeleteTree(prefix, opts)
	})
	return meta, err
}

// StatusLeader returns the raft leader as seen by the pinned node
func (x *Client) StatusLeader() (string, error) {
	return InvokeWithFailover(context.Background(), x.cluster, func(node *Node) (string, error) {
		return node.Client().Status().Leader()
	})
}

// StatusPeers returns the raft peer set as seen by the pinned node
func (x *Client) StatusPeers() ([]string, error) {
	return InvokeWithFailover(context.Background(), x.cluster, func(node *Node) ([]string, error) {
		return node.Client().Status().Peers()
	})
}

// SessionCreate initializes a new session
func (x *Client) SessionCreate(session *api.SessionEntry, opts *api.WriteOptions) (string, *api.WriteMeta, error) {
	return failoverWrite(x, func(client *api.Client) (string, *api.WriteMeta, error) {
		return client.Session().Create(session, opts)
	})
}

// SessionDestroy invalidates the given session
func (x *Client) SessionDestroy(sessionID string, opts *api.WriteOptions) (*api.WriteMeta, error) {
	meta, err := InvokeWithFailover(context.Background(), x.cluster, func(node *Node) (*api.WriteMeta, error) {
		return node.Client().Session().Destroy(sessionID, opts)
	})
	return meta, err
}

// SessionInfo looks up a single session
func (x *Client) SessionInfo(sessionID string, opts *api.QueryOptions) (*api.SessionEntry, *api.QueryMeta, error) {
	return failoverQuery(x, func(client *api.Client) (*api.SessionEntry, *api.QueryMeta, error) {
		return client.Session().Info(sessionID, opts)
	})
}

// SessionList lists the active sessions
func (x *Client) SessionList(opts *api.QueryOptions) ([]*api.SessionEntry, *api.QueryMeta, error) {
	return failoverQuery(x, func(client *api.Client) ([]*api.SessionEntry, *api.QueryMeta, error) {
		return client.Session().List(opts)
	})
}

// SessionRenew renews the TTL of the given session
func (x *Client) SessionRenew(sessionID string, opts *api.WriteOptions) (*api.SessionEntry, *api.WriteMeta, error) {
	return failoverWrite(x, func(client *api.Client) (*api.SessionEntry, *api.WriteMeta, error) {
		return client.Session().Renew(sessionID, opts)
	})
}

// HealthNode returns the checks registered on the given catalog node
func (x *Client) HealthNode(nodeName string, opts *api.QueryOptions) (api.HealthChecks, *api.QueryMeta, error) {
	return failoverQuery(x, func(client *api.Client) (api.HealthChecks, *api.QueryMeta, error) {
		return client.Health().Node(nodeName, opts)
	})
}

// HealthChecks returns the checks associated with the given service
func (x *Client) HealthChecks(service string, opts *api.QueryOptions) (api.HealthChecks, *api.QueryMeta, error) {
	return failoverQuery(x, func(client *api.Client) (api.HealthChecks, *api.QueryMeta, error) {
		return client.Health().Checks(service, opts)
	})
}

// HealthService returns the instances of the given service together with
// their health information
func (x *Client) HealthService(service, tag string, passingOnly bool, opts *api.QueryOptions) ([]*api.ServiceEntry, *api.QueryMeta, error) {
	return failoverQuery(x, func(client *api.Client) ([]*api.ServiceEntry, *api.QueryMeta, error) {
		return client.Health().Service(service, tag, passingOnly, opts)
	})
}

// HealthState returns every check in the given state
func (x *Client) HealthState(state string, opts *api.QueryOptions) (api.HealthChecks, *api.QueryMeta, error) {
	return failoverQuery(x, func(client *api.Client) (api.HealthChecks, *api.QueryMeta, error) {
		return client.Health().State(state, opts)
	})
}

// HealthServiceAddresses returns the deduplicated host:port addresses of the
// passing instances of the given service
func (x *Client) HealthServiceAddresses(service string, opts *api.QueryOptions) ([]string, error) {
	entries, _, err := x.HealthService(service, "", true, opts)
	if err != nil {
		return nil, err
	}

	seen := goset.NewSet[string]()
	addresses := make([]string, 0, len(entries))
	for _, entry := range entries {
		host := entry.Service.Address
		if host == "" {
			host = entry.Node.Address
		}
		address := net.JoinHostPort(host, strconv.Itoa(entry.Service.Port))
		if seen.Add(address) {
			addresses = append(addresses, address)
		}
	}
	return addresses, nil
}

// CatalogDatacenters lists the known datacenters
func (x *Client) CatalogDatacenters() ([]string, error) {
	return InvokeWithFailover(context.Background(), x.cluster, func(node *Node) ([]string, error) {
		return node.Client().Catalog().Datacenters()
	})
}

// CatalogNodes lists the nodes of the catalog
func (x *Client) CatalogNodes(opts *api.QueryOptions) ([]*api.Node, *api.QueryMeta, error) {
	return failoverQuery(x, func(client *api.Client) ([]*api.Node, *api.QueryMeta, error) {
		return client.Catalog().Nodes(opts)
	})
}

// CatalogServices lists the services of the catalog keyed by name
func (x *Client) CatalogServices(opts *api.QueryOptions) (map[string][]string, *api.QueryMeta, error) {
	return failoverQuery(x, func(client *api.Client) (map[string][]string, *api.QueryMeta, error) {
		return client.Catalog().Services(opts)
	})
}

// CatalogService lists the instances of the given service
func (x *Client) CatalogService(service, tag string, opts *api.QueryOptions) ([]*api.CatalogService, *api.QueryMeta, error) {
	return failoverQuery(x, func(client *api.Client) ([]*api.CatalogService, *api.QueryMeta, error) {
		return client.Catalog().Service(service, tag, opts)
	})
}

// CatalogNode returns the services registered on the given catalog node
func (x *Client) CatalogNode(nodeName string, opts *api.QueryOptions) (*api.CatalogNode, *api.QueryMeta, error) {
	return failoverQuery(x, func(client *api.Client) (*api.CatalogNode, *api.QueryMeta, error) {
		return client.Catalog().Node(nodeName, opts)
	})
}

// CatalogRegister registers a catalog entry directly
func (x *Client) CatalogRegister(registration *api.CatalogRegistration, opts *api.WriteOptions) (*api.WriteMeta, error) {
	meta, err := InvokeWithFailover(context.Background(), x.cluster, func(node *Node) (*api.WriteMeta, error) {
		return node.Client().Catalog().Register(registration, opts)
	})
	return meta, err
}

// CatalogDeregister removes a catalog entry directly
func (x *Client) CatalogDeregister(deregistration *api.CatalogDeregistration, opts *api.WriteOptions) (*api.WriteMeta, error) {
	meta, err := InvokeWithFailover(context.Background(), x.cluster, func(node *Node) (*api.WriteMeta, error) {
		return node.Client().Catalog().Deregister(deregistration, opts)
	})
	return meta, err
}

// EventFire fires a user event and returns its ID
func (x *Client) EventFire(event *api.UserEvent, opts *api.WriteOptions) (string, *api.WriteMeta, error) {
	return failoverWrite(x, func(client *api.Client) (string, *api.WriteMeta, error) {
		return client.Event().Fire(event, opts)
	})
}

// EventList lists the most recent user events, optionally filtered by name
func (x *Client) EventList(name string, opts *api.QueryOptions) ([]*api.UserEvent, *api.QueryMeta, error) {
	return failoverQuery(x, func(client *api.Client) ([]*api.UserEvent, *api.QueryMeta, error) {
		return client.Event().List(name, opts)
	})
}

// AgentSelf returns the self-description of the pinned agent
func (x *Client) AgentSelf() (map[string]map[string]any, error) {
	return InvokeWithFailover(context.Background(), x.cluster, func(node *Node) (map[string]map[string]any, error) {
		return node.Client().Agent().Self()
	})
}

// AgentMembers returns the gossip members seen by the pinned agent
func (x *Client) AgentMembers(wan bool) ([]*api.AgentMember, error) {
	return InvokeWithFailover(context.Background(), x.cluster, func(node *Node) ([]*api.AgentMember, error) {
		return node.Client().Agent().Members(wan)
	})
}

// AgentChecks returns the checks registered on the pinned agent
func (x *Client) AgentChecks() (map[string]*api.AgentCheck, error) {
	return InvokeWithFailover(context.Background(), x.cluster, func(node *Node) (map[string]*api.AgentCheck, error) {
		return node.Client().Agent().Checks()
	})
}

// AgentServices returns the services registered on the pinned agent
func (x *Client) AgentServices() (map[string]*api.AgentService, error) {
	return InvokeWithFailover(context.Background(), x.cluster, func(node *Node) (map[string]*api.AgentService, error) {
		return node.Client().Agent().Services()
	})
}

// AgentJoin asks the pinned agent to join the given address
func (x *Client) AgentJoin(address string, wan bool) error {
	_, err := InvokeWithFailover(context.Background(), x.cluster, func(node *Node) (struct{}, error) {
		return struct{}{}, node.Client().Agent().Join(address, wan)
	})
	return err
}

// AgentForceLeave forces the given gossip member into the left state
func (x *Client) AgentForceLeave(nodeName string) error {
	_, err := InvokeWithFailover(context.Background(), x.cluster, func(node *Node) (struct{}, error) {
		return struct{}{}, node.Client().Agent().ForceLeave(nodeName)
	})
	return err
}

// ServiceRegister registers the given service on every healthy node.
//
// A registration is local to the agent that accepted it, so it is replicated
// across the whole healthy membership and the sweep is retried as a unit
// until every healthy node holds it or the retry budget runs out.
func (x *Client) ServiceRegister(registration *api.AgentServiceRegistration) error {
	_, err := InvokeOnAllHealthyWithRetry(context.Background(), x.cluster, func(node *Node) (struct{}, error) {
		return struct{}{}, node.Client().Agent().ServiceRegister(registration)
	})
	return err
}

// ServiceDeregister removes the given service from every healthy node.
//
// Per-node failures are logged and swallowed since the caller is typically
// shutting down and cannot usefully react.
func (x *Client) ServiceDeregister(serviceID string) {
	x.sweepAndSwallow("service deregistration", func(node *Node) error {
		return node.Client().Agent().ServiceDeregister(serviceID)
	})
}

// CheckRegister registers the given check on every healthy node, with the
// same sweep-level retry as ServiceRegister
func (x *Client) CheckRegister(check *api.AgentCheckRegistration) error {
	_, err := InvokeOnAllHealthyWithRetry(context.Background(), x.cluster, func(node *Node) (struct{}, error) {
		return struct{}{}, node.Client().Agent().CheckRegister(check)
	})
	return err
}

// CheckDeregister removes the given check from every healthy node,
// swallowing per-node failures
func (x *Client) CheckDeregister(checkID string) {
	x.sweepAndSwallow("check deregistration", func(node *Node) error {
		return node.Client().Agent().CheckDeregister(checkID)
	})
}

// EnableServiceMaintenance puts the given service into maintenance mode on
// every healthy node
func (x *Client) EnableServiceMaintenance(serviceID, reason string) {
	x.sweepAndSwallow("service maintenance toggle", func(node *Node) error {
		return node.Client().Agent().EnableServiceMaintenance(serviceID, reason)
	})
}

// DisableServiceMaintenance takes the given service out of maintenance mode
// on every healthy node
func (x *Client) DisableServiceMaintenance(serviceID string) {
	x.sweepAndSwallow("service maintenance toggle", func(node *Node) error {
		return node.Client().Agent().DisableServiceMaintenance(serviceID)
	})
}

// EnableNodeMaintenance puts every healthy agent into maintenance mode
func (x *Client) EnableNodeMaintenance(reason string) {
	x.sweepAndSwallow("node maintenance toggle", func(node *Node) error {
		return node.Client().Agent().EnableNodeMaintenance(reason)
	})
}

// DisableNodeMaintenance takes every healthy agent out of maintenance mode
func (x *Client) DisableNodeMaintenance() {
	x.sweepAndSwallow("node maintenance toggle", func(node *Node) error {
		return node.Client().Agent().DisableNodeMaintenance()
	})
}

// sweepAndSwallow runs op once on every healthy node. Per-node failures are
// swallowed by the sweep itself; a cluster-wide outage only logs since the
// caller is unwinding and cannot usefully react.
func (x *Client) sweepAndSwallow(what string, op func(*Node) error) {
	_, err := InvokeOnAllHealthy(context.Background(), x.cluster, func(node *Node) (struct{}, error) {
		return struct{}{}, op(node)
	})
	if err != nil {
		x.cluster.logger.Warnf("%s skipped: %v", what, err)
	}
}

// PassTTL marks the given TTL check passing on every node, healthy or not
func (x *Client) PassTTL(checkID, note string) error {
	return x.bestEffort(func(node *Node) error {
		return node.Client().Agent().PassTTL(checkID, note)
	})
}

// WarnTTL marks the given TTL check warning on every node, healthy or not
func (x *Client) WarnTTL(checkID, note string) error {
	return x.bestEffort(func(node *Node) error {
		return node.Client().Agent().WarnTTL(checkID, note)
	})
}

// FailTTL marks the given TTL check critical on every node, healthy or not
func (x *Client) FailTTL(checkID, note string) error {
	return x.bestEffort(func(node *Node) error {
		return node.Client().Agent().FailTTL(checkID, note)
	})
}

// UpdateTTL sets the state and output of the given TTL check on every node,
// healthy or not
func (x *Client) UpdateTTL(checkID, output, status string) error {
	return x.bestEffort(func(node *Node) error {
		return node.Client().Agent().UpdateTTL(checkID, output, status)
	})
}

// AgentReload triggers a configuration reload on every node, healthy or not
func (x *Client) AgentReload() error {
	return x.bestEffort(func(node *Node) error {
		return node.Client().Agent().Reload()
	})
}

// bestEffort runs op on the full membership ignoring health flags and fails
// only when every single node rejected it
func (x *Client) bestEffort(op func(*Node) error) error {
	_, err := InvokeOnAllBestEffort(context.Background(), x.cluster, func(node *Node) (struct{}, error) {
		return struct{}{}, op(node)
	})
	return err
}

// ACLTokenCreate creates a new ACL token
func (x *Client) ACLTokenCreate(token *api.ACLToken, opts *api.WriteOptions) (*api.ACLToken, *api.WriteMeta, error) {
	return failoverWrite(x, func(client *api.Client) (*api.ACLToken, *api.WriteMeta, error) {
		return client.ACL().TokenCreate(token, opts)
	})
}

// ACLTokenRead fetches a single ACL token
func (x *Client) ACLTokenRead(tokenID string, opts *api.QueryOptions) (*api.ACLToken, *api.QueryMeta, error) {
	return failoverQuery(x, func(client *api.Client) (*api.ACLToken, *api.QueryMeta, error) {
		return client.ACL().TokenRead(tokenID, opts)
	})
}

// ACLTokenDelete removes the given ACL token
func (x *Client) ACLTokenDelete(tokenID string, opts *api.WriteOptions) (*api.WriteMeta, error) {
	meta, err := InvokeWithFailover(context.Background(), x.cluster, func(node *Node) (*api.WriteMeta, error) {
		return node.Client().ACL().TokenDelete(tokenID, opts)
	})
	return meta, err
}

// ACLTokenList lists the ACL tokens
func (x *Client) ACLTokenList(opts *api.QueryOptions) ([]*api.ACLTokenListEntry, *api.QueryMeta, error) {
	return failoverQuery(x, func(client *api.Client) ([]*api.ACLTokenListEntry, *api.QueryMeta, error) {
		return client.ACL().TokenList(opts)
	})
}
