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
	"sort"

	"github.com/tochemey/consulcluster/hash"
)

// Membership is the fixed, ordered set of nodes a cluster is built from.
//
// The order is a deterministic sort by node identity and is stable for the
// lifetime of the process, which makes the consistent selection reproducible
// across calls and across process restarts.
type Membership struct {
	nodes  []*Node
	hasher hash.Hasher
}

// newMembership creates a Membership from the given nodes.
// The nodes are sorted by identity; the input slice is not retained.
func newMembership(nodes []*Node, hasher hash.Hasher) *Membership {
	sorted := make([]*Node, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID() < sorted[j].ID()
	})

	return &Membership{
		nodes:  sorted,
		hasher: hasher,
	}
}

// All returns every node of the membership in identity order
func (x *Membership) All() []*Node {
	return x.nodes
}

// Size returns the number of nodes in the membership
func (x *Membership) Size() int {
	return len(x.nodes)
}

// Healthy returns the subset of nodes currently marked healthy,
// preserving the membership order
func (x *Membership) Healthy() []*Node {
	healthy := make([]*Node, 0, len(x.nodes))
	for _, node := range x.nodes {
		if node.Healthy() {
			healthy = append(healthy, node)
		}
	}
	return healthy
}

// AllHealthy reports whether every node of the membership is marked healthy
func (x *Membership) AllHealthy() bool {
	for _, node := range x.nodes {
		if !node.Healthy() {
			return false
		}
	}
	return true
}

// Select deterministically picks one node out of the given candidates for
// the given key. The candidates are expected in membership order; the same
// key and candidate set always yield the same node.
func (x *Membership) Select(key string, candidates []*Node) (*Node, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	index := x.hasher.HashString(key) % uint64(len(candidates))
	return candidates[index], nil
}
