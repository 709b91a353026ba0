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

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "consulcluster"

// metrics holds the instrumentation of the cluster client
type metrics struct {
	attempts     prometheus.Counter
	failovers    prometheus.Counter
	exhausted    prometheus.Counter
	sweeps       prometheus.Counter
	healthyNodes prometheus.Gauge
}

// newMetrics creates the cluster metrics and registers them on the given
// registerer when one is provided
func newMetrics(registerer prometheus.Registerer) *metrics {
	m := &metrics{
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "call_attempts_total",
			Help:      "Number of per-node call attempts made by the failover policy",
		}),
		failovers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "failovers_total",
			Help:      "Number of times the pinned node has been reselected",
		}),
		exhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "retry_exhausted_total",
			Help:      "Number of calls that consumed the whole retry budget without success",
		}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "health_sweeps_total",
			Help:      "Number of full health sweeps performed",
		}),
		healthyNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "healthy_nodes",
			Help:      "Number of nodes currently marked healthy",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(m.attempts, m.failovers, m.exhausted, m.sweeps, m.healthyNodes)
	}

	return m
}
