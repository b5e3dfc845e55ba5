// Copyright 2020 Acnodal Inc.
// Copyright 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package addresspool

import "github.com/prometheus/client_golang/prometheus"

// metricsNamespace is deliberately empty; the fully-qualified metric
// names (address_pool_size and friends) carry no further prefix.
const (
	metricsNamespace = ""
	subsystem        = "address_pool"
)

var (
	labelNames = []string{"pool"}

	poolSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: subsystem,
		Name:      "size",
		Help:      "Number of addresses configured in the pool's range",
	}, labelNames)

	leasesInUse = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: subsystem,
		Name:      "leases_in_use",
		Help:      "Number of leases currently held by a peer",
	}, labelNames)

	leasesReusable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: subsystem,
		Name:      "leases_reusable",
		Help:      "Number of leases currently bound to an identity fingerprint, held or lingering",
	}, labelNames)

	allocationRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: subsystem,
		Name:      "allocation_rejected_total",
		Help:      "Number of rejected LeaseAnAddress and Install calls, by reason",
	}, []string{"pool", "reason"})
)

func init() {
	prometheus.MustRegister(poolSize)
	prometheus.MustRegister(leasesInUse)
	prometheus.MustRegister(leasesReusable)
	prometheus.MustRegister(allocationRejected)
}

// PublishStats updates the gauges for p. Callers poll this on a timer
// or after each state-changing call; gauges are push, not scrape,
// since the pool state they reflect lives only in-process.
func PublishStats(p *Pool) {
	poolSize.WithLabelValues(p.name).Set(float64(p.size))
	leasesInUse.WithLabelValues(p.name).Set(float64(p.nrInUse))
	leasesReusable.WithLabelValues(p.name).Set(float64(p.nrReusable))
}

// RecordAllocationRejected increments the rejection counter for pool
// name with the given reason ("exhausted", from LeaseAnAddress
// failing to grow into a free slot, or "overlap", from Install
// rejecting a range that partially overlaps an already-installed
// pool).
func RecordAllocationRejected(name, reason string) {
	allocationRejected.WithLabelValues(name, reason).Inc()
}
