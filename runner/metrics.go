// Copyright (c) 2026 TTBT Enterprises LLC
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

package runner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const LatencyBuckets = 101
const LatencyBucketSize = 50 * time.Millisecond

// Histogram is a compact step latency distribution stored with each report.
// The last bucket collects everything from 5s up.
type Histogram struct {
	Buckets [LatencyBuckets]uint64 `json:"b"`
	Count   uint64                 `json:"c"`
	Sum     float64                `json:"s"` // Sum of durations in milliseconds
}

func (h *Histogram) Add(d time.Duration) {
	if d < 0 {
		d = 0
	}
	idx := int(d / LatencyBucketSize)
	if idx >= LatencyBuckets {
		idx = LatencyBuckets - 1
	}
	h.Buckets[idx]++
	h.Count++
	h.Sum += float64(d.Milliseconds())
}

func (h *Histogram) Merge(other *Histogram) {
	if other == nil {
		return
	}
	for i := range LatencyBuckets {
		h.Buckets[i] += other.Buckets[i]
	}
	h.Count += other.Count
	h.Sum += other.Sum
}

// Mean returns the average latency.
func (h *Histogram) Mean() time.Duration {
	if h == nil || h.Count == 0 {
		return 0
	}
	return time.Duration(h.Sum / float64(h.Count) * float64(time.Millisecond))
}

// Quantile returns the upper bound of the bucket holding the q-th quantile.
func (h *Histogram) Quantile(q float64) time.Duration {
	if h == nil || h.Count == 0 {
		return 0
	}
	rank := uint64(q * float64(h.Count))
	if rank >= h.Count {
		rank = h.Count - 1
	}
	var seen uint64
	for i, n := range h.Buckets {
		seen += n
		if seen > rank {
			return time.Duration(i+1) * LatencyBucketSize
		}
	}
	return LatencyBuckets * LatencyBucketSize
}

// Metrics exports run events as Prometheus metrics.
type Metrics struct {
	scenarios     *prometheus.CounterVec
	steps         *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	consoleErrors prometheus.Counter
	active        prometheus.Gauge
}

// NewMetrics registers the runner metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		scenarios: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uicheck",
			Name:      "scenarios_total",
			Help:      "Finished scenario runs by status.",
		}, []string{"status"}),
		steps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uicheck",
			Name:      "steps_total",
			Help:      "Finished steps by status.",
		}, []string{"status"}),
		stepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "uicheck",
			Name:      "step_duration_seconds",
			Help:      "Step duration, including waits.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"action"}),
		consoleErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "uicheck",
			Name:      "console_errors_total",
			Help:      "Console errors and uncaught exceptions seen in sessions.",
		}),
		active: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "uicheck",
			Name:      "sessions_active",
			Help:      "Scenario runs holding a browser session.",
		}),
	}
}

func (m *Metrics) Observe(e Event) {
	switch e.Type {
	case EventScenarioStarted:
		m.active.Inc()
	case EventScenarioFinished:
		m.active.Dec()
		m.scenarios.WithLabelValues(string(e.Status)).Inc()
	case EventStepFinished:
		m.steps.WithLabelValues(string(e.Status)).Inc()
		m.stepDuration.WithLabelValues(string(e.Action)).Observe(e.Duration.Seconds())
	case EventConsole:
		if e.Level == ConsoleError || e.Level == ConsoleException {
			m.consoleErrors.Inc()
		}
	}
}
