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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHistogram(t *testing.T) {
	var h Histogram
	h.Add(10 * time.Millisecond)
	h.Add(120 * time.Millisecond)
	h.Add(time.Minute)
	if h.Count != 3 || h.Buckets[0] != 1 || h.Buckets[2] != 1 || h.Buckets[LatencyBuckets-1] != 1 {
		t.Errorf("histogram = %+v", h)
	}
	var total Histogram
	total.Merge(&h)
	total.Merge(nil)
	if total.Count != 3 || total.Sum != h.Sum {
		t.Errorf("merged = %+v", total)
	}
	if got := h.Quantile(0.5); got != 150*time.Millisecond {
		t.Errorf("p50 = %v, want 150ms", got)
	}
	if got := (&Histogram{}).Mean(); got != 0 {
		t.Errorf("empty mean = %v", got)
	}
}

func TestMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.Observe(Event{Type: EventScenarioStarted})
	m.Observe(Event{Type: EventStepFinished, Status: StatusPassed, Action: ActClick, Duration: 80 * time.Millisecond})
	m.Observe(Event{Type: EventStepFinished, Status: StatusFailed, Action: ActWait, Duration: time.Second})
	m.Observe(Event{Type: EventConsole, Level: ConsoleLog})
	m.Observe(Event{Type: EventConsole, Level: ConsoleException})

	if got := testutil.ToFloat64(m.active); got != 1 {
		t.Errorf("sessions_active = %v, want 1", got)
	}
	m.Observe(Event{Type: EventScenarioFinished, Status: StatusFailed})

	if got := testutil.ToFloat64(m.active); got != 0 {
		t.Errorf("sessions_active = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.scenarios.WithLabelValues(string(StatusFailed))); got != 1 {
		t.Errorf("scenarios_total{failed} = %v", got)
	}
	if got := testutil.ToFloat64(m.steps.WithLabelValues(string(StatusPassed))); got != 1 {
		t.Errorf("steps_total{passed} = %v", got)
	}
	if got := testutil.ToFloat64(m.consoleErrors); got != 1 {
		t.Errorf("console_errors_total = %v", got)
	}
	if n := testutil.CollectAndCount(m.stepDuration); n != 2 {
		t.Errorf("step_duration_seconds has %d series, want 2", n)
	}
}
