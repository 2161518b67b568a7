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

import "time"

type EventType string

const (
	EventScenarioStarted  EventType = "scenario-started"
	EventStepStarted      EventType = "step-started"
	EventStepFinished     EventType = "step-finished"
	EventConsole          EventType = "console"
	EventArtifact         EventType = "artifact"
	EventScenarioFinished EventType = "scenario-finished"
)

// Event reports progress of a run. Step is -1 for scenario-level events.
type Event struct {
	Type     EventType     `json:"type"`
	RunID    string        `json:"runId"`
	Scenario string        `json:"scenario"`
	Time     time.Time     `json:"time"`
	Step     int           `json:"step"`
	StepName string        `json:"stepName,omitempty"`
	Action   Action        `json:"action,omitempty"`
	Status   Status        `json:"status,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Message  string        `json:"message,omitempty"`
	Level    ConsoleLevel  `json:"level,omitempty"`
	Artifact string        `json:"artifact,omitempty"`
	// Result is set on scenario-finished.
	Result *Result `json:"result,omitempty"`
}

// Observer receives the events of every run of a Runner. Runs may be
// concurrent, so implementations must be safe for concurrent use and
// should not block.
type Observer interface {
	Observe(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }
