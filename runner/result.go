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
	"fmt"
	"time"
)

// Status is the state of a scenario run or of a single step.
type Status string

const (
	StatusNotStarted Status = "NotStarted"
	StatusRunning    Status = "Running"
	StatusPassed     Status = "Passed"
	StatusFailed     Status = "Failed"
)

type StepResult struct {
	Index     int           `json:"index"`
	Name      string        `json:"name"`
	Action    Action        `json:"action"`
	Status    Status        `json:"status"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Reason    string        `json:"reason,omitempty"`
	Artifacts []string      `json:"artifacts,omitempty"`
}

// Result is the outcome of one scenario run.
type Result struct {
	ID       string   `json:"id"`
	Scenario string   `json:"scenario"`
	Tags     []string `json:"tags,omitempty"`
	Device   string   `json:"device,omitempty"`
	BaseURL  string   `json:"baseUrl"`
	Status   Status   `json:"status"`

	// FailedStep, FailedStepName, ErrorKind and Reason are set when Status
	// is Failed. FailedStep is -1 when the session could not be started.
	FailedStep     int       `json:"failedStep"`
	FailedStepName string    `json:"failedStepName,omitempty"`
	ErrorKind      ErrorKind `json:"errorKind,omitempty"`
	Reason         string    `json:"reason,omitempty"`

	Artifacts []string         `json:"artifacts,omitempty"`
	Steps     []StepResult     `json:"steps"`
	Console   []ConsoleMessage `json:"console,omitempty"`
	// AppErrors counts console errors and uncaught exceptions.
	AppErrors int `json:"appErrors"`

	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt time.Time  `json:"finishedAt"`
	Latency    *Histogram `json:"latency,omitempty"`

	// Err is the terminal *StepError of a failed run.
	Err error `json:"-"`
}

func (r *Result) Passed() bool {
	return r.Status == StatusPassed
}

func (r *Result) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// String renders the outcome as Passed or Failed(step, reason).
func (r *Result) String() string {
	if r.Status == StatusFailed {
		return fmt.Sprintf("Failed(%d, %s: %s)", r.FailedStep, r.ErrorKind, r.Reason)
	}
	return string(r.Status)
}

// Summary is the small, listable part of a Result.
type Summary struct {
	ID         string        `json:"id"`
	Scenario   string        `json:"scenario"`
	Tags       []string      `json:"tags,omitempty"`
	Device     string        `json:"device,omitempty"`
	Status     Status        `json:"status"`
	FailedStep int           `json:"failedStep"`
	ErrorKind  ErrorKind     `json:"errorKind,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
	Steps      int           `json:"steps"`
	Artifacts  int           `json:"artifacts"`
	AppErrors  int           `json:"appErrors"`
	Deleted    bool          `json:"deleted,omitempty"`
}

func (r *Result) Summary() Summary {
	return Summary{
		ID:         r.ID,
		Scenario:   r.Scenario,
		Tags:       r.Tags,
		Device:     r.Device,
		Status:     r.Status,
		FailedStep: r.FailedStep,
		ErrorKind:  r.ErrorKind,
		Reason:     r.Reason,
		StartedAt:  r.StartedAt,
		Duration:   r.Duration(),
		Steps:      len(r.Steps),
		Artifacts:  len(r.Artifacts),
		AppErrors:  r.AppErrors,
	}
}
