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
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies why a scenario failed.
type ErrorKind string

const (
	KindLocatorNotFound       ErrorKind = "LocatorNotFound"
	KindPostconditionTimeout  ErrorKind = "PostconditionTimeout"
	KindUnexpectedApplication ErrorKind = "UnexpectedApplicationError"
	KindActionFailed          ErrorKind = "ActionFailed"
	KindSessionStart          ErrorKind = "SessionStart"
	KindCanceled              ErrorKind = "Canceled"
)

var (
	ErrLocatorNotFound            = errors.New("locator not found")
	ErrPostconditionTimeout       = errors.New("postcondition timeout")
	ErrUnexpectedApplicationError = errors.New("unexpected application error")
	ErrActionFailed               = errors.New("action failed")
	ErrSessionStart               = errors.New("session start failed")
	ErrCanceled                   = errors.New("scenario canceled")
	ErrSessionClosed              = errors.New("session closed")
	errNoMatch                    = errors.New("no visible element matches")
)

var kindErrors = map[ErrorKind]error{
	KindLocatorNotFound:       ErrLocatorNotFound,
	KindPostconditionTimeout:  ErrPostconditionTimeout,
	KindUnexpectedApplication: ErrUnexpectedApplicationError,
	KindActionFailed:          ErrActionFailed,
	KindSessionStart:          ErrSessionStart,
	KindCanceled:              ErrCanceled,
}

// StepError is the terminal failure of a scenario. Index is -1 when the
// failure happened before the first step (session start).
type StepError struct {
	Index     int
	Name      string
	Kind      ErrorKind
	Reason    string
	Artifacts []string
	Err       error
}

func (e *StepError) Error() string {
	var sb strings.Builder
	if e.Index >= 0 {
		fmt.Fprintf(&sb, "step %d", e.Index)
		if e.Name != "" {
			fmt.Fprintf(&sb, " (%s)", e.Name)
		}
	} else {
		sb.WriteString("scenario setup")
	}
	fmt.Fprintf(&sb, ": %s: %s", e.Kind, e.Reason)
	return sb.String()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e.Kind.
func (e *StepError) Is(target error) bool {
	if s, ok := kindErrors[e.Kind]; ok && s == target {
		return true
	}
	return false
}

// IsKind reports whether err is a StepError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *StepError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

func kindOf(err error) ErrorKind {
	var se *StepError
	if errors.As(err, &se) {
		return se.Kind
	}
	for k, s := range kindErrors {
		if errors.Is(err, s) {
			return k
		}
	}
	return KindActionFailed
}
