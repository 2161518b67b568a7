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

// Action is the kind of interaction a Step performs.
type Action string

const (
	ActNavigate     Action = "navigate"
	ActClick        Action = "click"
	ActDoubleClick  Action = "dblclick"
	ActHover        Action = "hover"
	ActFill         Action = "fill"
	ActPress        Action = "press"
	ActDrag         Action = "drag"
	ActWait         Action = "wait"
	ActScreenshot   Action = "screenshot"
	ActEval         Action = "eval"
	ActMatchGolden  Action = "match-golden"
	ActResetStorage Action = "reset-storage"
)

var knownActions = map[Action]bool{
	ActNavigate: true, ActClick: true, ActDoubleClick: true, ActHover: true,
	ActFill: true, ActPress: true, ActDrag: true, ActWait: true,
	ActScreenshot: true, ActEval: true, ActMatchGolden: true, ActResetStorage: true,
}

// needsTarget reports whether the action acts on an element.
func (a Action) needsTarget() bool {
	switch a {
	case ActClick, ActDoubleClick, ActHover, ActFill, ActDrag, ActMatchGolden:
		return true
	}
	return false
}

// Step is one unit of a scenario: an action on an optional target, followed
// by post-conditions that must all hold before the step passes.
type Step struct {
	Name   string
	Action Action
	Target Locator
	// To is the drop target of a drag.
	To Locator
	// URL and Fragment are resolved against Config.BaseURL by navigate.
	URL      string
	Fragment string
	// Value is the text for fill, the key for press, the script for eval,
	// the artifact name for screenshot and the golden file for match-golden.
	Value   string
	Expects []Condition
	// Settle is a pacing delay before the step starts. It never replaces a
	// post-condition.
	Settle time.Duration
	// Timeout bounds target resolution and post-condition polling. Zero
	// means Config.DefaultTimeout.
	Timeout time.Duration
}

func Navigate(path string) Step {
	return Step{Action: ActNavigate, URL: path}
}

// Open navigates to the base URL with the given fragment, e.g. Open("analysis").
func Open(fragment string) Step {
	return Step{Action: ActNavigate, Fragment: fragment}
}

func Click(target Locator) Step {
	return Step{Action: ActClick, Target: target}
}

func DoubleClick(target Locator) Step {
	return Step{Action: ActDoubleClick, Target: target}
}

func Hover(target Locator) Step {
	return Step{Action: ActHover, Target: target}
}

func Fill(target Locator, text string) Step {
	return Step{Action: ActFill, Target: target, Value: text}
}

// Press sends a key to the focused element, or to target when it is set.
func Press(key string, target ...Locator) Step {
	st := Step{Action: ActPress, Value: key}
	if len(target) > 0 {
		st.Target = target[0]
	}
	return st
}

// Drag presses the mouse on from, moves to to and releases it there.
func Drag(from, to Locator) Step {
	return Step{Action: ActDrag, Target: from, To: to}
}

// WaitFor performs no action and waits for all conds.
func WaitFor(conds ...Condition) Step {
	return Step{Action: ActWait, Expects: conds}
}

func Screenshot(name string) Step {
	return Step{Action: ActScreenshot, Value: name}
}

func Eval(script string) Step {
	return Step{Action: ActEval, Value: script}
}

// MatchGolden compares the text of target with the contents of file.
func MatchGolden(target Locator, file string) Step {
	return Step{Action: ActMatchGolden, Target: target, Value: file}
}

// ResetStorage clears local and session storage and reloads the page.
func ResetStorage() Step {
	return Step{Action: ActResetStorage}
}

func (s Step) Expect(conds ...Condition) Step {
	s.Expects = append(append([]Condition(nil), s.Expects...), conds...)
	return s
}

func (s Step) Within(d time.Duration) Step {
	s.Timeout = d
	return s
}

func (s Step) SettleFor(d time.Duration) Step {
	s.Settle = d
	return s
}

func (s Step) Named(name string) Step {
	s.Name = name
	return s
}

// Describe returns the step name, or a generated description.
func (s Step) Describe() string {
	if s.Name != "" {
		return s.Name
	}
	switch s.Action {
	case ActNavigate:
		switch {
		case s.URL != "" && s.Fragment != "":
			return fmt.Sprintf("navigate %s#%s", s.URL, s.Fragment)
		case s.Fragment != "":
			return "navigate #" + s.Fragment
		default:
			return "navigate " + s.URL
		}
	case ActFill:
		return fmt.Sprintf("fill %s with %q", s.Target, s.Value)
	case ActPress:
		if !s.Target.IsZero() {
			return fmt.Sprintf("press %s on %s", s.Value, s.Target)
		}
		return "press " + s.Value
	case ActDrag:
		return fmt.Sprintf("drag %s to %s", s.Target, s.To)
	case ActWait:
		if len(s.Expects) == 1 {
			return "wait for " + s.Expects[0].String()
		}
		return fmt.Sprintf("wait for %d conditions", len(s.Expects))
	case ActScreenshot:
		return "screenshot " + s.Value
	case ActEval:
		return "eval"
	case ActMatchGolden:
		return fmt.Sprintf("match %s against %s", s.Target, s.Value)
	case ActResetStorage:
		return "reset storage"
	}
	return fmt.Sprintf("%s %s", s.Action, s.Target)
}

// Validate reports structural problems that would make the step fail for
// reasons unrelated to the application.
func (s Step) Validate() error {
	if !knownActions[s.Action] {
		return fmt.Errorf("unknown action %q", s.Action)
	}
	if s.Action.needsTarget() && s.Target.IsZero() {
		return fmt.Errorf("%s needs a target", s.Action)
	}
	if s.Action == ActDrag && s.To.IsZero() {
		return fmt.Errorf("drag needs a drop target")
	}
	switch s.Action {
	case ActPress, ActEval, ActScreenshot, ActMatchGolden:
		if s.Value == "" {
			return fmt.Errorf("%s needs a value", s.Action)
		}
	case ActWait:
		if len(s.Expects) == 0 {
			return fmt.Errorf("wait needs at least one condition")
		}
	}
	if s.Timeout < 0 || s.Settle < 0 {
		return fmt.Errorf("negative duration")
	}
	for i, c := range s.Expects {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}
	return nil
}

// Sequence concatenates step groups into one flat list.
func Sequence(groups ...[]Step) []Step {
	var out []Step
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// Flatten accepts Steps and []Step in any mix and returns one flat list.
// Other values panic.
func Flatten(parts ...any) []Step {
	var out []Step
	for _, p := range parts {
		switch v := p.(type) {
		case Step:
			out = append(out, v)
		case []Step:
			out = append(out, v...)
		default:
			panic(fmt.Sprintf("runner.Flatten: unsupported %T", p))
		}
	}
	return out
}
