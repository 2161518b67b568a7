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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const scenarioYAML = `
name: mobile-menu
description: Opens the mobile menu and searches lessons.
tags: [mobile, smoke]
device: iphone-12
timeout: 3s
steps:
  - action: navigate
    expect:
      - visible: {css: ".fixed.bottom-0 button", hasText: More}
  - name: open more
    action: click
    target: {css: ".fixed.bottom-0 button", hasText: More}
    settle: 250ms
    expect:
      - visible: {placeholder: Search}
  - action: fill
    target: {placeholder: Search}
    value: Lessons
    expect:
      - value: {target: {placeholder: Search}, value: Lessons}
      - value-not: {target: {placeholder: Search}, value: Generating...}
  - action: press
    value: Enter
    timeout: 10s
    expect:
      - text: Lessons
      - text-equals: {target: {testid: result-count}, text: "3 results"}
      - count: {target: {class: lesson-card}, count: 3}
      - url: "#learn"
      - script: window.appReady === true
      - hidden: {class: cursor-wait}
---
name: move
steps:
  - action: drag
    target: {square: e2}
    to: {square: e4}
  - action: click
    target: Game Review
  - action: match-golden
    target: {testid: move-list, in: {role: region, name: Moves}}
    value: goldens/moves.txt
`

func TestParseScenarios(t *testing.T) {
	scs, err := ParseScenarios(strings.NewReader(scenarioYAML), "testdata/menu.yaml")
	if err != nil {
		t.Fatalf("ParseScenarios: %v", err)
	}
	if len(scs) != 2 {
		t.Fatalf("got %d scenarios, want 2", len(scs))
	}

	menu := scs[0]
	if menu.Name != "mobile-menu" || menu.Device != "iphone-12" || !menu.HasTag("SMOKE") || menu.Source != "testdata/menu.yaml" {
		t.Errorf("scenario = %+v", menu)
	}
	if len(menu.Steps) != 4 {
		t.Fatalf("len(Steps) = %d", len(menu.Steps))
	}
	more := menu.Steps[1]
	if more.Name != "open more" || more.Target.CSS != ".fixed.bottom-0 button" || more.Target.HasText != "More" || more.Settle != 250*time.Millisecond {
		t.Errorf("step 1 = %+v", more)
	}
	if more.Timeout != 3*time.Second {
		t.Errorf("step 1 timeout = %v, want scenario default 3s", more.Timeout)
	}
	press := menu.Steps[3]
	if press.Timeout != 10*time.Second || len(press.Expects) != 6 {
		t.Fatalf("step 3 = %+v", press)
	}
	kinds := []ConditionKind{CondText, CondTextEquals, CondCount, CondURL, CondScript, CondHidden}
	for i, k := range kinds {
		if press.Expects[i].Kind != k {
			t.Errorf("condition %d kind = %s, want %s", i, press.Expects[i].Kind, k)
		}
	}
	if c := press.Expects[1]; c.Target.TestID != "result-count" || c.Text != "3 results" {
		t.Errorf("text-equals = %+v", c)
	}
	if c := press.Expects[2]; c.Count != 3 || c.Target.Class != "lesson-card" {
		t.Errorf("count = %+v", c)
	}

	fill := menu.Steps[2]
	if len(fill.Expects) != 2 {
		t.Fatalf("step 2 = %+v", fill)
	}
	if c := fill.Expects[0]; c.Kind != CondValue || c.Text != "Lessons" || c.Target.Placeholder != "Search" {
		t.Errorf("value = %+v", c)
	}
	if c := fill.Expects[1]; c.Kind != CondValueNot || c.Text != "Generating..." {
		t.Errorf("value-not = %+v", c)
	}

	move := scs[1]
	if got := move.Steps[0]; got.Target.String() != `[data-square="e2"]` || got.To.String() != `[data-square="e4"]` {
		t.Errorf("drag = %s -> %s", got.Target, got.To)
	}
	if got := move.Steps[1].Target; got.Text != "Game Review" || got.Exact {
		t.Errorf("scalar target = %+v", got)
	}
	if got := move.Steps[2].Target; got.Within == nil || got.Within.Role != "region" {
		t.Errorf("nested target = %+v", got)
	}
}

func TestParseScenariosErrors(t *testing.T) {
	tests := map[string]struct {
		doc  string
		want string
	}{
		"UnknownAction": {
			doc:  "name: x\nsteps:\n  - action: teleport\n",
			want: "x.yaml:3",
		},
		"MissingTarget": {
			doc:  "name: x\nsteps:\n  - action: navigate\n  - action: click\n",
			want: "step 1",
		},
		"BadDuration": {
			doc:  "name: x\nsteps:\n  - action: navigate\n    timeout: soon\n",
			want: "soon",
		},
		"UnknownField": {
			doc:  "name: x\nstesp: []\n",
			want: "stesp",
		},
		"BadCondition": {
			doc:  "name: x\nsteps:\n  - action: navigate\n    expect:\n      - shiny: yes\n",
			want: "unknown condition",
		},
		"NoSteps": {
			doc:  "name: x\ndescription: nothing to do\n",
			want: "no steps",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseScenarios(strings.NewReader(tc.doc), "x.yaml")
			if err == nil {
				t.Fatal("ParseScenarios succeeded")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %q, want it to mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	os.WriteFile(a, []byte("name: a\nsteps:\n  - action: navigate\n"), 0644)
	os.WriteFile(b, []byte("---\nname: b\nsteps:\n  - action: navigate\n    fragment: analysis\n"), 0644)

	scs, err := LoadScenarioFiles(a, b)
	if err != nil {
		t.Fatalf("LoadScenarioFiles: %v", err)
	}
	if len(scs) != 2 || scs[0].Name != "a" || scs[1].Steps[0].Fragment != "analysis" || scs[1].Source != b {
		t.Errorf("scenarios = %+v", scs)
	}
	if _, err := LoadScenarioFiles(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file loaded")
	}
}
