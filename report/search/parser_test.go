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

package search

import (
	"reflect"
	"testing"
	"time"

	"github.com/ttbt-io/uicheck/runner"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input    string
		expected Query
	}{
		{
			input: "status:failed",
			expected: Query{
				Filters: []Filter{{Key: "status", Value: "failed", Operator: OpEqual}},
			},
		},
		{
			input: `scenario:"bot game" device:'iphone-12'`,
			expected: Query{
				Filters: []Filter{
					{Key: "scenario", Value: "bot game", Operator: OpEqual},
					{Key: "device", Value: "iphone-12", Operator: OpEqual},
				},
			},
		},
		{
			input: "is:deleted resign",
			expected: Query{
				Filters:  []Filter{{Key: "is", Value: "deleted", Operator: OpEqual}},
				FreeText: []string{"resign"},
			},
		},
		{
			input: `date:>="2026-01-01"`,
			expected: Query{
				Filters: []Filter{{Key: "date", Value: "2026-01-01", Operator: OpGreaterOrEqual}},
			},
		},
		{
			input: "duration:<10s",
			expected: Query{
				Filters: []Filter{{Key: "duration", Value: "10s", Operator: OpLess}},
			},
		},
		{
			input: "date:2026-01..2026-03",
			expected: Query{
				Filters: []Filter{{Key: "date", Value: "2026-01", MaxValue: "2026-03", Operator: OpRange}},
			},
		},
		{
			input: "date:..2026-03",
			expected: Query{
				Filters: []Filter{{Key: "date", MaxValue: "2026-03", Operator: OpRange}},
			},
		},
		{
			input: `Board "Game Review" KIND:LocatorNotFound`,
			expected: Query{
				Filters:  []Filter{{Key: "kind", Value: "LocatorNotFound", Operator: OpEqual}},
				FreeText: []string{"Board", "Game Review"},
			},
		},
		{
			input:    "broken:range:..",
			expected: Query{FreeText: []string{"broken:range:.."}},
		},
		{
			input:    "at:12:00", // unquoted colon
			expected: Query{FreeText: []string{"at:12:00"}},
		},
		{
			input: `at:"12:00"`,
			expected: Query{
				Filters: []Filter{{Key: "at", Value: "12:00", Operator: OpEqual}},
			},
		},
		{
			input:    "tag: ",
			expected: Query{FreeText: []string{"tag:"}},
		},
	}

	for _, tt := range tests {
		got := Parse(tt.input)
		if !reflect.DeepEqual(got, tt.expected) {
			t.Errorf("Parse(%q)\ngot  %#v\nwant %#v", tt.input, got, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	for _, ok := range []string{"", "status:passed", "duration:1s..5s", "steps:>3", "date:..2026-02", "steps:..5", "steps:3..", "steps:2..6", "duration:..5s"} {
		if err := Parse(ok).Validate(); err != nil {
			t.Errorf("Validate(%q): %v", ok, err)
		}
	}
	for _, bad := range []string{"colour:red", "duration:>soon", "steps:many", "steps:x..5", "steps:2..y"} {
		if err := Parse(bad).Validate(); err == nil {
			t.Errorf("Validate(%q) succeeded", bad)
		}
	}
}

func TestMatch(t *testing.T) {
	failed := runner.Summary{
		ID:         "0f8c2a",
		Scenario:   "bot-game",
		Tags:       []string{"smoke", "play"},
		Device:     "desktop",
		Status:     runner.StatusFailed,
		FailedStep: 3,
		ErrorKind:  runner.KindLocatorNotFound,
		Reason:     `no visible match for title="Resign"`,
		StartedAt:  time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC),
		Duration:   12 * time.Second,
		Steps:      4,
	}
	deleted := failed
	deleted.Deleted = true

	tests := []struct {
		query string
		s     runner.Summary
		want  bool
	}{
		{"", failed, true},
		{"", deleted, false},
		{"is:deleted", deleted, true},
		{"is:deleted", failed, false},
		{"status:FAILED", failed, true},
		{"is:passed", failed, false},
		{"scenario:bot", failed, true},
		{"tag:Smoke", failed, true},
		{"tag:mobile", failed, false},
		{"kind:locatornotfound", failed, true},
		{"id:0f8", failed, true},
		{"device:iphone-12", failed, false},
		{"date:2026-02", failed, true},
		{"date:2026-02-14", failed, true},
		{"date:>2026-02-14", failed, false},
		{"date:>=2026-02-01", failed, true},
		{"date:2026-01..2026-02", failed, true},
		{"date:2026-03..", failed, false},
		{"duration:>10s", failed, true},
		{"duration:<=10s", failed, false},
		{"duration:5s..15s", failed, true},
		{"steps:4", failed, true},
		{"steps:<4", failed, false},
		{"steps:..5", failed, true},
		{"steps:..3", failed, false},
		{"steps:4..", failed, true},
		{"resign", failed, true},
		{"resign play", failed, true},
		{"resign checkmate", failed, false},
		{"colour:red", failed, false},
	}
	for _, tc := range tests {
		if got := Match(Parse(tc.query), tc.s); got != tc.want {
			t.Errorf("Match(%q) = %v, want %v", tc.query, got, tc.want)
		}
	}
}
