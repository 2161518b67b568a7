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
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ttbt-io/uicheck/runner"
)

// Keys lists the filter keys Match understands.
var Keys = []string{"date", "device", "duration", "id", "is", "kind", "scenario", "status", "steps", "tag"}

// Validate rejects unknown keys and malformed values.
func (q Query) Validate() error {
	for _, f := range q.Filters {
		if !slices.Contains(Keys, f.Key) {
			return fmt.Errorf("unknown search key %q (known: %s)", f.Key, strings.Join(Keys, ", "))
		}
		switch f.Key {
		case "duration":
			for _, v := range bounds(f) {
				if _, err := time.ParseDuration(v); err != nil {
					return fmt.Errorf("duration: %w", err)
				}
			}
		case "steps":
			for _, v := range bounds(f) {
				if _, err := strconv.Atoi(v); err != nil {
					return fmt.Errorf("steps: %w", err)
				}
			}
		}
	}
	return nil
}

// bounds returns the values of f to validate. Either end of a range may be
// open.
func bounds(f Filter) []string {
	if f.Operator != OpRange {
		return []string{f.Value}
	}
	var out []string
	for _, v := range []string{f.Value, f.MaxValue} {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Match reports whether s satisfies every filter and contains every free
// text word. Deleted runs only match queries with is:deleted.
func Match(q Query, s runner.Summary) bool {
	wantDeleted := false
	for _, f := range q.Filters {
		if f.Key == "is" && strings.EqualFold(f.Value, "deleted") {
			wantDeleted = true
		}
		if !matchFilter(f, s) {
			return false
		}
	}
	if s.Deleted != wantDeleted {
		return false
	}
	if len(q.FreeText) == 0 {
		return true
	}
	hay := strings.ToLower(strings.Join(append([]string{s.ID, s.Scenario, s.Reason, string(s.ErrorKind)}, s.Tags...), " "))
	for _, w := range q.FreeText {
		if !strings.Contains(hay, strings.ToLower(w)) {
			return false
		}
	}
	return true
}

func matchFilter(f Filter, s runner.Summary) bool {
	switch f.Key {
	case "status":
		return strings.EqualFold(string(s.Status), f.Value)
	case "kind":
		return strings.EqualFold(string(s.ErrorKind), f.Value)
	case "device":
		return strings.EqualFold(s.Device, f.Value)
	case "id":
		return strings.HasPrefix(s.ID, f.Value)
	case "scenario":
		return strings.Contains(strings.ToLower(s.Scenario), strings.ToLower(f.Value))
	case "tag":
		return slices.ContainsFunc(s.Tags, func(t string) bool { return strings.EqualFold(t, f.Value) })
	case "is":
		switch strings.ToLower(f.Value) {
		case "deleted":
			return s.Deleted
		case "passed", "failed":
			return strings.EqualFold(string(s.Status), f.Value)
		}
		return false
	case "date":
		// Dates compare on their common prefix, so date:2026-01 covers the month.
		d := s.StartedAt.UTC().Format("2006-01-02")
		return compare(f, func(v string) int {
			return strings.Compare(d[:min(len(d), len(v))], v)
		})
	case "duration":
		return compare(f, func(v string) int {
			want, err := time.ParseDuration(v)
			if err != nil {
				return -2
			}
			return cmp.Compare(s.Duration, want)
		})
	case "steps":
		return compare(f, func(v string) int {
			n, err := strconv.Atoi(v)
			if err != nil {
				return -2
			}
			return cmp.Compare(s.Steps, n)
		})
	}
	return false
}

// compare applies the operator of f to c, which compares the summary field
// with a filter value. c returns -2 for values it cannot parse.
func compare(f Filter, c func(v string) int) bool {
	switch f.Operator {
	case OpRange:
		// Either bound may be open: date:..2026-02
		if f.Value != "" {
			if lo := c(f.Value); lo == -2 || lo < 0 {
				return false
			}
		}
		if f.MaxValue != "" {
			if hi := c(f.MaxValue); hi == -2 || hi > 0 {
				return false
			}
		}
		return true
	}
	r := c(f.Value)
	if r == -2 {
		return false
	}
	switch f.Operator {
	case OpGreater:
		return r > 0
	case OpGreaterOrEqual:
		return r >= 0
	case OpLess:
		return r < 0
	case OpLessOrEqual:
		return r <= 0
	}
	return r == 0
}
