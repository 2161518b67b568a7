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

package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/c2FmZQ/storage"

	"github.com/ttbt-io/uicheck/report"
	"github.com/ttbt-io/uicheck/runner"
)

func TestDump(t *testing.T) {
	dir := t.TempDir()
	st := report.NewStore(dir, storage.New(dir, nil))
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, name := range []string{"bot-game", "puzzles"} {
		res := &runner.Result{
			ID:         name + "-run",
			Scenario:   name,
			Status:     runner.StatusPassed,
			FailedStep: -1,
			StartedAt:  start.Add(time.Duration(i) * time.Minute),
			FinishedAt: start.Add(time.Duration(i)*time.Minute + time.Second),
		}
		if err := st.Save(res); err != nil {
			t.Fatal(err)
		}
	}

	var buf bytes.Buffer
	if err := dump(&buf, st, nil); err != nil {
		t.Fatal(err)
	}
	var sums []runner.Summary
	if err := json.Unmarshal(buf.Bytes(), &sums); err != nil {
		t.Fatalf("%v: %s", err, buf.String())
	}
	if len(sums) != 2 || sums[0].Scenario != "puzzles" {
		t.Errorf("summaries = %+v", sums)
	}

	buf.Reset()
	if err := dump(&buf, st, []string{"missing", "bot-game-run"}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "=========== bot-game-run") || strings.Contains(out, "missing") {
		t.Errorf("output = %s", out)
	}
}
