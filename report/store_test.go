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

package report

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c2FmZQ/storage"
	"github.com/c2FmZQ/storage/crypto"

	"github.com/ttbt-io/uicheck/runner"
)

func sampleResult(id, scenario string, status runner.Status) *runner.Result {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	res := &runner.Result{
		ID:         id,
		Scenario:   scenario,
		Tags:       []string{"smoke"},
		BaseURL:    "http://localhost:3000/web-chess-dot-com/",
		Status:     status,
		FailedStep: -1,
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
		Steps: []runner.StepResult{
			{Index: 0, Name: "open home", Action: runner.ActNavigate, Status: runner.StatusPassed},
		},
		Latency: &runner.Histogram{},
	}
	if status == runner.StatusFailed {
		res.FailedStep = 0
		res.ErrorKind = runner.KindLocatorNotFound
		res.Reason = `no visible match for text="Play Bots"`
		res.Artifacts = []string{scenario + "/" + id + "/step-00-failure.png"}
	}
	return res
}

func newTestStore(t *testing.T, mk crypto.MasterKey) *Store {
	t.Helper()
	dir := t.TempDir()
	return NewStore(dir, storage.New(dir, mk))
}

func TestStoreSaveLoad(t *testing.T) {
	mk, err := crypto.CreateAESMasterKeyForTest()
	if err != nil {
		t.Fatal(err)
	}
	for name, key := range map[string]crypto.MasterKey{"Plain": nil, "Encrypted": mk} {
		t.Run(name, func(t *testing.T) {
			st := newTestStore(t, key)
			res := sampleResult("run-1", "bot-game", runner.StatusFailed)
			if err := st.Save(res); err != nil {
				t.Fatalf("Save: %v", err)
			}
			if _, err := os.Stat(filepath.Join(st.DataDir, "runs", "run-1.meta.json")); err != nil {
				t.Errorf("summary sidecar missing: %v", err)
			}

			// A fresh store reads from disk instead of the cache.
			st2 := NewStore(st.DataDir, st.storage)
			got, err := st2.Load("run-1")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got.Scenario != "bot-game" || got.ErrorKind != runner.KindLocatorNotFound || got.Reason != res.Reason || len(got.Steps) != 1 {
				t.Errorf("Load = %+v", got)
			}
			if !got.StartedAt.Equal(res.StartedAt) {
				t.Errorf("StartedAt = %v, want %v", got.StartedAt, res.StartedAt)
			}
			if _, err := st2.Load("nope"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Load(nope) err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStoreDeleteAndPurge(t *testing.T) {
	st := newTestStore(t, nil)
	st.ArtifactDir = t.TempDir()
	res := sampleResult("run/2", "bot-game", runner.StatusFailed)
	if err := st.Save(res); err != nil {
		t.Fatal(err)
	}
	artifacts := filepath.Join(st.ArtifactDir, "bot-game", runner.SanitizeName("run/2"))
	os.MkdirAll(artifacts, 0755)
	os.WriteFile(filepath.Join(artifacts, "step-00-failure.png"), []byte("png"), 0644)

	if err := st.Delete("run/2"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := st.Load("run/2"); !errors.Is(err, ErrDeleted) {
		t.Errorf("Load after delete err = %v, want ErrDeleted", err)
	}
	var deleted []runner.Summary
	for sum, err := range st.List() {
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		deleted = append(deleted, sum)
	}
	if len(deleted) != 1 || !deleted[0].Deleted || deleted[0].Scenario != "bot-game" {
		t.Errorf("List after delete = %+v", deleted)
	}
	if err := st.Delete("run/2"); err != nil {
		t.Errorf("second Delete: %v", err)
	}

	if err := st.Purge("run/2"); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if _, err := os.Stat(artifacts); !os.IsNotExist(err) {
		t.Errorf("artifacts survived purge: %v", err)
	}
	if _, err := st.Load("run/2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after purge err = %v, want ErrNotFound", err)
	}
	if err := st.Purge("never-existed"); err != nil {
		t.Errorf("Purge(never-existed): %v", err)
	}
}

func TestStoreListFallsBackToReport(t *testing.T) {
	st := newTestStore(t, nil)
	for _, res := range []*runner.Result{
		sampleResult("a", "bot-game", runner.StatusPassed),
		sampleResult("b", "puzzles", runner.StatusFailed),
	} {
		if err := st.Save(res); err != nil {
			t.Fatal(err)
		}
	}
	os.Remove(filepath.Join(st.DataDir, "runs", "b.meta.json"))

	got := make(map[string]runner.Summary)
	for sum, err := range st.List() {
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		got[sum.ID] = sum
	}
	if len(got) != 2 || got["b"].Scenario != "puzzles" || got["b"].Status != runner.StatusFailed || got["a"].Duration != 3*time.Second {
		t.Errorf("List = %+v", got)
	}
}

func TestStoreObserve(t *testing.T) {
	st := newTestStore(t, nil)
	res := sampleResult("c", "mobile-menu", runner.StatusPassed)
	st.Observe(runner.Event{Type: runner.EventStepFinished, RunID: "c"})
	st.Observe(runner.Event{Type: runner.EventScenarioFinished, RunID: "c", Result: res})
	if _, err := st.Load("c"); err != nil {
		t.Errorf("Load after Observe: %v", err)
	}
}
