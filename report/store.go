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

// Package report stores run results and serves them over HTTP.
package report

import (
	"errors"
	"fmt"
	"iter"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/c2FmZQ/storage"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ttbt-io/uicheck/runner"
)

const (
	runsDir      = "runs"
	reportCache  = 256
	reportSuffix = ".json"
	metaSuffix   = ".meta.json"
)

var (
	ErrNotFound = errors.New("report not found")
	ErrDeleted  = errors.New("report deleted")
)

// Report is the on-disk record of one run. A deleted run keeps its record
// as a tombstone with a nil Result.
type Report struct {
	ID        string         `json:"id"`
	Result    *runner.Result `json:"result,omitempty"`
	DeletedAt int64          `json:"deletedAt,omitempty"`
}

// Store persists run reports. Each report has a sidecar holding its
// runner.Summary so listing never reads full reports.
type Store struct {
	DataDir string
	// ArtifactDir, when set, is where the runner wrote artifacts. Purge
	// removes the run's artifacts from it.
	ArtifactDir string
	Debug       bool

	storage *storage.Storage
	mu      sync.Map // id -> *sync.RWMutex
	cache   *lru.Cache[string, *runner.Result]
}

// NewStore returns a Store writing under dataDir through s.
func NewStore(dataDir string, s *storage.Storage) *Store {
	cache, _ := lru.New[string, *runner.Result](reportCache)
	return &Store{
		DataDir: dataDir,
		storage: s,
		cache:   cache,
	}
}

func (st *Store) lock(id string) *sync.RWMutex {
	m, _ := st.mu.LoadOrStore(id, &sync.RWMutex{})
	return m.(*sync.RWMutex)
}

func reportFile(id string) string {
	return filepath.Join(runsDir, url.PathEscape(id)+reportSuffix)
}

func metaFile(id string) string {
	return filepath.Join(runsDir, url.PathEscape(id)+metaSuffix)
}

// Save writes res and its summary.
func (st *Store) Save(res *runner.Result) error {
	if res == nil || res.ID == "" {
		return errors.New("result has no id")
	}
	mutex := st.lock(res.ID)
	mutex.Lock()
	defer mutex.Unlock()

	if err := st.storage.SaveDataFile(reportFile(res.ID), &Report{ID: res.ID, Result: res}); err != nil {
		return fmt.Errorf("storage.SaveDataFile: %w", err)
	}
	meta := res.Summary()
	if err := st.storage.SaveDataFile(metaFile(res.ID), &meta); err != nil {
		// List falls back to the report itself.
		log.Printf("Warning: Failed to save summary sidecar for run %s: %v", res.ID, err)
	}
	st.cache.Add(res.ID, res)
	return nil
}

// Load returns the result of run id.
func (st *Store) Load(id string) (*runner.Result, error) {
	if res, ok := st.cache.Get(id); ok {
		if st.Debug {
			log.Printf("[CACHE] Hit for run %s", id)
		}
		return res, nil
	}
	rep, err := st.loadReport(id)
	if err != nil {
		return nil, err
	}
	if rep.Result == nil {
		return nil, fmt.Errorf("%w: %s", ErrDeleted, id)
	}
	st.cache.Add(id, rep.Result)
	return rep.Result, nil
}

func (st *Store) loadReport(id string) (*Report, error) {
	mutex := st.lock(id)
	mutex.RLock()
	defer mutex.RUnlock()

	var rep Report
	if err := st.storage.ReadDataFile(reportFile(id), &rep); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("ReadDataFile: %w", err)
	}
	return &rep, nil
}

// Delete replaces the report of id with a tombstone. Deleting a missing
// report is not an error.
func (st *Store) Delete(id string) error {
	res, err := st.Load(id)
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDeleted) {
		return nil
	}
	if err != nil {
		return err
	}

	mutex := st.lock(id)
	mutex.Lock()
	defer mutex.Unlock()

	tombstone := &Report{ID: id, DeletedAt: time.Now().UnixNano()}
	if err := st.storage.SaveDataFile(reportFile(id), tombstone); err != nil {
		return fmt.Errorf("storage.SaveDataFile (tombstone): %w", err)
	}
	meta := res.Summary()
	meta.Deleted = true
	if err := st.storage.SaveDataFile(metaFile(id), &meta); err != nil {
		log.Printf("Warning: Failed to save summary tombstone for run %s: %v", id, err)
	}
	st.cache.Remove(id)
	return nil
}

// Purge removes every trace of run id, including its artifacts.
func (st *Store) Purge(id string) error {
	sum, sumErr := st.summary(id)

	mutex := st.lock(id)
	mutex.Lock()
	defer mutex.Unlock()

	st.cache.Remove(id)
	if err := os.Remove(filepath.Join(st.DataDir, reportFile(id))); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not purge report file: %w", err)
	}
	if err := os.Remove(filepath.Join(st.DataDir, metaFile(id))); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not purge summary of run %s: %v", id, err)
	}
	if st.ArtifactDir != "" && sumErr == nil {
		dir := filepath.Join(st.ArtifactDir, runner.SanitizeName(sum.Scenario), runner.SanitizeName(id))
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("could not purge artifacts: %w", err)
		}
	}
	st.mu.Delete(id)
	return nil
}

// summary reads the sidecar of id, or derives it from the report.
func (st *Store) summary(id string) (runner.Summary, error) {
	mutex := st.lock(id)
	mutex.RLock()
	var meta runner.Summary
	err := st.storage.ReadDataFile(metaFile(id), &meta)
	mutex.RUnlock()
	if err == nil {
		return meta, nil
	}
	rep, rerr := st.loadReport(id)
	if rerr != nil {
		return runner.Summary{}, rerr
	}
	if rep.Result == nil {
		return runner.Summary{ID: id, Deleted: true}, nil
	}
	return rep.Result.Summary(), nil
}

// List yields the summaries of all stored runs, deleted ones included, in
// no particular order.
func (st *Store) List() iter.Seq2[runner.Summary, error] {
	return func(yield func(runner.Summary, error) bool) {
		files, err := os.ReadDir(filepath.Join(st.DataDir, runsDir))
		if err != nil {
			if !os.IsNotExist(err) {
				yield(runner.Summary{}, fmt.Errorf("could not read runs directory: %w", err))
			}
			return
		}
		ids := make(map[string]bool)
		for _, f := range files {
			name := f.Name()
			if f.IsDir() {
				continue
			}
			var enc string
			switch {
			case strings.HasSuffix(name, metaSuffix):
				enc = strings.TrimSuffix(name, metaSuffix)
			case strings.HasSuffix(name, reportSuffix):
				enc = strings.TrimSuffix(name, reportSuffix)
			default:
				continue
			}
			if id, err := url.PathUnescape(enc); err == nil {
				ids[id] = true
			}
		}
		for id := range ids {
			sum, err := st.summary(id)
			if err != nil {
				log.Printf("Warning: could not load run %s: %v", id, err)
				continue
			}
			if !yield(sum, nil) {
				return
			}
		}
	}
}

// Observe saves results as runs finish.
func (st *Store) Observe(e runner.Event) {
	if e.Type != runner.EventScenarioFinished || e.Result == nil {
		return
	}
	if err := st.Save(e.Result); err != nil {
		log.Printf("[REPORT] run=%s scenario=%s: save failed: %v", e.RunID, e.Scenario, err)
	}
}
