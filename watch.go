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
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ttbt-io/uicheck/runner"
)

// watchScenarioFiles runs the scenarios of paths once, then again every time
// one of the files changes, until ctx is done. Bursts of events within
// debounce trigger a single run. A file that fails to parse is reported and
// skipped until it changes again. Runs never overlap.
func watchScenarioFiles(ctx context.Context, paths []string, debounce time.Duration, run func(context.Context, []runner.Scenario)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer w.Close()

	// Editors often replace files instead of writing them, so the
	// directories are watched and events filtered by name.
	watched := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		watched[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		dirs[dir] = true
	}

	load := func() {
		scenarios, err := runner.LoadScenarioFiles(paths...)
		if err != nil {
			log.Printf("[WATCH] %v", err)
			return
		}
		run(ctx, scenarios)
	}

	load()
	log.Printf("[WATCH] watching %d file(s)", len(watched))

	timer := time.NewTimer(debounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil || !watched[abs] {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Printf("[WATCH] watcher error: %v", err)
		case <-timer.C:
			log.Printf("[WATCH] change detected, re-running")
			load()
		}
	}
}
