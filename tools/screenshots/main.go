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

// screenshots captures a reference screenshot of every view of the chess
// web app, for visual review and documentation.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/ttbt-io/uicheck/runner"
	"github.com/ttbt-io/uicheck/runner/catalog"
)

var (
	chromeURL = flag.String("chrome-url", "", "The url of the remote debugging port. A local browser is started when empty.")
	baseURL   = flag.String("base-url", "http://localhost:3000/", "Address of the application")
	outputDir = flag.String("output-dir", "screenshots", "Directory to save screenshots")
	only      = flag.String("only", "", "Comma-separated views to capture (default all)")
	parallel  = flag.Int("parallel", 2, "Number of views captured concurrently")
	debug     = flag.Bool("debug", false, "Enable debug logging")
)

// view is one gallery entry: the steps that reach it, then a screenshot.
type view struct {
	name   string
	device string
	steps  []runner.Step
}

func views() []view {
	return []view{
		{name: "dashboard", steps: runner.Flatten(catalog.OpenHome())},
		{name: "play-bots", steps: runner.Flatten(catalog.OpenHome(), catalog.OpenPlayBots())},
		{name: "game", steps: runner.Flatten(catalog.OpenHome(), catalog.StartBotGame("Martin"), catalog.MakeMove("e2", "e4"))},
		{name: "game-review", steps: runner.Flatten(
			catalog.OpenHome(),
			catalog.StartBotGame("Martin"),
			catalog.Resign(),
			catalog.OpenGameReview(),
		)},
		{name: "puzzles", steps: runner.Flatten(catalog.OpenHome(), catalog.OpenPuzzles())},
		{name: "analysis", steps: runner.Flatten(catalog.OpenAnalysis())},
		{name: "analysis-settings", steps: runner.Flatten(catalog.OpenAnalysis(), catalog.OpenAnalysisSettings())},
		{name: "settings", steps: runner.Flatten(catalog.OpenHome(), catalog.OpenSettings())},
		{name: "mobile-menu", device: "iphone-12", steps: runner.Flatten(catalog.OpenHome(), catalog.OpenMobileMenu())},
	}
}

// galleryScenarios turns the selected views into scenarios. An empty
// selection means all views.
func galleryScenarios(selected []string) ([]runner.Scenario, error) {
	want := make(map[string]bool)
	for _, s := range selected {
		if s = strings.TrimSpace(s); s != "" {
			want[s] = true
		}
	}
	var out []runner.Scenario
	for _, v := range views() {
		if len(want) > 0 && !want[v.name] {
			continue
		}
		delete(want, v.name)
		out = append(out, runner.Scenario{
			Name:   "gallery-" + v.name,
			Tags:   []string{"gallery"},
			Device: v.device,
			Steps:  append(v.steps, runner.Screenshot(v.name)),
		})
	}
	for name := range want {
		return nil, fmt.Errorf("unknown view %q", name)
	}
	return out, nil
}

// collect copies the final screenshot of every passed run to outDir as
// <view>.png and returns the number copied.
func collect(results []*runner.Result, artifactDir, outDir string) (int, error) {
	aw := &runner.ArtifactWriter{Dir: artifactDir}
	n := 0
	for _, res := range results {
		if res == nil || !res.Passed() {
			continue
		}
		name := strings.TrimPrefix(res.Scenario, "gallery-")
		var shot string
		for _, a := range res.Artifacts {
			if strings.HasSuffix(path.Base(a), "-"+name+".png") {
				shot = a
			}
		}
		if shot == "" {
			return n, fmt.Errorf("%s: no screenshot artifact", res.Scenario)
		}
		src, err := aw.Path(shot)
		if err != nil {
			return n, err
		}
		data, err := os.ReadFile(src)
		if err != nil {
			return n, err
		}
		if err := os.WriteFile(filepath.Join(outDir, name+".png"), data, 0644); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func main() {
	flag.Parse()

	var selected []string
	if *only != "" {
		selected = strings.Split(*only, ",")
	}
	scenarios, err := galleryScenarios(selected)
	if err != nil {
		log.Fatal(err)
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output dir: %v", err)
	}
	artifactDir, err := os.MkdirTemp("", "uicheck-gallery-")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(artifactDir)

	cfg := runner.DefaultConfig()
	cfg.BaseURL = *baseURL
	cfg.ChromeURL = *chromeURL
	cfg.ArtifactDir = artifactDir
	cfg.DisableAnimations = true
	cfg.Debug = *debug

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	launcher, err := runner.NewChromeLauncher(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to start browser: %v", err)
	}
	defer launcher.Close()

	rn, err := runner.New(cfg, launcher)
	if err != nil {
		log.Fatal(err)
	}
	log.Println("Starting screenshot generation...")
	results, runErr := rn.RunAll(ctx, scenarios, *parallel)
	for _, res := range results {
		if res != nil && !res.Passed() {
			log.Printf("%s: %s", res.Scenario, res)
		}
	}
	n, err := collect(results, artifactDir, *outputDir)
	if err != nil {
		log.Fatalf("Failed to collect screenshots: %v", err)
	}
	log.Printf("Saved %d of %d screenshots to %s", n, len(scenarios), *outputDir)
	if runErr != nil {
		os.Exit(1)
	}
}
