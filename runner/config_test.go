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
	"strings"
	"testing"
	"time"
)

func TestConfigURL(t *testing.T) {
	tests := []struct {
		base, path, fragment string
		want                 string
	}{
		{"http://localhost:3000/web-chess-dot-com/", "", "", "http://localhost:3000/web-chess-dot-com/"},
		{"http://localhost:3000/web-chess-dot-com/", "", "analysis", "http://localhost:3000/web-chess-dot-com/#analysis"},
		{"http://localhost:3000/web-chess-dot-com/", "", "#analysis", "http://localhost:3000/web-chess-dot-com/#analysis"},
		{"http://localhost:3000/web-chess-dot-com", "", "analysis", "http://localhost:3000/web-chess-dot-com#analysis"},
		{"http://localhost:3000/web-chess-dot-com", "puzzles", "", "http://localhost:3000/web-chess-dot-com/puzzles"},
		{"http://localhost:3000/web-chess-dot-com/", "/puzzles", "", "http://localhost:3000/web-chess-dot-com/puzzles"},
		{"http://localhost:3000", "", "", "http://localhost:3000"},
		{"http://localhost:3000", "play", "bots", "http://localhost:3000/play#bots"},
		{"http://localhost:3000/app/", "https://example.com/x", "y", "https://example.com/x#y"},
	}
	for _, tc := range tests {
		cfg := Config{BaseURL: tc.base}
		got, err := cfg.URL(tc.path, tc.fragment)
		if err != nil {
			t.Errorf("URL(%q, %q) on %q: %v", tc.path, tc.fragment, tc.base, err)
			continue
		}
		if got != tc.want {
			t.Errorf("URL(%q, %q) on %q = %q, want %q", tc.path, tc.fragment, tc.base, got, tc.want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg := Config{BaseURL: "http://localhost:3000/"}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if cfg.DefaultTimeout != DefaultStepTimeout || cfg.PollInterval != DefaultPollInterval || cfg.ArtifactDir != DefaultArtifactDir {
			t.Errorf("defaults not applied: %+v", cfg)
		}
		if cfg.Viewport.Width != 1280 || cfg.Viewport.Scale != 1 {
			t.Errorf("Viewport = %+v", cfg.Viewport)
		}
	})

	t.Run("Device", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Device = "iPhone-12"
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if !cfg.Viewport.Mobile || !cfg.Viewport.Touch || cfg.Viewport.Width != 390 || !strings.Contains(cfg.Viewport.UserAgent, "iPhone") {
			t.Errorf("Viewport = %+v", cfg.Viewport)
		}
	})

	for name, mutate := range map[string]func(*Config){
		"NoBaseURL":      func(c *Config) { c.BaseURL = "" },
		"BadScheme":      func(c *Config) { c.BaseURL = "ftp://x/" },
		"UnknownDevice":  func(c *Config) { c.Device = "nokia-3310" },
		"NegativeSettle": func(c *Config) { c.SettleTime = -time.Second },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate succeeded, want error")
			}
		})
	}
}

func TestDeviceNames(t *testing.T) {
	names := DeviceNames()
	want := []string{"desktop", "iphone-12", "laptop", "pixel-5"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("DeviceNames() = %v, want %v", names, want)
	}
}
