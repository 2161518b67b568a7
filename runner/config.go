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
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	DefaultStepTimeout  = 5 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
	DefaultArtifactDir  = "artifacts"

	// Upper bound for evidence collection after a failure.
	captureTimeout = 10 * time.Second
)

// Viewport describes the emulated screen of a session.
type Viewport struct {
	Width     int64   `json:"width" yaml:"width"`
	Height    int64   `json:"height" yaml:"height"`
	Scale     float64 `json:"scale,omitempty" yaml:"scale,omitempty"`
	Mobile    bool    `json:"mobile,omitempty" yaml:"mobile,omitempty"`
	Touch     bool    `json:"touch,omitempty" yaml:"touch,omitempty"`
	UserAgent string  `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
}

var devices = map[string]Viewport{
	"desktop": {Width: 1280, Height: 720, Scale: 1},
	"laptop":  {Width: 1440, Height: 900, Scale: 1},
	"iphone-12": {
		Width: 390, Height: 844, Scale: 3, Mobile: true, Touch: true,
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 14_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0.3 Mobile/15E148 Safari/604.1",
	},
	"pixel-5": {
		Width: 393, Height: 851, Scale: 2.75, Mobile: true, Touch: true,
		UserAgent: "Mozilla/5.0 (Linux; Android 11; Pixel 5) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/90.0.4430.91 Mobile Safari/537.36",
	},
}

// Device returns the viewport preset with the given name.
func Device(name string) (Viewport, bool) {
	v, ok := devices[strings.ToLower(strings.TrimSpace(name))]
	return v, ok
}

// DeviceNames returns the known device preset names, sorted.
func DeviceNames() []string {
	names := make([]string, 0, len(devices))
	for n := range devices {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Cookie is set on every new session before the first navigation.
type Cookie struct {
	Name   string `json:"name" yaml:"name"`
	Value  string `json:"value" yaml:"value"`
	Domain string `json:"domain,omitempty" yaml:"domain,omitempty"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
	Secure bool   `json:"secure,omitempty" yaml:"secure,omitempty"`
}

// Config holds everything a Runner needs to know about its environment.
// A Config is passed explicitly to each runner; nothing is read from globals.
type Config struct {
	// BaseURL is the address of the application, with or without a trailing
	// path segment, e.g. http://localhost:3000/web-chess-dot-com/
	BaseURL string

	Viewport Viewport
	// Device selects a Viewport preset. It overrides Viewport when set.
	Device string

	DefaultTimeout time.Duration
	PollInterval   time.Duration
	// SettleTime is a pacing delay before each step's polling starts.
	// It is never used as a correctness signal.
	SettleTime time.Duration

	ArtifactDir string

	CaptureConsole     bool
	FailOnConsoleError bool

	// ChromeURL is the remote debugging endpoint of a running browser.
	// When empty, a local browser is started.
	ChromeURL string
	Headless  bool

	DisableAnimations bool
	Cookies           []Cookie

	Debug bool
}

// DefaultConfig returns a Config with the defaults used by the CLI.
func DefaultConfig() Config {
	vp, _ := Device("desktop")
	return Config{
		BaseURL:        "http://localhost:3000/",
		Viewport:       vp,
		DefaultTimeout: DefaultStepTimeout,
		PollInterval:   DefaultPollInterval,
		ArtifactDir:    DefaultArtifactDir,
		CaptureConsole: true,
		Headless:       true,
	}
}

// Validate checks the config and fills in zero values with defaults.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL %q: %w", c.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "file" {
		return fmt.Errorf("unsupported base URL scheme %q", u.Scheme)
	}
	if c.Device != "" {
		vp, ok := Device(c.Device)
		if !ok {
			return fmt.Errorf("unknown device %q (known: %s)", c.Device, strings.Join(DeviceNames(), ", "))
		}
		c.Viewport = vp
	}
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		c.Viewport, _ = Device("desktop")
	}
	if c.Viewport.Scale <= 0 {
		c.Viewport.Scale = 1
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = DefaultStepTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.SettleTime < 0 {
		return fmt.Errorf("settle time must not be negative")
	}
	if c.ArtifactDir == "" {
		c.ArtifactDir = DefaultArtifactDir
	}
	return nil
}

// URL resolves path and fragment against the base URL. An empty path keeps
// the base path. Absolute URLs are returned unchanged, apart from the fragment.
func (c Config) URL(path, fragment string) (string, error) {
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", c.BaseURL, err)
	}
	target := base
	if path != "" {
		ref, err := url.Parse(path)
		if err != nil {
			return "", fmt.Errorf("invalid path %q: %w", path, err)
		}
		if !ref.IsAbs() {
			// Relative paths resolve under the base path, even when the base
			// has no trailing slash.
			if !strings.HasSuffix(base.Path, "/") {
				b := *base
				b.Path += "/"
				base = &b
			}
			ref.Path = strings.TrimPrefix(ref.Path, "/")
		}
		target = base.ResolveReference(ref)
	}
	out := *target
	if fragment != "" {
		out.Fragment = strings.TrimPrefix(fragment, "#")
	}
	return out.String(), nil
}
