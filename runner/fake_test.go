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
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeElement is an element of the fake page, keyed by locator string.
type fakeElement struct {
	Text  string
	Count int // defaults to 1
	// AppearAt is the offset from session start at which the element
	// becomes visible.
	AppearAt time.Duration
	Hidden   bool
	// Value is the form value; it becomes LateValue at ValueAt, if set.
	Value     string
	LateValue string
	ValueAt   time.Duration
}

// fakeSession is an in-memory page. Elements appear on a schedule relative
// to session start, and clicks may run hooks that change the page.
type fakeSession struct {
	mu         sync.Mutex
	start      time.Time
	url        string
	elements   map[string]fakeElement
	onClick    map[string]func(*fakeSession)
	scripts    map[string]bool
	console    []ConsoleMessage
	inspectErr error
	panicOn    string
	actions    []string
	closed     bool

	closes atomic.Int32
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		start:    time.Now(),
		url:      "about:blank",
		elements: make(map[string]fakeElement),
		onClick:  make(map[string]func(*fakeSession)),
		scripts:  make(map[string]bool),
	}
}

func (s *fakeSession) set(l Locator, e fakeElement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elements[l.String()] = e
}

func (s *fakeSession) logConsole(level ConsoleLevel, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.console = append(s.console, ConsoleMessage{Level: level, Text: text, Time: time.Now()})
}

func (s *fakeSession) history() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.actions...)
}

func (s *fakeSession) Navigate(ctx context.Context, u string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.url = u
	s.actions = append(s.actions, "navigate "+u)
	return nil
}

func (s *fakeSession) URL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url, nil
}

func (s *fakeSession) Inspect(ctx context.Context, l Locator) (Match, error) {
	if err := ctx.Err(); err != nil {
		return Match{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Match{}, ErrSessionClosed
	}
	if s.inspectErr != nil {
		return Match{}, s.inspectErr
	}
	e, ok := s.elements[l.String()]
	if !ok {
		return Match{}, nil
	}
	n := e.Count
	if n == 0 {
		n = 1
	}
	m := Match{Count: n, Text: normalizeText(e.Text), Value: e.Value}
	if e.ValueAt > 0 && time.Since(s.start) >= e.ValueAt {
		m.Value = e.LateValue
	}
	if !e.Hidden && time.Since(s.start) >= e.AppearAt {
		m.Visible = n
		m.Found = true
	}
	return m, nil
}

func (s *fakeSession) act(verb string, l Locator) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.panicOn != "" && s.panicOn == l.String() {
		s.mu.Unlock()
		panic("fake session: " + verb)
	}
	e, ok := s.elements[l.String()]
	if !ok || e.Hidden || time.Since(s.start) < e.AppearAt {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", errNoMatch, l)
	}
	s.actions = append(s.actions, verb+" "+l.String())
	hook := s.onClick[l.String()]
	s.mu.Unlock()
	if hook != nil && verb == "click" {
		hook(s)
	}
	return nil
}

func (s *fakeSession) Click(ctx context.Context, l Locator) error       { return s.act("click", l) }
func (s *fakeSession) DoubleClick(ctx context.Context, l Locator) error { return s.act("dblclick", l) }
func (s *fakeSession) Hover(ctx context.Context, l Locator) error       { return s.act("hover", l) }
func (s *fakeSession) Focus(ctx context.Context, l Locator) error       { return s.act("focus", l) }

func (s *fakeSession) Fill(ctx context.Context, l Locator, value string) error {
	if err := s.act("fill", l); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.elements[l.String()]
	e.Text = value
	e.Value = value
	s.elements[l.String()] = e
	return nil
}

func (s *fakeSession) Press(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, "press "+key)
	return nil
}

func (s *fakeSession) Drag(ctx context.Context, from, to Locator) error {
	if err := s.act("drag", from); err != nil {
		return err
	}
	return s.act("drop", to)
}

func (s *fakeSession) Eval(ctx context.Context, script string, res any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, "eval "+script)
	if p, ok := res.(*bool); ok {
		*p = s.scripts[script]
	}
	return nil
}

func (s *fakeSession) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte("\x89PNG fake"), nil
}

func (s *fakeSession) HTML(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("<html><body data-url=%q></body></html>", s.url), nil
}

func (s *fakeSession) DrainConsole() []ConsoleMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.console
	s.console = nil
	return out
}

func (s *fakeSession) Close() error {
	s.closes.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// fakeLauncher hands out sessions built by setup, one per run.
type fakeLauncher struct {
	mu       sync.Mutex
	setup    func(*fakeSession)
	err      error
	sessions []*fakeSession
}

func (l *fakeLauncher) NewSession(ctx context.Context, cfg Config) (Session, error) {
	if l.err != nil {
		return nil, l.err
	}
	s := newFakeSession()
	if l.setup != nil {
		l.setup(s)
	}
	l.mu.Lock()
	l.sessions = append(l.sessions, s)
	l.mu.Unlock()
	return s, nil
}

func (l *fakeLauncher) all() []*fakeSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*fakeSession(nil), l.sessions...)
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BaseURL = "http://app.test/web-chess-dot-com/"
	cfg.ArtifactDir = t.TempDir()
	cfg.PollInterval = 20 * time.Millisecond
	cfg.DefaultTimeout = 500 * time.Millisecond
	return cfg
}

func newTestRunner(t *testing.T, cfg Config, l Launcher, opts ...Option) *Runner {
	t.Helper()
	r, err := New(cfg, l, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

// recorder collects events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Observe(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []EventType
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
