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
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// ChromeLauncher starts sessions in one Chrome instance, either a remote one
// reached through its debugging endpoint or a local process. Every session
// gets its own browser context, so cookies and storage are never shared.
type ChromeLauncher struct {
	browserCtx context.Context
	cancel     context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewChromeLauncher connects to or starts the browser described by cfg.
func NewChromeLauncher(ctx context.Context, cfg Config) (*ChromeLauncher, error) {
	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if cfg.ChromeURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, cfg.ChromeURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
			chromedp.WindowSize(int(cfg.Viewport.Width), int(cfg.Viewport.Height)),
		)
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	}
	ctxOpts := []chromedp.ContextOption{chromedp.WithErrorf(log.Printf)}
	if cfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithLogf(log.Printf))
	}
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, ctxOpts...)
	// Allocates the browser and its first tab. Session tabs are created in
	// their own browser contexts next to it.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: browser: %w", ErrSessionStart, err)
	}
	return &ChromeLauncher{
		browserCtx: browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
	}, nil
}

// Close closes all sessions and releases the browser.
func (l *ChromeLauncher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	err := chromedp.Cancel(l.browserCtx)
	l.cancel()
	return err
}

func (l *ChromeLauncher) NewSession(ctx context.Context, cfg Config) (Session, error) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("%w: launcher closed", ErrSessionStart)
	}

	sctx, cancel := chromedp.NewContext(l.browserCtx, chromedp.WithNewBrowserContext())
	s := &chromeSession{ctx: sctx, cancel: cancel, cfg: cfg}
	if cfg.CaptureConsole {
		chromedp.ListenTarget(sctx, s.onEvent)
	}

	// The first Run creates the target. It must not be bound to ctx, whose
	// cancellation would tear the tab down with it.
	errc := make(chan error, 1)
	go func() { errc <- chromedp.Run(sctx) }()
	select {
	case err := <-errc:
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("%w: %w", ErrSessionStart, err)
		}
	case <-ctx.Done():
		s.Close()
		return nil, fmt.Errorf("%w: %w", ErrSessionStart, ctx.Err())
	}

	if err := s.run(ctx, s.setup()...); err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: setup: %w", ErrSessionStart, err)
	}
	return s, nil
}

type chromeSession struct {
	ctx     context.Context
	cancel  context.CancelFunc
	cfg     Config
	console consoleBuffer

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Applied to every document before page scripts run, so transitions never
// race with post-condition polling.
const disableAnimationsJS = `(() => {
	const install = () => {
		const style = document.createElement('style');
		style.innerHTML = '*,*::before,*::after{-webkit-transition-duration:0s!important;transition-duration:0s!important;-webkit-animation-duration:0s!important;animation-duration:0s!important;}';
		document.head.appendChild(style);
	};
	if (document.head) install(); else document.addEventListener('DOMContentLoaded', install);
})()`

func (s *chromeSession) setup() []chromedp.Action {
	vp := s.cfg.Viewport
	actions := []chromedp.Action{
		emulation.SetDeviceMetricsOverride(vp.Width, vp.Height, vp.Scale, vp.Mobile),
	}
	if vp.Touch {
		actions = append(actions, emulation.SetTouchEmulationEnabled(true))
	}
	if vp.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(vp.UserAgent))
	}
	if s.cfg.DisableAnimations {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(disableAnimationsJS).Do(ctx)
			return err
		}))
	}
	var host string
	if u, err := url.Parse(s.cfg.BaseURL); err == nil {
		host = u.Hostname()
	}
	for _, c := range s.cfg.Cookies {
		domain, path := c.Domain, c.Path
		if domain == "" {
			domain = host
		}
		if path == "" {
			path = "/"
		}
		actions = append(actions, network.SetCookie(c.Name, c.Value).
			WithDomain(domain).
			WithPath(path).
			WithSecure(c.Secure))
	}
	return actions
}

func (s *chromeSession) onEvent(ev any) {
	switch ev := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		args := make([]string, 0, len(ev.Args))
		for _, arg := range ev.Args {
			args = append(args, remoteObjectText(arg))
		}
		s.console.add(consoleLevel(ev.Type), strings.Join(args, " "))
	case *runtime.EventExceptionThrown:
		d := ev.ExceptionDetails
		text := d.Text
		if d.Exception != nil && d.Exception.Description != "" {
			text += " " + d.Exception.Description
		}
		s.console.add(ConsoleException, text)
	}
}

func consoleLevel(t runtime.APIType) ConsoleLevel {
	switch t {
	case runtime.APITypeError, runtime.APITypeAssert:
		return ConsoleError
	case runtime.APITypeWarning:
		return ConsoleWarning
	case runtime.APITypeInfo:
		return ConsoleInfo
	}
	return ConsoleLog
}

func remoteObjectText(o *runtime.RemoteObject) string {
	if o == nil {
		return ""
	}
	if len(o.Value) > 0 {
		var s string
		if err := json.Unmarshal(o.Value, &s); err == nil {
			return s
		}
		return string(o.Value)
	}
	if o.Description != "" {
		return o.Description
	}
	return string(o.Type)
}

// run executes actions in the session's tab, bounded by ctx.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	rctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	err := chromedp.Run(rctx, actions...)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w (%w)", ctx.Err(), err)
	}
	return err
}

func (s *chromeSession) Navigate(ctx context.Context, target string) error {
	cur, err := s.URL(ctx)
	if err == nil {
		switch sameDocument(cur, target) {
		case sameURL:
			return s.run(ctx, chromedp.Reload())
		case fragmentOnly:
			u, _ := url.Parse(target)
			frag, _ := json.Marshal("#" + u.EscapedFragment())
			return s.run(ctx, chromedp.Evaluate(fmt.Sprintf("window.location.hash = %s", frag), nil))
		}
	}
	return s.run(ctx, chromedp.Navigate(target))
}

type navKind int

const (
	newDocument navKind = iota
	fragmentOnly
	sameURL
)

// sameDocument classifies a navigation from cur to next. Fragment-only
// changes never fire a load event.
func sameDocument(cur, next string) navKind {
	a, err1 := url.Parse(cur)
	b, err2 := url.Parse(next)
	if err1 != nil || err2 != nil || a.Scheme == "about" || b.Fragment == "" {
		return newDocument
	}
	if a.Scheme != b.Scheme || a.Host != b.Host || a.Path != b.Path || a.RawQuery != b.RawQuery {
		return newDocument
	}
	if a.Fragment == b.Fragment {
		return sameURL
	}
	return fragmentOnly
}

func (s *chromeSession) URL(ctx context.Context) (string, error) {
	var u string
	err := s.run(ctx, chromedp.Location(&u))
	return u, err
}

func (s *chromeSession) locate(ctx context.Context, l Locator, mode, arg string) (Match, error) {
	var m Match
	script, err := l.Script(mode, arg)
	if err != nil {
		return m, err
	}
	if err := s.run(ctx, chromedp.Evaluate(script, &m)); err != nil {
		return m, err
	}
	return m, nil
}

func (s *chromeSession) Inspect(ctx context.Context, l Locator) (Match, error) {
	return s.locate(ctx, l, inspectMode, "")
}

// target scrolls the Nth visible match of l into view and returns its center.
func (s *chromeSession) target(ctx context.Context, l Locator) (Match, error) {
	m, err := s.locate(ctx, l, scrollMode, "")
	if err != nil {
		return m, err
	}
	if !m.Found {
		return m, fmt.Errorf("%w: %s", errNoMatch, l)
	}
	return m, nil
}

func (s *chromeSession) Click(ctx context.Context, l Locator) error {
	m, err := s.target(ctx, l)
	if err != nil {
		return err
	}
	return s.run(ctx, chromedp.MouseClickXY(m.X, m.Y))
}

func (s *chromeSession) DoubleClick(ctx context.Context, l Locator) error {
	m, err := s.target(ctx, l)
	if err != nil {
		return err
	}
	return s.run(ctx, chromedp.MouseClickXY(m.X, m.Y, chromedp.ClickCount(2)))
}

func (s *chromeSession) Hover(ctx context.Context, l Locator) error {
	m, err := s.target(ctx, l)
	if err != nil {
		return err
	}
	return s.run(ctx, chromedp.MouseEvent(input.MouseMoved, m.X, m.Y))
}

func (s *chromeSession) Focus(ctx context.Context, l Locator) error {
	m, err := s.locate(ctx, l, focusMode, "")
	if err != nil {
		return err
	}
	if !m.Found {
		return fmt.Errorf("%w: %s", errNoMatch, l)
	}
	return nil
}

func (s *chromeSession) Fill(ctx context.Context, l Locator, value string) error {
	m, err := s.locate(ctx, l, fillMode, value)
	if err != nil {
		return err
	}
	if !m.Found {
		return fmt.Errorf("%w: %s", errNoMatch, l)
	}
	return nil
}

var namedKeys = map[string]string{
	"enter":      kb.Enter,
	"tab":        kb.Tab,
	"escape":     kb.Escape,
	"backspace":  kb.Backspace,
	"delete":     kb.Delete,
	"arrowleft":  kb.ArrowLeft,
	"arrowright": kb.ArrowRight,
	"arrowup":    kb.ArrowUp,
	"arrowdown":  kb.ArrowDown,
	"home":       kb.Home,
	"end":        kb.End,
	"pageup":     kb.PageUp,
	"pagedown":   kb.PageDown,
	"space":      " ",
}

func (s *chromeSession) Press(ctx context.Context, key string) error {
	if k, ok := namedKeys[strings.ToLower(key)]; ok {
		key = k
	}
	return s.run(ctx, chromedp.KeyEvent(key))
}

const dragSteps = 10

// chromedp encodes PNG only at quality 100.
const fullScreenshotQuality = 100

func (s *chromeSession) Drag(ctx context.Context, from, to Locator) error {
	src, err := s.target(ctx, from)
	if err != nil {
		return err
	}
	dst, err := s.Inspect(ctx, to)
	if err != nil {
		return err
	}
	if !dst.Found {
		return fmt.Errorf("%w: %s", errNoMatch, to)
	}
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := input.DispatchMouseEvent(input.MouseMoved, src.X, src.Y).Do(ctx); err != nil {
			return err
		}
		if err := input.DispatchMouseEvent(input.MousePressed, src.X, src.Y).
			WithButton(input.Left).WithButtons(1).WithClickCount(1).Do(ctx); err != nil {
			return err
		}
		for i := 1; i <= dragSteps; i++ {
			x := src.X + (dst.X-src.X)*float64(i)/dragSteps
			y := src.Y + (dst.Y-src.Y)*float64(i)/dragSteps
			if err := input.DispatchMouseEvent(input.MouseMoved, x, y).
				WithButton(input.Left).WithButtons(1).Do(ctx); err != nil {
				return err
			}
		}
		return input.DispatchMouseEvent(input.MouseReleased, dst.X, dst.Y).
			WithButton(input.Left).WithClickCount(1).Do(ctx)
	}))
}

func (s *chromeSession) Eval(ctx context.Context, script string, res any) error {
	return s.run(ctx, chromedp.Evaluate(script, res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
}

// Screenshot captures the whole page, beyond the viewport, as PNG.
func (s *chromeSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.FullScreenshot(&buf, fullScreenshotQuality)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, chromedp.Evaluate(`document.documentElement ? document.documentElement.outerHTML : ''`, &html))
	return html, err
}

func (s *chromeSession) DrainConsole() []ConsoleMessage {
	return s.console.drain()
}

func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if err := chromedp.Cancel(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.closeErr = err
		}
		s.cancel()
	})
	return s.closeErr
}
