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

// Package runner drives a web application through scripted UI scenarios in
// isolated browser sessions and reports Passed or Failed(step, reason).
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// Page loads get at least this long, whatever the step timeout.
	navigationTimeout = 30 * time.Second
	// A step running longer than this is reported in the log.
	slowStepWarning = 10 * time.Second
)

const resetStorageJS = `(() => {
	try { window.localStorage.clear(); } catch (e) {}
	try { window.sessionStorage.clear(); } catch (e) {}
	return true;
})()`

// Scenario is a named, ordered list of steps run in one fresh session.
type Scenario struct {
	Name        string
	Description string
	Tags        []string
	// Device and Viewport override the runner's emulation for this
	// scenario. Device wins when both are set.
	Device   string
	Viewport *Viewport
	Steps    []Step
	// Source is the file the scenario was loaded from. Relative golden
	// paths resolve against its directory.
	Source string
}

func (sc Scenario) Validate() error {
	if strings.TrimSpace(sc.Name) == "" {
		return errors.New("scenario has no name")
	}
	if len(sc.Steps) == 0 {
		return errors.New("scenario has no steps")
	}
	if sc.Device != "" {
		if _, ok := Device(sc.Device); !ok {
			return fmt.Errorf("unknown device %q", sc.Device)
		}
	}
	for i, st := range sc.Steps {
		if err := st.Validate(); err != nil {
			return fmt.Errorf("step %d (%s): %w", i, st.Describe(), err)
		}
	}
	return nil
}

// HasTag reports whether the scenario carries tag.
func (sc Scenario) HasTag(tag string) bool {
	for _, t := range sc.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

type Option func(*Runner)

// WithObserver adds observers that receive the events of every run.
func WithObserver(obs ...Observer) Option {
	return func(r *Runner) {
		r.observers = append(r.observers, obs...)
	}
}

// WithArtifactWriter replaces the writer derived from Config.ArtifactDir.
func WithArtifactWriter(w *ArtifactWriter) Option {
	return func(r *Runner) {
		r.artifacts = w
	}
}

// WithIDGenerator replaces the run ID generator.
func WithIDGenerator(f func() string) Option {
	return func(r *Runner) {
		r.newID = f
	}
}

// Runner executes scenarios. It holds no per-run state and is safe for
// concurrent use.
type Runner struct {
	cfg       Config
	launcher  Launcher
	artifacts *ArtifactWriter
	observers []Observer
	newID     func() string
}

func New(cfg Config, launcher Launcher, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if launcher == nil {
		return nil, errors.New("launcher is required")
	}
	r := &Runner{
		cfg:       cfg,
		launcher:  launcher,
		artifacts: &ArtifactWriter{Dir: cfg.ArtifactDir},
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Runner) Config() Config {
	return r.cfg
}

func (r *Runner) Artifacts() *ArtifactWriter {
	return r.artifacts
}

// run is the state of one scenario execution.
type run struct {
	id   string
	sc   Scenario
	cfg  Config
	sess Session
	res  *Result
}

func (rn *run) logf(tag string, step int, format string, args ...any) {
	prefix := fmt.Sprintf("[%s] run=%s scenario=%s", tag, rn.id, rn.sc.Name)
	if step >= 0 {
		prefix += fmt.Sprintf(" step=%d", step)
	}
	log.Printf(prefix+": "+format, args...)
}

func (r *Runner) scenarioConfig(sc Scenario) Config {
	cfg := r.cfg
	switch {
	case sc.Device != "":
		cfg.Device = sc.Device
		cfg.Viewport, _ = Device(sc.Device)
	case sc.Viewport != nil:
		cfg.Device = ""
		cfg.Viewport = *sc.Viewport
		if cfg.Viewport.Scale <= 0 {
			cfg.Viewport.Scale = 1
		}
	}
	return cfg
}

// Run executes sc in a new session. The returned error is nil if and only
// if the scenario passed; for a failed run it is the *StepError also stored
// in res.Err. The session is closed exactly once, on every path.
func (r *Runner) Run(ctx context.Context, sc Scenario) (res *Result, err error) {
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %q: %w", sc.Name, err)
	}
	cfg := r.scenarioConfig(sc)
	rn := &run{id: r.newID(), sc: sc, cfg: cfg}
	rn.res = &Result{
		ID:       rn.id,
		Scenario: sc.Name,
		Tags:     sc.Tags,
		Device:   cfg.Device,
		BaseURL:  cfg.BaseURL,
		Status:   StatusNotStarted,
		Steps:    make([]StepResult, 0, len(sc.Steps)),
		Latency:  &Histogram{},
	}

	rn.res.Status = StatusRunning
	rn.res.StartedAt = time.Now()
	rn.logf("RUN", -1, "started, %d steps", len(sc.Steps))
	r.emit(rn, Event{Type: EventScenarioStarted, Step: -1, Status: StatusRunning})

	sess, serr := r.launcher.NewSession(ctx, cfg)
	if serr != nil {
		kind := KindSessionStart
		if ctx.Err() != nil {
			kind = KindCanceled
		}
		r.fail(rn, &StepError{Index: -1, Kind: kind, Reason: serr.Error(), Err: serr})
		r.finish(rn)
		return rn.res, rn.res.Err
	}
	rn.sess = sess

	var closeOnce sync.Once
	teardown := func() {
		closeOnce.Do(func() {
			if err := sess.Close(); err != nil {
				rn.logf("RUN", -1, "teardown: %v", err)
			}
		})
	}
	defer func() {
		if p := recover(); p != nil {
			if rn.res.Status == StatusRunning {
				r.fail(rn, &StepError{Index: len(rn.res.Steps), Kind: KindActionFailed, Reason: fmt.Sprintf("panic: %v", p), Err: ErrActionFailed})
			}
		}
		teardown()
		r.finish(rn)
		res, err = rn.res, rn.res.Err
	}()

	for i, st := range sc.Steps {
		if !r.step(ctx, rn, i, st) {
			break
		}
	}
	if rn.res.Status == StatusRunning {
		rn.res.Status = StatusPassed
	}
	return rn.res, rn.res.Err
}

// step runs one step and records its result. It reports whether the
// scenario may continue.
func (r *Runner) step(ctx context.Context, rn *run, i int, st Step) bool {
	name := st.Describe()
	start := time.Now()
	rn.logf("STEP", i, "%s", name)
	r.emit(rn, Event{Type: EventStepStarted, Step: i, StepName: name, Action: st.Action, Status: StatusRunning})

	done := make(chan struct{})
	go func() {
		select {
		case <-done:
		case <-time.After(slowStepWarning):
			rn.logf("STEP", i, "%s: still running after %v", name, slowStepWarning)
		}
	}()
	artifacts, serr := r.performSafely(ctx, rn, i, st)
	close(done)

	if cerr := r.collectConsole(rn, i); serr == nil {
		serr = cerr
	}

	sr := StepResult{
		Index:     i,
		Name:      name,
		Action:    st.Action,
		Status:    StatusPassed,
		StartedAt: start,
		Duration:  time.Since(start),
		Artifacts: artifacts,
	}
	if serr != nil {
		serr.Index = i
		serr.Name = name
		captured := r.captureFailure(ctx, rn, i)
		if !hasScreenshot(captured) {
			serr.Reason += " (failure screenshot unavailable)"
		}
		serr.Artifacts = captured
		sr.Status = StatusFailed
		sr.Reason = serr.Reason
		sr.Artifacts = append(sr.Artifacts, captured...)
	}
	rn.res.Steps = append(rn.res.Steps, sr)
	rn.res.Latency.Add(sr.Duration)
	r.emit(rn, Event{Type: EventStepFinished, Step: i, StepName: name, Action: st.Action, Status: sr.Status, Duration: sr.Duration, Message: sr.Reason})

	if serr != nil {
		r.fail(rn, serr)
		return false
	}
	rn.logf("STEP", i, "%s: passed in %v", name, sr.Duration.Round(time.Millisecond))
	return true
}

// performSafely runs perform and turns a panic into an ActionFailed error,
// so that the step still gets its evidence and result.
func (r *Runner) performSafely(ctx context.Context, rn *run, i int, st Step) (artifacts []string, serr *StepError) {
	defer func() {
		if p := recover(); p != nil {
			rn.logf("STEP", i, "panic: %v", p)
			serr = &StepError{
				Kind:   KindActionFailed,
				Reason: fmt.Sprintf("panic: %v", p),
				Err:    fmt.Errorf("%w: panic: %v", ErrActionFailed, p),
			}
		}
	}()
	return r.perform(ctx, rn, i, st)
}

func hasScreenshot(paths []string) bool {
	for _, p := range paths {
		if strings.HasSuffix(p, ".png") {
			return true
		}
	}
	return false
}

func canceled(err error) *StepError {
	return &StepError{Kind: KindCanceled, Reason: err.Error(), Err: err}
}

// perform runs the phases of a step: settle, resolve targets, act, then
// wait for post-conditions.
func (r *Runner) perform(ctx context.Context, rn *run, i int, st Step) ([]string, *StepError) {
	if err := ctx.Err(); err != nil {
		return nil, canceled(err)
	}
	timeout := st.Timeout
	if timeout <= 0 {
		timeout = rn.cfg.DefaultTimeout
	}
	settle := st.Settle
	if settle <= 0 {
		settle = rn.cfg.SettleTime
	}
	if settle > 0 {
		t := time.NewTimer(settle)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, canceled(ctx.Err())
		case <-t.C:
		}
	}

	sess := rn.sess
	if st.Action.needsTarget() || !st.Target.IsZero() {
		if serr := r.resolve(ctx, rn, st.Target, timeout); serr != nil {
			return nil, serr
		}
	}
	if st.Action == ActDrag {
		if serr := r.resolve(ctx, rn, st.To, timeout); serr != nil {
			return nil, serr
		}
	}

	var artifacts []string
	actTimeout := timeout
	if st.Action == ActNavigate || st.Action == ActResetStorage {
		actTimeout = max(timeout, navigationTimeout)
	}
	actx, cancel := context.WithTimeout(ctx, actTimeout)
	defer cancel()

	var err error
	expects := st.Expects
	switch st.Action {
	case ActNavigate:
		var u string
		if u, err = rn.cfg.URL(st.URL, st.Fragment); err == nil {
			err = sess.Navigate(actx, u)
		}
	case ActClick:
		err = sess.Click(actx, st.Target)
	case ActDoubleClick:
		err = sess.DoubleClick(actx, st.Target)
	case ActHover:
		err = sess.Hover(actx, st.Target)
	case ActFill:
		err = sess.Fill(actx, st.Target, st.Value)
	case ActPress:
		if !st.Target.IsZero() {
			err = sess.Focus(actx, st.Target)
		}
		if err == nil {
			err = sess.Press(actx, st.Value)
		}
	case ActDrag:
		err = sess.Drag(actx, st.Target, st.To)
	case ActEval:
		err = sess.Eval(actx, st.Value, nil)
	case ActScreenshot:
		var buf []byte
		if buf, err = sess.Screenshot(actx); err == nil {
			var p string
			name := fmt.Sprintf("step-%02d-%s.png", i, strings.TrimSuffix(st.Value, ".png"))
			if p, err = r.artifacts.Write(rn.sc.Name, rn.id, name, buf); err == nil {
				artifacts = append(artifacts, p)
				r.addArtifact(rn, i, p)
			}
		}
	case ActResetStorage:
		if err = sess.Eval(actx, resetStorageJS, nil); err == nil {
			var u string
			if u, err = sess.URL(actx); err == nil {
				err = sess.Navigate(actx, u)
			}
		}
	case ActMatchGolden:
		var cond *Condition
		cond, err = r.golden(actx, rn, st)
		if cond != nil {
			expects = append([]Condition{*cond}, expects...)
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return artifacts, canceled(ctx.Err())
		}
		return artifacts, &StepError{
			Kind:   KindActionFailed,
			Reason: fmt.Sprintf("%s failed: %v", st.Action, err),
			Err:    fmt.Errorf("%w: %w", ErrActionFailed, err),
		}
	}

	if len(expects) > 0 {
		if serr := r.await(ctx, rn, expects, timeout); serr != nil {
			return artifacts, serr
		}
	}
	return artifacts, nil
}

// golden returns the condition comparing the step target with its golden
// file, or rewrites the golden file when goldens are being updated.
func (r *Runner) golden(ctx context.Context, rn *run, st Step) (*Condition, error) {
	path := st.Value
	if !filepath.IsAbs(path) && rn.sc.Source != "" {
		path = filepath.Join(filepath.Dir(rn.sc.Source), path)
	}
	if updateGoldens() {
		m, err := rn.sess.Inspect(ctx, st.Target)
		if err != nil {
			return nil, err
		}
		return nil, WriteGolden(path, m.Text)
	}
	want, err := ReadGolden(path)
	if err != nil {
		return nil, err
	}
	c := TextEquals(st.Target, want)
	return &c, nil
}

// resolve polls until l has a visible match.
func (r *Runner) resolve(ctx context.Context, rn *run, l Locator, timeout time.Duration) *StepError {
	var last Match
	var lastErr error
	err := poll(ctx, rn.cfg.PollInterval, timeout, func(ctx context.Context) (bool, error) {
		m, err := rn.sess.Inspect(ctx, l)
		if err != nil {
			lastErr = err
			return false, err
		}
		last, lastErr = m, nil
		return m.Found, nil
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, errWaitTimeout) {
		return canceled(err)
	}
	var detail string
	switch {
	case lastErr != nil:
		detail = "last error: " + lastErr.Error()
	case last.Count == 0:
		detail = "no matching element"
	case last.Visible == 0:
		detail = fmt.Sprintf("%d matching elements, none visible", last.Count)
	default:
		detail = fmt.Sprintf("only %d visible matches", last.Visible)
	}
	return &StepError{
		Kind:   KindLocatorNotFound,
		Reason: fmt.Sprintf("%s not found within %v: %s", l, timeout, detail),
		Err:    fmt.Errorf("%w: %s", ErrLocatorNotFound, l),
	}
}

// await polls until every condition holds.
func (r *Runner) await(ctx context.Context, rn *run, conds []Condition, timeout time.Duration) *StepError {
	var failing Condition
	var detail string
	err := poll(ctx, rn.cfg.PollInterval, timeout, func(ctx context.Context) (bool, error) {
		for _, c := range conds {
			ok, d, err := c.check(ctx, rn.sess)
			if err != nil {
				failing, detail = c, "last error: "+err.Error()
				return false, err
			}
			if !ok {
				failing, detail = c, d
				return false, nil
			}
		}
		return true, nil
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, errWaitTimeout) {
		return canceled(err)
	}
	return &StepError{
		Kind:   KindPostconditionTimeout,
		Reason: fmt.Sprintf("%s not satisfied within %v: %s", failing, timeout, detail),
		Err:    fmt.Errorf("%w: %s", ErrPostconditionTimeout, failing),
	}
}

var errWaitTimeout = errors.New("wait timed out")

// poll calls check immediately and then every interval until it reports
// true. It returns errWaitTimeout when timeout elapses first, or ctx's
// error when ctx ends first.
func poll(ctx context.Context, interval, timeout time.Duration, check func(context.Context) (bool, error)) error {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if ok, err := check(pctx); err == nil && ok {
			return nil
		}
		select {
		case <-pctx.Done():
			if err := ctx.Err(); err != nil {
				return err
			}
			return errWaitTimeout
		case <-ticker.C:
		}
	}
}

// collectConsole logs and records the console messages buffered since the
// last call. Application errors fail the step only with FailOnConsoleError.
func (r *Runner) collectConsole(rn *run, i int) *StepError {
	var first *ConsoleMessage
	for _, m := range rn.sess.DrainConsole() {
		rn.logf("CONSOLE", i, "%s: %s", m.Level, m.Text)
		rn.res.Console = append(rn.res.Console, m)
		r.emit(rn, Event{Type: EventConsole, Step: i, Level: m.Level, Message: m.Text})
		if m.IsError() {
			rn.res.AppErrors++
			if first == nil {
				first = &m
			}
		}
	}
	if first == nil {
		return nil
	}
	rn.logf("RUN", i, "%s: %s", KindUnexpectedApplication, first.Text)
	if !rn.cfg.FailOnConsoleError {
		return nil
	}
	return &StepError{
		Kind:   KindUnexpectedApplication,
		Reason: fmt.Sprintf("%s: %s", first.Level, first.Text),
		Err:    ErrUnexpectedApplicationError,
	}
}

func (r *Runner) captureFailure(ctx context.Context, rn *run, i int) []string {
	fc := FailureCapture{Scenario: rn.sc.Name, RunID: rn.id, Step: i}
	if rn.cfg.CaptureConsole {
		fc.Console = append(make([]ConsoleMessage, 0, len(rn.res.Console)), rn.res.Console...)
	}
	paths, err := r.artifacts.CaptureFailure(ctx, rn.sess, fc)
	if err != nil {
		rn.logf("RUN", i, "failure capture incomplete: %v", err)
	}
	for _, p := range paths {
		r.addArtifact(rn, i, p)
	}
	return paths
}

func (r *Runner) addArtifact(rn *run, i int, p string) {
	rn.res.Artifacts = append(rn.res.Artifacts, p)
	r.emit(rn, Event{Type: EventArtifact, Step: i, Artifact: p})
}

func (r *Runner) fail(rn *run, serr *StepError) {
	res := rn.res
	res.Status = StatusFailed
	res.FailedStep = serr.Index
	res.FailedStepName = serr.Name
	res.ErrorKind = serr.Kind
	res.Reason = serr.Reason
	res.Err = serr
	rn.logf("RUN", -1, "FAILED %v", serr)
}

func (r *Runner) finish(rn *run) {
	rn.res.FinishedAt = time.Now()
	rn.logf("RUN", -1, "%s in %v", rn.res, rn.res.Duration().Round(time.Millisecond))
	r.emit(rn, Event{Type: EventScenarioFinished, Step: -1, Status: rn.res.Status, Duration: rn.res.Duration(), Message: rn.res.Reason, Result: rn.res})
}

func (r *Runner) emit(rn *run, e Event) {
	e.RunID = rn.id
	e.Scenario = rn.sc.Name
	e.Time = time.Now()
	for _, o := range r.observers {
		o.Observe(e)
	}
}

// RunAll runs scenarios with at most parallel concurrent sessions. Results
// are returned in input order. The error joins the errors of all failed
// runs.
func (r *Runner) RunAll(ctx context.Context, scenarios []Scenario, parallel int) ([]*Result, error) {
	for _, sc := range scenarios {
		if err := sc.Validate(); err != nil {
			return nil, fmt.Errorf("invalid scenario %q: %w", sc.Name, err)
		}
	}
	if parallel < 1 {
		parallel = 1
	}
	results := make([]*Result, len(scenarios))
	// A failed scenario must not cancel its siblings, so the group has no
	// shared context.
	var g errgroup.Group
	g.SetLimit(parallel)
	for i, sc := range scenarios {
		g.Go(func() error {
			res, _ := r.Run(ctx, sc)
			results[i] = res
			return nil
		})
	}
	g.Wait()

	var errs []error
	for _, res := range results {
		if res != nil && res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Scenario, res.Err))
		}
	}
	return results, errors.Join(errs...)
}
