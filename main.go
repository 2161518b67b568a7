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

// uicheck runs browser-level UI scenarios against the chess web app and
// reports Passed or Failed(step, reason) for each.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ttbt-io/uicheck/report"
	"github.com/ttbt-io/uicheck/runner"
	"github.com/ttbt-io/uicheck/runner/catalog"
)

const (
	exitPassed = 0
	exitFailed = 1
	exitUsage  = 2

	watchDebounce = 300 * time.Millisecond
)

// stringList is a repeatable flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			*l = append(*l, s)
		}
	}
	return nil
}

type cliOptions struct {
	cfg       runner.Config
	scenarios stringList
	files     stringList
	parallel  int
	list      bool
	jsonOut   string
	serve     string
	dataDir   string
	watch     bool

	useMockAuth    bool
	authCookieName string
	authJWKSURL    string
}

func parseFlags(args []string, stderr io.Writer) (*cliOptions, error) {
	o := &cliOptions{cfg: runner.DefaultConfig()}
	var viewport string
	fs := flag.NewFlagSet("uicheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.cfg.BaseURL, "base-url", o.cfg.BaseURL, "Address of the application under test")
	fs.StringVar(&o.cfg.ChromeURL, "chrome-url", "", "Remote debugging URL of a running browser. A local browser is started when empty.")
	fs.BoolVar(&o.cfg.Headless, "headless", o.cfg.Headless, "Run the local browser headless")
	fs.StringVar(&o.cfg.Device, "device", "", "Device preset: "+strings.Join(runner.DeviceNames(), ", "))
	fs.StringVar(&viewport, "viewport", "", "Viewport as WIDTHxHEIGHT[@SCALE], e.g. 1280x720")
	fs.DurationVar(&o.cfg.DefaultTimeout, "timeout", o.cfg.DefaultTimeout, "Default step timeout")
	fs.DurationVar(&o.cfg.PollInterval, "poll", o.cfg.PollInterval, "Condition polling interval")
	fs.DurationVar(&o.cfg.SettleTime, "settle", 0, "Pacing delay before each step's checks")
	fs.StringVar(&o.cfg.ArtifactDir, "artifacts", o.cfg.ArtifactDir, "Directory for screenshots and failure evidence")
	fs.BoolVar(&o.cfg.CaptureConsole, "console", o.cfg.CaptureConsole, "Capture the browser console")
	fs.BoolVar(&o.cfg.FailOnConsoleError, "fail-on-console-error", false, "Fail the step during which a console error or uncaught exception occurs")
	fs.BoolVar(&o.cfg.DisableAnimations, "disable-animations", false, "Disable CSS animations and transitions in the app")
	fs.IntVar(&o.parallel, "parallel", 1, "Number of scenarios run concurrently")
	fs.Var(&o.scenarios, "scenario", "Built-in scenario name or tag:<tag> (repeatable)")
	fs.Var(&o.files, "file", "Scenario YAML file (repeatable)")
	fs.BoolVar(&o.list, "list", false, "List built-in scenarios and exit")
	fs.StringVar(&o.jsonOut, "json", "", "Write results as JSON to this file, - for stdout")
	fs.StringVar(&o.serve, "serve", "", "Address of the report server, e.g. :8080")
	fs.StringVar(&o.dataDir, "data-dir", "", "Directory for run reports (default \"data\" with -serve)")
	fs.BoolVar(&o.watch, "watch", false, "Re-run -file scenarios when the files change")
	fs.BoolVar(&o.cfg.Debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&o.useMockAuth, "use-mock-auth", false, "Use Mock Authentication on the report server. For testing purposes only.")
	fs.StringVar(&o.authCookieName, "auth-cookie-name", "uicheck_auth", "Name of the cookie containing the JWT")
	fs.StringVar(&o.authJWKSURL, "auth-jwks-url", "", "URL of the JWKS validating auth cookies")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if viewport != "" {
		vp, err := parseViewport(viewport)
		if err != nil {
			return nil, err
		}
		o.cfg.Viewport = vp
	}
	if o.watch && len(o.files) == 0 {
		return nil, errors.New("-watch requires at least one -file")
	}
	if o.serve != "" && o.dataDir == "" {
		o.dataDir = "data"
	}
	if !o.list {
		if err := o.cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// parseViewport parses WIDTHxHEIGHT[@SCALE].
func parseViewport(s string) (runner.Viewport, error) {
	size, scale, hasScale := strings.Cut(s, "@")
	w, h, ok := strings.Cut(size, "x")
	if !ok {
		return runner.Viewport{}, fmt.Errorf("invalid viewport %q: want WIDTHxHEIGHT", s)
	}
	vp := runner.Viewport{Scale: 1}
	var err error
	if vp.Width, err = strconv.ParseInt(w, 10, 64); err != nil || vp.Width <= 0 {
		return runner.Viewport{}, fmt.Errorf("invalid viewport width %q", w)
	}
	if vp.Height, err = strconv.ParseInt(h, 10, 64); err != nil || vp.Height <= 0 {
		return runner.Viewport{}, fmt.Errorf("invalid viewport height %q", h)
	}
	if hasScale {
		if vp.Scale, err = strconv.ParseFloat(scale, 64); err != nil || vp.Scale <= 0 {
			return runner.Viewport{}, fmt.Errorf("invalid viewport scale %q", scale)
		}
	}
	return vp, nil
}

// selectScenarios returns the built-in scenarios named by -scenario, then
// those of every -file. With neither flag, all built-in scenarios run.
func selectScenarios(o *cliOptions) ([]runner.Scenario, error) {
	var out []runner.Scenario
	if len(o.scenarios) > 0 || len(o.files) == 0 {
		scs, err := catalog.Lookup(o.scenarios...)
		if err != nil {
			return nil, err
		}
		out = append(out, scs...)
	}
	if len(o.files) > 0 {
		scs, err := runner.LoadScenarioFiles(o.files...)
		if err != nil {
			return nil, err
		}
		out = append(out, scs...)
	}
	return out, nil
}

func listScenarios(w io.Writer) {
	for _, sc := range catalog.Builtin() {
		device := sc.Device
		if device == "" {
			device = "desktop"
		}
		fmt.Fprintf(w, "%-20s %-10s %-24s %s\n", sc.Name, device, strings.Join(sc.Tags, ","), sc.Description)
	}
}

// printer writes one line per finished scenario.
type printer struct {
	w io.Writer
}

func (p printer) Observe(e runner.Event) {
	if e.Type != runner.EventScenarioFinished || e.Result == nil {
		return
	}
	res := e.Result
	fmt.Fprintf(p.w, "%-20s %s (%s, run %s)\n", res.Scenario, res, res.Duration().Round(time.Millisecond), res.ID)
	for _, a := range res.Artifacts {
		fmt.Fprintf(p.w, "    artifact: %s\n", a)
	}
}

func writeResults(path string, stdout io.Writer, results []*runner.Result) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if path == "-" {
		_, err = stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func exitCode(results []*runner.Result) int {
	for _, res := range results {
		if res == nil || !res.Passed() {
			return exitFailed
		}
	}
	return exitPassed
}

// newLauncher connects the runner to a browser.
var newLauncher = func(ctx context.Context, cfg runner.Config) (runner.Launcher, io.Closer, error) {
	l, err := runner.NewChromeLauncher(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return l, l, nil
}

// realMain runs the CLI and returns its exit status.
func realMain(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "uicheck: %v\n", err)
		}
		return exitUsage
	}
	if o.list {
		listScenarios(stdout)
		return exitPassed
	}
	scenarios, err := selectScenarios(o)
	if err != nil {
		fmt.Fprintf(stderr, "uicheck: %v\n", err)
		return exitUsage
	}

	reg := prometheus.NewRegistry()
	observers := []runner.Observer{printer{w: stdout}, runner.NewMetrics(reg)}

	var store *report.Store
	if o.dataDir != "" {
		s, err := report.OpenStorage(o.dataDir)
		if err != nil {
			fmt.Fprintf(stderr, "uicheck: %v\n", err)
			return exitFailed
		}
		store = report.NewStore(o.dataDir, s)
		store.ArtifactDir = o.cfg.ArtifactDir
		store.Debug = o.cfg.Debug
		observers = append(observers, store)
	}
	var hub *report.Hub
	if o.serve != "" {
		hub = report.NewHub()
		hub.Debug = o.cfg.Debug
		go hub.Run(ctx)
		observers = append(observers, hub)
	}

	launcher, closer, err := newLauncher(ctx, o.cfg)
	if err != nil {
		fmt.Fprintf(stderr, "uicheck: %v\n", err)
		return exitFailed
	}
	defer closer.Close()

	rn, err := runner.New(o.cfg, launcher, runner.WithObserver(observers...))
	if err != nil {
		fmt.Fprintf(stderr, "uicheck: %v\n", err)
		return exitUsage
	}

	if o.serve != "" {
		srv, err := report.StartServer(report.Options{
			Addr:           o.serve,
			DataDir:        o.dataDir,
			Debug:          o.cfg.Debug,
			Store:          store,
			Hub:            hub,
			Runner:         rn,
			Parallel:       o.parallel,
			Gatherer:       reg,
			UseMockAuth:    o.useMockAuth,
			AuthCookieName: o.authCookieName,
			AuthJWKSURL:    o.authJWKSURL,
		})
		if err != nil {
			fmt.Fprintf(stderr, "uicheck: %v\n", err)
			return exitFailed
		}
		defer func() {
			log.Println("Shutting down...")
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				log.Printf("Shutdown error: %v", err)
			} else {
				log.Println("Gracefully stopped.")
			}
		}()
	}

	runOnce := func(ctx context.Context, scenarios []runner.Scenario) int {
		results, err := rn.RunAll(ctx, scenarios, o.parallel)
		if results == nil && err != nil {
			fmt.Fprintf(stderr, "uicheck: %v\n", err)
			return exitUsage
		}
		if o.jsonOut != "" {
			if err := writeResults(o.jsonOut, stdout, results); err != nil {
				fmt.Fprintf(stderr, "uicheck: writing results: %v\n", err)
				return exitFailed
			}
		}
		return exitCode(results)
	}

	if o.watch {
		err := watchScenarioFiles(ctx, o.files, watchDebounce, func(ctx context.Context, scenarios []runner.Scenario) {
			runOnce(ctx, scenarios)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(stderr, "uicheck: %v\n", err)
			return exitFailed
		}
		return exitPassed
	}

	code := runOnce(ctx, scenarios)
	if o.serve != "" {
		log.Printf("Runs finished; serving reports on %s until interrupted.", o.serve)
		<-ctx.Done()
	}
	return code
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := realMain(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
