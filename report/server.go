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
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/c2FmZQ/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ttbt-io/uicheck/report/search"
	"github.com/ttbt-io/uicheck/runner"
	"github.com/ttbt-io/uicheck/runner/catalog"
)

const retryAfterRun = "30"

func generateETag(data []byte) string {
	return fmt.Sprintf("\"%x\"", sha256.Sum256(data))
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if val, err := strconv.Atoi(o); err == nil {
			offset = val
		}
	}
	if limit < 1 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Options represent server options.
type Options struct {
	Addr     string
	Cert     *tls.Certificate
	Listener net.Listener
	DataDir  string
	Debug    bool

	Storage *storage.Storage
	Store   *Store
	Hub     *Hub
	// Runner, when set, lets authenticated users trigger catalog
	// scenarios. Its observers should include Store and Hub.
	Runner   *runner.Runner
	Parallel int
	// ArtifactDir defaults to the runner's artifact directory.
	ArtifactDir string
	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	UseMockAuth    bool
	AuthCookieName string
	AuthJWKSURL    string
}

type api struct {
	opts  Options
	store *Store
	hub   *Hub

	ctx     context.Context
	cancel  context.CancelFunc
	running chan struct{}
	wg      sync.WaitGroup
}

// Server represents the running server instance.
type Server struct {
	httpServer *http.Server
	api        *api
}

// Shutdown stops the HTTP server, then cancels triggered runs and waits for
// them to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.api.cancel()
	done := make(chan struct{})
	go func() {
		s.api.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = errors.Join(err, fmt.Errorf("triggered runs: %w", ctx.Err()))
	}
	return err
}

// StartServer starts the report server.
func StartServer(opts Options) (*Server, error) {
	a := newAPI(context.Background(), opts)
	httpServer := &http.Server{
		Addr:    opts.Addr,
		Handler: a.handler(),
	}
	if opts.Cert != nil {
		httpServer.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{*opts.Cert},
		}
	}

	ln := opts.Listener
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", opts.Addr); err != nil {
			a.cancel()
			return nil, fmt.Errorf("listen: %w", err)
		}
	}
	go func() {
		var err error
		if httpServer.TLSConfig != nil {
			log.Printf("Starting HTTPS report server on %s...", ln.Addr())
			err = httpServer.ServeTLS(ln, "", "")
		} else {
			log.Printf("Starting HTTP report server on %s...", ln.Addr())
			err = httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, net.ErrClosed) && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()
	return &Server{httpServer: httpServer, api: a}, nil
}

// NewHandler returns the report server's handler. The hub it starts and the
// runs triggered through it stop when ctx is done.
func NewHandler(ctx context.Context, opts Options) http.Handler {
	return newAPI(ctx, opts).handler()
}

func newAPI(ctx context.Context, opts Options) *api {
	if opts.DataDir == "" {
		opts.DataDir = "data"
	}
	if opts.Storage == nil {
		opts.Storage = storage.New(opts.DataDir, nil)
	}
	if opts.Store == nil {
		opts.Store = NewStore(opts.DataDir, opts.Storage)
	}
	if opts.ArtifactDir == "" {
		switch {
		case opts.Store.ArtifactDir != "":
			opts.ArtifactDir = opts.Store.ArtifactDir
		case opts.Runner != nil:
			opts.ArtifactDir = opts.Runner.Artifacts().Dir
		}
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	a := &api{
		opts:    opts,
		store:   opts.Store,
		hub:     opts.Hub,
		running: make(chan struct{}, 1),
	}
	a.ctx, a.cancel = context.WithCancel(ctx)
	if a.hub == nil {
		a.hub = NewHub()
		a.hub.Debug = opts.Debug
		go a.hub.Run(a.ctx)
	}
	return a
}

func (a *api) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/me", a.handleMe)
	mux.HandleFunc("GET /api/runs", a.handleListRuns)
	mux.HandleFunc("POST /api/runs", requireUser(a.handleTriggerRuns))
	mux.HandleFunc("GET /api/runs/{id}", a.handleGetRun)
	mux.HandleFunc("DELETE /api/runs/{id}", requireUser(a.handleDeleteRun))
	mux.HandleFunc("GET /api/runs/{id}/artifacts/{name}", a.handleArtifact)
	mux.HandleFunc("GET /api/scenarios", a.handleScenarios)
	mux.HandleFunc("GET /ws", a.hub.ServeWS)
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.opts.Gatherer, promhttp.HandlerOpts{}))

	handler := http.Handler(mux)
	if a.opts.UseMockAuth {
		handler = mockAuthMiddleware(handler)
	} else {
		handler = jwtAuthMiddleware(a.opts, handler)
	}
	if a.opts.Debug {
		handler = loggingMiddleware(handler)
	}
	handler = securityMiddleware(handler)
	handler = cacheControlMiddleware(handler)
	return handler
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func (a *api) handleMe(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r)
	if userID == "" {
		http.Error(w, "Unauthenticated", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": userID})
}

// RunList is the response of GET /api/runs.
type RunList struct {
	Runs   []runner.Summary `json:"runs"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

func (a *api) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := search.Parse(r.URL.Query().Get("q"))
	if err := q.Validate(); err != nil {
		http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
		return
	}
	limit, offset := parsePagination(r)

	matches := []runner.Summary{}
	for sum, err := range a.store.List() {
		if err != nil {
			log.Printf("Error listing runs: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if search.Match(q, sum) {
			matches = append(matches, sum)
		}
	}
	slices.SortFunc(matches, func(x, y runner.Summary) int {
		if c := y.StartedAt.Compare(x.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(x.ID, y.ID)
	})

	total := len(matches)
	start := min(offset, total)
	end := min(start+limit, total)
	writeJSON(w, http.StatusOK, RunList{
		Runs:   matches[start:end],
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// loadRun writes the error response itself when the run cannot be loaded.
func (a *api) loadRun(w http.ResponseWriter, id string) (*runner.Result, bool) {
	res, err := a.store.Load(id)
	switch {
	case err == nil:
		return res, true
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrDeleted):
		http.Error(w, "Not Found: Run not found", http.StatusNotFound)
	default:
		log.Printf("Error loading run %s: %v", id, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
	return nil, false
}

func (a *api) handleGetRun(w http.ResponseWriter, r *http.Request) {
	res, ok := a.loadRun(w, r.PathValue("id"))
	if !ok {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		log.Printf("Error encoding run %s: %v", res.ID, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	etag := generateETag(data)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (a *api) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	purge := r.URL.Query().Get("purge") == "true"
	var err error
	if purge {
		err = a.store.Purge(id)
	} else {
		err = a.store.Delete(id)
	}
	if err != nil {
		log.Printf("Error deleting run %s: %v", id, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	log.Printf("[REPORT] run %s deleted by %s (purge=%v)", id, maskEmail(UserID(r)), purge)
	w.WriteHeader(http.StatusNoContent)
}

func artifactContentType(name string) string {
	switch path.Ext(name) {
	case ".png":
		return "image/png"
	case ".json":
		return "application/json"
	default:
		// DOM dumps are served as text so they never run in the dashboard's
		// origin.
		return "text/plain; charset=utf-8"
	}
}

func (a *api) handleArtifact(w http.ResponseWriter, r *http.Request) {
	res, ok := a.loadRun(w, r.PathValue("id"))
	if !ok {
		return
	}
	name := r.PathValue("name")
	i := slices.IndexFunc(res.Artifacts, func(rel string) bool { return path.Base(rel) == name })
	if i < 0 || a.opts.ArtifactDir == "" {
		http.Error(w, "Not Found: Artifact not found", http.StatusNotFound)
		return
	}
	aw := &runner.ArtifactWriter{Dir: a.opts.ArtifactDir}
	full, err := aw.Path(res.Artifacts[i])
	if err != nil {
		http.Error(w, "Not Found: Artifact not found", http.StatusNotFound)
		return
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "Not Found: Artifact not found", http.StatusNotFound)
			return
		}
		log.Printf("Error reading artifact %s: %v", full, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	etag := generateETag(data)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", artifactContentType(name))
	w.Write(data)
}

// ScenarioInfo describes a built-in scenario.
type ScenarioInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Device      string   `json:"device,omitempty"`
	Steps       int      `json:"steps"`
}

func (a *api) handleScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios := catalog.Builtin()
	out := make([]ScenarioInfo, 0, len(scenarios))
	for _, sc := range scenarios {
		out = append(out, ScenarioInfo{
			Name:        sc.Name,
			Description: sc.Description,
			Tags:        sc.Tags,
			Device:      sc.Device,
			Steps:       len(sc.Steps),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// TriggerRequest is the body of POST /api/runs. Names may be scenario
// names or tag:<tag> selectors.
type TriggerRequest struct {
	Scenarios []string `json:"scenarios"`
}

func (a *api) handleTriggerRuns(w http.ResponseWriter, r *http.Request) {
	rn := a.opts.Runner
	if rn == nil {
		http.Error(w, "Not Implemented: no runner configured", http.StatusNotImplemented)
		return
	}
	var req TriggerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if len(req.Scenarios) == 0 {
		http.Error(w, "Bad Request: no scenarios", http.StatusBadRequest)
		return
	}
	scenarios, err := catalog.Lookup(req.Scenarios...)
	if err != nil {
		http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
		return
	}

	select {
	case a.running <- struct{}{}:
	default:
		w.Header().Set("Retry-After", retryAfterRun)
		http.Error(w, "Too Many Requests: a batch is already running", http.StatusTooManyRequests)
		return
	}
	names := make([]string, len(scenarios))
	for i, sc := range scenarios {
		names[i] = sc.Name
	}
	log.Printf("[REPORT] %s triggered %s", maskEmail(UserID(r)), strings.Join(names, ", "))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() { <-a.running }()
		if _, err := rn.RunAll(a.ctx, scenarios, a.opts.Parallel); err != nil {
			log.Printf("[REPORT] triggered batch failed: %v", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, TriggerRequest{Scenarios: names})
}

// cacheControlMiddleware keeps API responses out of shared caches.
func cacheControlMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "private, no-cache, no-transform")
		next.ServeHTTP(w, r)
	})
}

// securityMiddleware adds HTTP security headers to responses.
func securityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; img-src 'self'")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs the method and URL path of every incoming HTTP request.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("Received request: %s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
