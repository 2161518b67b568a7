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
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

var ErrArtifactExists = errors.New("artifact already exists")

// ArtifactWriter stores run evidence under Dir. Artifacts are write-once:
// writing the same name twice fails.
type ArtifactWriter struct {
	Dir string
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeName turns s into a single safe path element.
func SanitizeName(s string) string {
	s = unsafeName.ReplaceAllString(strings.TrimSpace(s), "-")
	s = strings.Trim(s, "-.")
	if s == "" {
		return "unnamed"
	}
	return s
}

// Path returns the absolute location of a relative artifact path.
func (w *ArtifactWriter) Path(rel string) (string, error) {
	clean := path.Clean("/" + rel)
	if clean == "/" {
		return "", fmt.Errorf("invalid artifact path %q", rel)
	}
	return filepath.Join(w.Dir, filepath.FromSlash(clean[1:])), nil
}

// Write stores data as <scenario>/<runID>/<name> and returns that
// slash-separated path, relative to Dir.
func (w *ArtifactWriter) Write(scenario, runID, name string, data []byte) (string, error) {
	rel := path.Join(SanitizeName(scenario), SanitizeName(runID), SanitizeName(name))
	full, err := w.Path(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrArtifactExists, rel)
		}
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write artifact %s: %w", rel, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return rel, nil
}

// FailureCapture describes the evidence to collect after a failed step.
type FailureCapture struct {
	Scenario string
	RunID    string
	Step     int
	// Console, when not nil, is written as a console log.
	Console []ConsoleMessage
}

// CaptureFailure writes a screenshot, a DOM dump and, optionally, the console
// log of a failed step. It runs on a context detached from ctx's
// cancellation so that evidence survives a canceled run. The returned paths
// name every artifact that was written; the error joins every capture that
// was not.
func (w *ArtifactWriter) CaptureFailure(ctx context.Context, sess Session, fc FailureCapture) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), captureTimeout)
	defer cancel()

	prefix := fmt.Sprintf("step-%02d", fc.Step)
	var paths []string
	var errs []error

	if buf, err := sess.Screenshot(ctx); err != nil {
		errs = append(errs, fmt.Errorf("screenshot: %w", err))
	} else if p, err := w.Write(fc.Scenario, fc.RunID, prefix+"-failure.png", buf); err != nil {
		errs = append(errs, err)
	} else {
		log.Printf("Saved screenshot to %s", p)
		paths = append(paths, p)
	}

	if html, err := sess.HTML(ctx); err != nil {
		errs = append(errs, fmt.Errorf("dom: %w", err))
	} else if p, err := w.Write(fc.Scenario, fc.RunID, prefix+"-dom.html", []byte(html)); err != nil {
		errs = append(errs, err)
	} else {
		paths = append(paths, p)
	}

	if fc.Console != nil {
		if p, err := w.Write(fc.Scenario, fc.RunID, prefix+"-console.log", []byte(formatConsole(fc.Console))); err != nil {
			errs = append(errs, err)
		} else {
			paths = append(paths, p)
		}
	}
	return paths, errors.Join(errs...)
}
