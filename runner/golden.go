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
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// UpdateGoldensEnv, when set to "true", makes golden steps rewrite their
// golden files with the observed text instead of comparing.
const UpdateGoldensEnv = "UPDATE_GOLDENS"

func updateGoldens() bool {
	return os.Getenv(UpdateGoldensEnv) == "true"
}

// ReadGolden returns the trimmed contents of a golden file.
func ReadGolden(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("golden file missing: %s (run with %s=true to create it): %w", path, UpdateGoldensEnv, err)
		}
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// WriteGolden replaces the golden file at path with text.
func WriteGolden(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strings.TrimSpace(text)+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write golden file %s: %w", path, err)
	}
	log.Printf("Updated golden file: %s", path)
	return nil
}

// textDiff renders a unified diff between the expected and actual text.
func textDiff(expected, actual string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected + "\n"),
		B:        difflib.SplitLines(actual + "\n"),
		FromFile: "Expected",
		ToFile:   "Actual",
		Context:  3,
	})
	if err != nil || diff == "" {
		return fmt.Sprintf("expected %q, got %q", expected, actual)
	}
	return diff
}
