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

// readreport prints stored run reports as JSON. With no arguments it lists
// the run summaries, newest first.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"slices"

	"github.com/ttbt-io/uicheck/report"
	"github.com/ttbt-io/uicheck/runner"
)

var dataDir = flag.String("data-dir", "data", "Directory of the stored reports")

func main() {
	flag.Parse()
	s, err := report.OpenStorage(*dataDir)
	if err != nil {
		log.Fatal(err)
	}
	if err := dump(os.Stdout, report.NewStore(*dataDir, s), flag.Args()); err != nil {
		log.Fatal(err)
	}
}

// dump writes the reports of ids, or all summaries when ids is empty.
// Unreadable ids are logged and skipped.
func dump(w io.Writer, st *report.Store, ids []string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if len(ids) == 0 {
		var all []runner.Summary
		for sum, err := range st.List() {
			if err != nil {
				return err
			}
			all = append(all, sum)
		}
		slices.SortFunc(all, func(a, b runner.Summary) int { return b.StartedAt.Compare(a.StartedAt) })
		return enc.Encode(all)
	}
	for _, id := range ids {
		res, err := st.Load(id)
		if err != nil {
			log.Printf("%s: %v", id, err)
			continue
		}
		fmt.Fprintf(w, "=========== %s ===========\n", id)
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("JSON: %s: %w", id, err)
		}
	}
	return nil
}
