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
	"strings"
	"sync"
	"time"
)

const maxConsoleMessages = 1000

// consoleBuffer collects console messages from the browser event loop until
// the runner drains them.
type consoleBuffer struct {
	mu      sync.Mutex
	msgs    []ConsoleMessage
	dropped int
}

func (b *consoleBuffer) add(level ConsoleLevel, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.msgs) >= maxConsoleMessages {
		b.dropped++
		return
	}
	b.msgs = append(b.msgs, ConsoleMessage{Level: level, Text: text, Time: time.Now()})
}

func (b *consoleBuffer) drain() []ConsoleMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.msgs
	b.msgs = nil
	if b.dropped > 0 {
		out = append(out, ConsoleMessage{
			Level: ConsoleWarning,
			Text:  fmt.Sprintf("%d console messages dropped", b.dropped),
			Time:  time.Now(),
		})
		b.dropped = 0
	}
	return out
}

// formatConsole renders messages one per line, for console log artifacts.
func formatConsole(msgs []ConsoleMessage) string {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(m.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
