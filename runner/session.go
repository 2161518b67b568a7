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
	"time"
)

// Session is one isolated browser context with a single page. A Session
// belongs to exactly one scenario run and is not safe for concurrent use,
// except for DrainConsole and Close.
type Session interface {
	// Navigate loads url and waits for the document to load.
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)

	// Inspect evaluates l once without side effects.
	Inspect(ctx context.Context, l Locator) (Match, error)

	Click(ctx context.Context, l Locator) error
	DoubleClick(ctx context.Context, l Locator) error
	Hover(ctx context.Context, l Locator) error
	Focus(ctx context.Context, l Locator) error
	Fill(ctx context.Context, l Locator, value string) error
	// Press sends a key to the focused element. Named keys such as "Enter"
	// or "ArrowLeft" are sent as key events; other strings are typed.
	Press(ctx context.Context, key string) error
	Drag(ctx context.Context, from, to Locator) error

	// Eval evaluates a JavaScript expression and stores its result in res,
	// which may be nil.
	Eval(ctx context.Context, script string, res any) error

	Screenshot(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context) (string, error)

	// DrainConsole returns and clears the buffered console messages.
	DrainConsole() []ConsoleMessage

	// Close tears the browser context down. It is idempotent.
	Close() error
}

// Launcher creates Sessions.
type Launcher interface {
	NewSession(ctx context.Context, cfg Config) (Session, error)
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context, cfg Config) (Session, error)

func (f LauncherFunc) NewSession(ctx context.Context, cfg Config) (Session, error) {
	return f(ctx, cfg)
}

// ConsoleLevel is the severity of a console message.
type ConsoleLevel string

const (
	ConsoleLog       ConsoleLevel = "log"
	ConsoleInfo      ConsoleLevel = "info"
	ConsoleWarning   ConsoleLevel = "warning"
	ConsoleError     ConsoleLevel = "error"
	ConsoleException ConsoleLevel = "exception"
)

// ConsoleMessage is a console API call or an uncaught page error.
type ConsoleMessage struct {
	Level ConsoleLevel `json:"level"`
	Text  string       `json:"text"`
	Time  time.Time    `json:"time"`
}

// IsError reports whether m indicates an application error.
func (m ConsoleMessage) IsError() bool {
	return m.Level == ConsoleError || m.Level == ConsoleException
}

func (m ConsoleMessage) String() string {
	return m.Time.Format("15:04:05.000") + " [" + string(m.Level) + "] " + m.Text
}
