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
	"strings"
)

type ConditionKind string

const (
	CondVisible    ConditionKind = "visible"
	CondHidden     ConditionKind = "hidden"
	CondText       ConditionKind = "text"
	CondTextEquals ConditionKind = "text-equals"
	CondCount      ConditionKind = "count"
	CondURL        ConditionKind = "url"
	CondScript     ConditionKind = "script"
	CondValue      ConditionKind = "value"
	CondValueNot   ConditionKind = "value-not"
)

// Condition is a predicate over the page, evaluated by polling.
type Condition struct {
	Kind   ConditionKind
	Target Locator
	// Text is the expected text for text, text-equals and url, and the
	// form value for value and value-not.
	Text   string
	Count  int
	Script string
}

func Visible(l Locator) Condition { return Condition{Kind: CondVisible, Target: l} }
func Hidden(l Locator) Condition  { return Condition{Kind: CondHidden, Target: l} }

// PageText holds when some visible element contains text.
func PageText(text string) Condition { return Condition{Kind: CondText, Text: text} }

// TextEquals holds when the normalized text of l equals text.
func TextEquals(l Locator, text string) Condition {
	return Condition{Kind: CondTextEquals, Target: l, Text: text}
}

// Count holds when exactly n elements match l, visible or not.
func Count(l Locator, n int) Condition {
	return Condition{Kind: CondCount, Target: l, Count: n}
}

// ValueEquals holds when the form value of l is exactly value.
func ValueEquals(l Locator, value string) Condition {
	return Condition{Kind: CondValue, Target: l, Text: value}
}

// ValueNot holds when l is visible and its form value differs from value,
// for inputs that show a placeholder value until data arrives.
func ValueNot(l Locator, value string) Condition {
	return Condition{Kind: CondValueNot, Target: l, Text: value}
}

func URLContains(s string) Condition { return Condition{Kind: CondURL, Text: s} }

// Script holds when the JavaScript expression js is truthy.
func Script(js string) Condition { return Condition{Kind: CondScript, Script: js} }

func (c Condition) String() string {
	switch c.Kind {
	case CondVisible:
		return fmt.Sprintf("%s visible", c.Target)
	case CondHidden:
		return fmt.Sprintf("%s hidden", c.Target)
	case CondText:
		return fmt.Sprintf("page text %q", c.Text)
	case CondTextEquals:
		return fmt.Sprintf("%s text equals %q", c.Target, c.Text)
	case CondCount:
		return fmt.Sprintf("%s count == %d", c.Target, c.Count)
	case CondURL:
		return fmt.Sprintf("url contains %q", c.Text)
	case CondScript:
		return fmt.Sprintf("script %q", c.Script)
	case CondValue:
		return fmt.Sprintf("%s value == %q", c.Target, c.Text)
	case CondValueNot:
		return fmt.Sprintf("%s value != %q", c.Target, c.Text)
	}
	return string(c.Kind)
}

func (c Condition) Validate() error {
	switch c.Kind {
	case CondVisible, CondHidden, CondCount:
		if c.Target.IsZero() {
			return fmt.Errorf("%s needs a target", c.Kind)
		}
		if c.Count < 0 {
			return fmt.Errorf("negative count")
		}
	case CondTextEquals, CondValue, CondValueNot:
		if c.Target.IsZero() {
			return fmt.Errorf("%s needs a target", c.Kind)
		}
	case CondText, CondURL:
		if c.Text == "" {
			return fmt.Errorf("%s needs text", c.Kind)
		}
	case CondScript:
		if c.Script == "" {
			return fmt.Errorf("script condition needs a script")
		}
	default:
		return fmt.Errorf("unknown condition %q", c.Kind)
	}
	return nil
}

// check evaluates c once. detail describes the observed state when c does
// not hold.
func (c Condition) check(ctx context.Context, sess Session) (ok bool, detail string, err error) {
	switch c.Kind {
	case CondVisible:
		m, err := sess.Inspect(ctx, c.Target)
		if err != nil {
			return false, "", err
		}
		return m.Found, fmt.Sprintf("%d matches, %d visible", m.Count, m.Visible), nil
	case CondHidden:
		m, err := sess.Inspect(ctx, c.Target)
		if err != nil {
			return false, "", err
		}
		return m.Visible == 0, fmt.Sprintf("%d still visible", m.Visible), nil
	case CondText:
		m, err := sess.Inspect(ctx, ByText(c.Text))
		if err != nil {
			return false, "", err
		}
		return m.Found, "text not on page", nil
	case CondTextEquals:
		m, err := sess.Inspect(ctx, c.Target)
		if err != nil {
			return false, "", err
		}
		if !m.Found {
			return false, "no visible match", nil
		}
		want := normalizeText(c.Text)
		if m.Text == want {
			return true, "", nil
		}
		return false, textDiff(want, m.Text), nil
	case CondCount:
		m, err := sess.Inspect(ctx, c.Target)
		if err != nil {
			return false, "", err
		}
		return m.Count == c.Count, fmt.Sprintf("found %d", m.Count), nil
	case CondURL:
		u, err := sess.URL(ctx)
		if err != nil {
			return false, "", err
		}
		return strings.Contains(u, c.Text), "url is " + u, nil
	case CondValue, CondValueNot:
		m, err := sess.Inspect(ctx, c.Target)
		if err != nil {
			return false, "", err
		}
		if !m.Found {
			return false, "no visible match", nil
		}
		return (m.Value == c.Text) == (c.Kind == CondValue), fmt.Sprintf("value is %q", m.Value), nil
	case CondScript:
		var ok bool
		if err := sess.Eval(ctx, "!!("+c.Script+")", &ok); err != nil {
			return false, "", err
		}
		return ok, "script returned false", nil
	}
	return false, "", fmt.Errorf("unknown condition %q", c.Kind)
}

// normalizeText collapses whitespace like the in-page locator does.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
