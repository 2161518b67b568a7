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
	"encoding/json"
	"fmt"
	"strings"
)

// Locator addresses UI elements in the live DOM. Exactly one primary
// selector (CSS, TestID, Attr, Class, Title, Placeholder, Role or Text)
// is expected; Text and HasText further filter the candidates of the other
// selectors. Locators only read the DOM.
type Locator struct {
	Text        string   `json:"text,omitempty" yaml:"text,omitempty"`
	Exact       bool     `json:"exact,omitempty" yaml:"exact,omitempty"`
	Role        string   `json:"role,omitempty" yaml:"role,omitempty"`
	Name        string   `json:"name,omitempty" yaml:"name,omitempty"`
	CSS         string   `json:"css,omitempty" yaml:"css,omitempty"`
	TestID      string   `json:"testid,omitempty" yaml:"testid,omitempty"`
	Attr        string   `json:"attr,omitempty" yaml:"attr,omitempty"`
	AttrValue   string   `json:"attrValue,omitempty" yaml:"attrValue,omitempty"`
	Class       string   `json:"class,omitempty" yaml:"class,omitempty"`
	Placeholder string   `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Title       string   `json:"title,omitempty" yaml:"title,omitempty"`
	HasText     string   `json:"hasText,omitempty" yaml:"hasText,omitempty"`
	Within      *Locator `json:"within,omitempty" yaml:"within,omitempty"`
	// Nth selects among the visible matches in document order. Negative
	// values count from the end: -1 is the last match.
	Nth int `json:"nth,omitempty" yaml:"nth,omitempty"`
}

func ByText(text string) Locator      { return Locator{Text: text} }
func ByExactText(text string) Locator { return Locator{Text: text, Exact: true} }
func ByCSS(sel string) Locator        { return Locator{CSS: sel} }
func ByTestID(id string) Locator      { return Locator{TestID: id} }
func ByClass(fragment string) Locator { return Locator{Class: fragment} }
func ByTitle(title string) Locator    { return Locator{Title: title} }

func ByPlaceholder(p string) Locator { return Locator{Placeholder: p} }

// ByRole matches elements by accessible role and, if name is not empty,
// by a case-insensitive substring of their accessible name.
func ByRole(role, name string) Locator {
	return Locator{Role: role, Name: name}
}

// ByAttr matches [attr=value], or [attr] when value is empty.
func ByAttr(attr, value string) Locator {
	return Locator{Attr: attr, AttrValue: value}
}

// BySquare addresses a board square through its data-square test hook.
func BySquare(square string) Locator {
	return ByAttr("data-square", square)
}

// WithText keeps only candidates whose text contains s.
func (l Locator) WithText(s string) Locator {
	l.HasText = s
	return l
}

// In restricts the search to the subtree of the first visible match of parent.
func (l Locator) In(parent Locator) Locator {
	p := parent
	l.Within = &p
	return l
}

func (l Locator) At(n int) Locator {
	l.Nth = n
	return l
}

func (l Locator) Last() Locator {
	return l.At(-1)
}

// IsZero reports whether l selects nothing.
func (l Locator) IsZero() bool {
	return l.Text == "" && l.Role == "" && l.CSS == "" && l.TestID == "" && l.Attr == "" &&
		l.Class == "" && l.Placeholder == "" && l.Title == ""
}

func (l Locator) String() string {
	var parts []string
	if l.Within != nil {
		parts = append(parts, l.Within.String(), ">>")
	}
	switch {
	case l.CSS != "":
		parts = append(parts, "css="+l.CSS)
	case l.TestID != "":
		parts = append(parts, fmt.Sprintf("testid=%q", l.TestID))
	case l.Attr != "" && l.AttrValue != "":
		parts = append(parts, fmt.Sprintf("[%s=%q]", l.Attr, l.AttrValue))
	case l.Attr != "":
		parts = append(parts, fmt.Sprintf("[%s]", l.Attr))
	case l.Class != "":
		parts = append(parts, fmt.Sprintf("class*=%q", l.Class))
	case l.Title != "":
		parts = append(parts, fmt.Sprintf("title=%q", l.Title))
	case l.Placeholder != "":
		parts = append(parts, fmt.Sprintf("placeholder=%q", l.Placeholder))
	case l.Role != "":
		if l.Name != "" {
			parts = append(parts, fmt.Sprintf("role=%s[name=%q]", l.Role, l.Name))
		} else {
			parts = append(parts, "role="+l.Role)
		}
	}
	if l.Text != "" {
		op := "text"
		if l.Exact {
			op = "text="
		}
		parts = append(parts, fmt.Sprintf("%s=%q", op, l.Text))
	}
	if l.HasText != "" {
		parts = append(parts, fmt.Sprintf("has-text=%q", l.HasText))
	}
	if l.Nth != 0 {
		parts = append(parts, fmt.Sprintf("nth=%d", l.Nth))
	}
	if len(parts) == 0 {
		return "<empty locator>"
	}
	return strings.Join(parts, " ")
}

// Match is the result of probing a Locator.
type Match struct {
	Count   int     `json:"count"`   // all matches
	Visible int     `json:"visible"` // visible matches
	Found   bool    `json:"found"`   // the Nth visible match exists
	Text    string  `json:"text"`    // normalized text of the selected match
	Value   string  `json:"value"`   // form value of the selected match, if any
	X       float64 `json:"x"`       // center of the selected match, viewport coordinates
	Y       float64 `json:"y"`
}

// Modes understood by locatorJS.
const (
	inspectMode = "inspect"
	scrollMode  = "scroll"
	fillMode    = "fill"
	focusMode   = "focus"
)

// Script returns a JavaScript expression evaluating to a Match for l.
func (l Locator) Script(mode, arg string) (string, error) {
	q, err := json.Marshal(l)
	if err != nil {
		return "", fmt.Errorf("marshal locator: %w", err)
	}
	a, err := json.Marshal(arg)
	if err != nil {
		return "", err
	}
	m, _ := json.Marshal(mode)
	return fmt.Sprintf("(%s)(%s, %s, %s)", locatorJS, q, m, a), nil
}

const locatorJS = `function(query, mode, arg) {
	const norm = (s) => (s || '').replace(/\s+/g, ' ').trim();
	const visible = (el) => {
		if (!el || !el.isConnected) return false;
		const style = window.getComputedStyle(el);
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0 && style.display !== 'none' &&
			style.visibility !== 'hidden' && style.opacity !== '0';
	};
	const textOf = (el) => norm(el.innerText !== undefined ? el.innerText : el.textContent);
	const textMatches = (actual, want, exact) => exact ?
		norm(actual) === norm(want) :
		norm(actual).toLowerCase().includes(norm(want).toLowerCase());
	const role = (el) => {
		const explicit = el.getAttribute('role');
		if (explicit) return explicit.toLowerCase();
		const tag = el.tagName.toLowerCase();
		switch (tag) {
		case 'button': return 'button';
		case 'a': return el.hasAttribute('href') ? 'link' : '';
		case 'h1': case 'h2': case 'h3': case 'h4': case 'h5': case 'h6': return 'heading';
		case 'select': return 'combobox';
		case 'textarea': return 'textbox';
		case 'dialog': return 'dialog';
		case 'img': return 'img';
		case 'input': {
			const t = (el.getAttribute('type') || 'text').toLowerCase();
			if (t === 'checkbox') return 'checkbox';
			if (t === 'radio') return 'radio';
			if (t === 'range') return 'slider';
			if (t === 'button' || t === 'submit' || t === 'reset') return 'button';
			return 'textbox';
		}
		}
		return '';
	};
	const accName = (el) => {
		const label = el.getAttribute('aria-label');
		if (label) return norm(label);
		const by = el.getAttribute('aria-labelledby');
		if (by) {
			const parts = by.split(/\s+/).map((id) => document.getElementById(id)).filter(Boolean);
			if (parts.length) return norm(parts.map((n) => n.textContent).join(' '));
		}
		const text = textOf(el);
		if (text) return text;
		return norm(el.getAttribute('title') || el.getAttribute('alt') || el.value || el.getAttribute('placeholder'));
	};
	const q = (root, sel) => Array.from(root.querySelectorAll(sel));
	const attrSel = (name, value) => '[' + name + '=' + JSON.stringify(value) + ']';
	const skip = new Set(['SCRIPT', 'STYLE', 'HEAD', 'NOSCRIPT', 'TEMPLATE', 'META', 'TITLE']);
	const resolve = (s, root) => {
		let els = null;
		if (s.css) els = q(root, s.css);
		else if (s.testid) els = q(root, attrSel('data-testid', s.testid));
		else if (s.attr) els = q(root, s.attrValue ? attrSel(s.attr, s.attrValue) : '[' + s.attr + ']');
		else if (s.class) els = q(root, '[class*=' + JSON.stringify(s.class) + ']');
		else if (s.title) els = q(root, attrSel('title', s.title));
		else if (s.placeholder) els = q(root, attrSel('placeholder', s.placeholder));
		else if (s.role) els = q(root, '*').filter((el) => role(el) === s.role.toLowerCase());
		if (els === null) {
			if (!s.text) return [];
			const hits = q(root, '*').filter((el) => !skip.has(el.tagName) && textMatches(textOf(el), s.text, s.exact));
			// Keep the deepest elements only, so "text=Play" hits the label, not <body>.
			els = hits.filter((el) => !hits.some((o) => o !== el && el.contains(o)));
		} else if (s.text) {
			els = els.filter((el) => textMatches(textOf(el), s.text, s.exact));
		}
		if (s.role && s.name) els = els.filter((el) => textMatches(accName(el), s.name, s.exact));
		if (s.hasText) els = els.filter((el) => textMatches(el.textContent, s.hasText, false));
		return els;
	};
	const pick = (s, root) => {
		const all = resolve(s, root);
		const vis = all.filter(visible);
		let idx = s.nth || 0;
		if (idx < 0) idx = vis.length + idx;
		return {all: all, vis: vis, target: vis[idx] || null};
	};
	const out = {count: 0, visible: 0, found: false, text: '', value: '', x: 0, y: 0};
	let root = document;
	if (query.within) {
		const parent = pick(query.within, document).target;
		if (!parent) return out;
		root = parent;
	}
	const res = pick(query, root);
	out.count = res.all.length;
	out.visible = res.vis.length;
	const el = res.target;
	if (!el) return out;
	out.found = true;
	if (mode !== 'inspect') el.scrollIntoView({block: 'center', inline: 'center'});
	const r = el.getBoundingClientRect();
	out.x = r.left + r.width / 2;
	out.y = r.top + r.height / 2;
	out.text = textOf(el) || norm(el.value);
	if (typeof el.value === 'string') out.value = el.value;
	if (mode === 'focus') el.focus();
	if (mode === 'fill') {
		el.focus();
		const isInput = el instanceof HTMLInputElement;
		const isArea = el instanceof HTMLTextAreaElement;
		if (isInput || isArea) {
			// Use the native setter so framework-controlled inputs see the change.
			const proto = isArea ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
			Object.getOwnPropertyDescriptor(proto, 'value').set.call(el, arg);
		} else if (el.isContentEditable) {
			el.textContent = arg;
		} else {
			throw new Error('element is not editable');
		}
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
	}
	return out;
}`
