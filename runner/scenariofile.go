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
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario files are YAML streams with one scenario per document:
//
//	name: open-analysis
//	device: iphone-12
//	timeout: 5s
//	steps:
//	  - action: navigate
//	    fragment: analysis
//	    expect:
//	      - visible: {text: Analysis Settings}
//	  - action: click
//	    target: {role: button, name: Resign}
//	    expect:
//	      - hidden: {class: cursor-wait}
//
// A scalar target is a text locator. Durations use time.ParseDuration syntax.

type yamlDuration time.Duration

func (d *yamlDuration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = yamlDuration(v)
	return nil
}

type yamlLocator struct {
	Locator
}

func (l *yamlLocator) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		l.Locator = ByText(n.Value)
		return nil
	}
	var raw struct {
		Locator `yaml:",inline"`
		Square  string       `yaml:"square"`
		In      *yamlLocator `yaml:"in"`
	}
	if err := n.Decode(&raw); err != nil {
		return err
	}
	l.Locator = raw.Locator
	if raw.Square != "" {
		l.Locator.Attr = "data-square"
		l.Locator.AttrValue = raw.Square
	}
	if raw.In != nil {
		l.Locator = l.Locator.In(raw.In.Locator)
	}
	if l.Locator.IsZero() {
		return fmt.Errorf("line %d: empty locator", n.Line)
	}
	return nil
}

type yamlCondition struct {
	Condition
}

func (c *yamlCondition) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		return fmt.Errorf("line %d: a condition is a mapping with exactly one key", n.Line)
	}
	key, val := n.Content[0].Value, n.Content[1]
	kind := ConditionKind(key)
	switch kind {
	case CondVisible, CondHidden:
		var l yamlLocator
		if err := val.Decode(&l); err != nil {
			return err
		}
		c.Condition = Condition{Kind: kind, Target: l.Locator}
	case CondText, CondURL:
		c.Condition = Condition{Kind: kind, Text: val.Value}
	case CondScript:
		c.Condition = Script(val.Value)
	case CondTextEquals, CondCount, CondValue, CondValueNot:
		var raw struct {
			Target yamlLocator `yaml:"target"`
			Text   string      `yaml:"text"`
			Value  string      `yaml:"value"`
			Count  int         `yaml:"count"`
		}
		if err := val.Decode(&raw); err != nil {
			return err
		}
		text := raw.Text
		if kind == CondValue || kind == CondValueNot {
			text = raw.Value
		}
		c.Condition = Condition{Kind: kind, Target: raw.Target.Locator, Text: text, Count: raw.Count}
	default:
		return fmt.Errorf("line %d: unknown condition %q", n.Line, key)
	}
	if err := c.Condition.Validate(); err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	return nil
}

type yamlStep struct {
	Name     string          `yaml:"name"`
	Action   string          `yaml:"action"`
	Target   *yamlLocator    `yaml:"target"`
	To       *yamlLocator    `yaml:"to"`
	URL      string          `yaml:"url"`
	Fragment string          `yaml:"fragment"`
	Value    string          `yaml:"value"`
	Expect   []yamlCondition `yaml:"expect"`
	Timeout  yamlDuration    `yaml:"timeout"`
	Settle   yamlDuration    `yaml:"settle"`

	line int
}

func (s *yamlStep) UnmarshalYAML(n *yaml.Node) error {
	type plain yamlStep
	if err := n.Decode((*plain)(s)); err != nil {
		return err
	}
	s.line = n.Line
	return nil
}

func (s yamlStep) step() Step {
	st := Step{
		Name:     s.Name,
		Action:   Action(s.Action),
		URL:      s.URL,
		Fragment: s.Fragment,
		Value:    s.Value,
		Timeout:  time.Duration(s.Timeout),
		Settle:   time.Duration(s.Settle),
	}
	if s.Target != nil {
		st.Target = s.Target.Locator
	}
	if s.To != nil {
		st.To = s.To.Locator
	}
	for _, c := range s.Expect {
		st.Expects = append(st.Expects, c.Condition)
	}
	return st
}

type yamlScenario struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Tags        []string     `yaml:"tags"`
	Device      string       `yaml:"device"`
	Viewport    *Viewport    `yaml:"viewport"`
	Timeout     yamlDuration `yaml:"timeout"`
	Steps       []yamlStep   `yaml:"steps"`
}

// LoadScenarioFile reads every scenario in the YAML file at path.
func LoadScenarioFile(path string) ([]Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseScenarios(f, path)
}

// LoadScenarioFiles reads all paths, in order.
func LoadScenarioFiles(paths ...string) ([]Scenario, error) {
	var out []Scenario
	for _, p := range paths {
		scs, err := LoadScenarioFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, scs...)
	}
	return out, nil
}

// ParseScenarios decodes a YAML stream. source names the input in errors.
func ParseScenarios(r io.Reader, source string) ([]Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var out []Scenario
	for doc := 1; ; doc++ {
		var ys yamlScenario
		err := dec.Decode(&ys)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: document %d: %w", source, doc, err)
		}
		if ys.Name == "" && len(ys.Steps) == 0 {
			continue
		}
		sc := Scenario{
			Name:        ys.Name,
			Description: ys.Description,
			Tags:        ys.Tags,
			Device:      ys.Device,
			Viewport:    ys.Viewport,
			Source:      source,
		}
		for i, s := range ys.Steps {
			st := s.step()
			if st.Timeout == 0 {
				st.Timeout = time.Duration(ys.Timeout)
			}
			if err := st.Validate(); err != nil {
				return nil, fmt.Errorf("%s:%d: scenario %q: step %d: %w", source, s.line, ys.Name, i, err)
			}
			sc.Steps = append(sc.Steps, st)
		}
		if err := sc.Validate(); err != nil {
			return nil, fmt.Errorf("%s: document %d: %w", source, doc, err)
		}
		out = append(out, sc)
	}
	return out, nil
}
