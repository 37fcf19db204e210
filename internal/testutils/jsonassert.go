//go:build test

package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/mcuadros/go-defaults"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
	"gopkg.in/yaml.v3"
)

// PresencePlaceholder in an expected document accepts any actual value, as
// long as the key is present
const PresencePlaceholder = "<<PRESENCE>>"

// MustJSON marshals v or panics
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

type JSONAssertOptions struct {
	IgnoreExtraKeys          bool     `default:"false"`
	AllowPresencePlaceholder bool     `default:"true"`
	IgnoredFields            []string `default:""`
}

// Option is a functional option for configuring JSONAsserter
type Option func(*JSONAssertOptions)

// JSONAsserter compares JSON documents structurally and reports a readable diff
type JSONAsserter struct {
	t       TestingT
	options JSONAssertOptions
}

// NewJSONAsserter creates a new JSONAsserter with default options
func NewJSONAsserter(t TestingT) *JSONAsserter {
	opts := JSONAssertOptions{}
	defaults.SetDefaults(&opts)
	return &JSONAsserter{t: t, options: opts}
}

// WithOptions applies functional options to the JSONAsserter
func (ja *JSONAsserter) WithOptions(opts ...Option) *JSONAsserter {
	for _, opt := range opts {
		opt(&ja.options)
	}
	return ja
}

// Assert compares actualJSON against expectedJSON
func (ja *JSONAsserter) Assert(actualJSON, expectedJSON string) {
	if diff := ja.diff([]byte(actualJSON), expectedJSON); diff != "" {
		ja.t.Errorf("JSON assertion failed:\n%s", diff)
	}
}

// AssertValue marshals v and compares it against expectedJSON
func (ja *JSONAsserter) AssertValue(v any, expectedJSON string) {
	ja.Assert(MustJSON(v), expectedJSON)
}

// AssertYAML compares a YAML document against expectedJSON
func (ja *JSONAsserter) AssertYAML(actualYAML, expectedJSON string) {
	var doc any
	if err := yaml.Unmarshal([]byte(actualYAML), &doc); err != nil {
		ja.t.Errorf("JSON assertion failed:\ninvalid actual YAML: %v", err)
		return
	}
	ja.Assert(MustJSON(doc), expectedJSON)
}

func (ja *JSONAsserter) diff(actualJSON []byte, expectedJSON string) string {
	var expected, actual any
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		return fmt.Sprintf("invalid expected JSON document: %v", err)
	}
	if err := json.Unmarshal(actualJSON, &actual); err != nil {
		return fmt.Sprintf("invalid actual JSON document: %v", err)
	}

	for _, field := range ja.options.IgnoredFields {
		dropKey(expected, field)
		dropKey(actual, field)
	}
	if ja.options.AllowPresencePlaceholder {
		acceptPresent(expected, actual)
	}
	if ja.options.IgnoreExtraKeys {
		keepExpectedKeys(actual, expected)
	}

	var d gojsondiff.Diff
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return fmt.Sprintf("expected a JSON object, got %T", actual)
		}
		d = gojsondiff.New().CompareObjects(exp, act)
	case []any:
		act, ok := actual.([]any)
		if !ok {
			return fmt.Sprintf("expected a JSON array, got %T", actual)
		}
		d = gojsondiff.New().CompareArrays(exp, act)
	default:
		return fmt.Sprintf("expected JSON must be an object or an array, got %T", expected)
	}
	if !d.Modified() {
		return ""
	}

	f := formatter.NewAsciiFormatter(expected, formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
		Coloring:       false,
	})
	out, _ := f.Format(d)
	return out
}

// acceptPresent replaces placeholders with the actual value at the same path
func acceptPresent(expected, actual any) {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return
		}
		for k, v := range exp {
			av, present := act[k]
			if s, ok := v.(string); ok && s == PresencePlaceholder {
				if present {
					exp[k] = av
				}
				continue
			}
			acceptPresent(v, av)
		}
	case []any:
		act, ok := actual.([]any)
		if !ok {
			return
		}
		for i := range exp {
			if i >= len(act) {
				return
			}
			if s, ok := exp[i].(string); ok && s == PresencePlaceholder {
				exp[i] = act[i]
				continue
			}
			acceptPresent(exp[i], act[i])
		}
	}
}

// keepExpectedKeys removes keys from actual that expected does not mention
func keepExpectedKeys(actual, expected any) {
	switch act := actual.(type) {
	case map[string]any:
		exp, ok := expected.(map[string]any)
		if !ok {
			return
		}
		for k, av := range act {
			ev, ok := exp[k]
			if !ok {
				delete(act, k)
				continue
			}
			keepExpectedKeys(av, ev)
		}
	case []any:
		exp, ok := expected.([]any)
		if !ok {
			return
		}
		for i := range act {
			if i < len(exp) {
				keepExpectedKeys(act[i], exp[i])
			}
		}
	}
}

// dropKey removes field at any depth
func dropKey(doc any, field string) {
	switch v := doc.(type) {
	case map[string]any:
		delete(v, field)
		for _, child := range v {
			dropKey(child, field)
		}
	case []any:
		for _, child := range v {
			dropKey(child, field)
		}
	}
}

// WithIgnoreExtraKeys sets whether keys missing from the expected document are ignored
func WithIgnoreExtraKeys(ignore bool) Option {
	return func(opts *JSONAssertOptions) {
		opts.IgnoreExtraKeys = ignore
	}
}

// WithAllowPresencePlaceholder sets whether to allow "<<PRESENCE>>" placeholders
func WithAllowPresencePlaceholder(allow bool) Option {
	return func(opts *JSONAssertOptions) {
		opts.AllowPresencePlaceholder = allow
	}
}

// WithIgnoredFields sets a list of field names to ignore during comparison
func WithIgnoredFields(fields ...string) Option {
	return func(opts *JSONAssertOptions) {
		opts.IgnoredFields = fields
	}
}
