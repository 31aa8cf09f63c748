package testutils

import (
	"fmt"
	"sort"

	jsoniter "github.com/json-iterator/go"
	"github.com/mcuadros/go-defaults"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Presence in an expected document matches any actual value under the same key
const Presence = "<<PRESENCE>>"

// TestingT is the part of testing.T the asserters report through
type TestingT interface {
	Helper()
	Errorf(format string, args ...interface{})
}

type JSONOptions struct {
	IgnoreExtraKeys  bool `default:"false"`
	IgnoreArrayOrder bool `default:"false"`
	AllowPresence    bool `default:"true"`
	ShowArrayIndex   bool `default:"true"`
	IgnoredFields    []string
}

type JSONOption func(*JSONOptions)

// IgnoreExtraKeys drops object keys the expected document does not mention
func IgnoreExtraKeys() JSONOption {
	return func(o *JSONOptions) { o.IgnoreExtraKeys = true }
}

// IgnoreArrayOrder compares arrays as multisets
func IgnoreArrayOrder() JSONOption {
	return func(o *JSONOptions) { o.IgnoreArrayOrder = true }
}

// IgnoreFields removes the named keys at every depth on both sides
func IgnoreFields(fields ...string) JSONOption {
	return func(o *JSONOptions) { o.IgnoredFields = append(o.IgnoredFields, fields...) }
}

// AssertJSON reports a readable diff when actual and expected are not the
// same JSON document after the options are applied.
func AssertJSON(t TestingT, actual, expected string, opts ...JSONOption) bool {
	t.Helper()

	options := JSONOptions{}
	defaults.SetDefaults(&options)
	for _, opt := range opts {
		opt(&options)
	}

	if diff := jsonDiff(actual, expected, options); diff != "" {
		t.Errorf("JSON mismatch:\n%s", diff)
		return false
	}
	return true
}

func jsonDiff(actualJSON, expectedJSON string, options JSONOptions) string {
	var expected, actual interface{}
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		return fmt.Sprintf("invalid expected JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(actualJSON), &actual); err != nil {
		return fmt.Sprintf("invalid actual JSON: %v\n%s", err, actualJSON)
	}

	// gojsondiff only compares objects at the root
	if _, ok := expected.([]interface{}); ok {
		expected = map[string]interface{}{"array": expected}
		actual = map[string]interface{}{"array": actual}
	}

	walk(expected, actual, func(exp, act map[string]interface{}) {
		for _, field := range options.IgnoredFields {
			delete(exp, field)
			delete(act, field)
		}
		for k, v := range exp {
			if s, ok := v.(string); ok && s == Presence && options.AllowPresence {
				if av, present := act[k]; present {
					exp[k] = av
				}
			}
		}
		if options.IgnoreExtraKeys {
			for k := range act {
				if _, ok := exp[k]; !ok {
					delete(act, k)
				}
			}
		}
	})
	if options.IgnoreArrayOrder {
		sortArrays(expected)
		sortArrays(actual)
	}

	expectedBytes, _ := json.Marshal(expected)
	actualBytes, _ := json.Marshal(actual)
	diff, err := gojsondiff.New().Compare(expectedBytes, actualBytes)
	if err != nil {
		return fmt.Sprintf("JSON comparison failed: %v", err)
	}
	if !diff.Modified() {
		return ""
	}

	f := formatter.NewAsciiFormatter(expected, formatter.AsciiFormatterConfig{ShowArrayIndex: options.ShowArrayIndex})
	out, err := f.Format(diff)
	if err != nil {
		return fmt.Sprintf("JSON diff formatting failed: %v", err)
	}
	return out
}

// walk calls fn for every pair of objects found at the same position in
// expected and actual.
func walk(expected, actual interface{}, fn func(exp, act map[string]interface{})) {
	switch exp := expected.(type) {
	case map[string]interface{}:
		act, ok := actual.(map[string]interface{})
		if !ok {
			return
		}
		fn(exp, act)
		for k := range exp {
			walk(exp[k], act[k], fn)
		}
	case []interface{}:
		act, ok := actual.([]interface{})
		if !ok {
			return
		}
		for i := range exp {
			if i < len(act) {
				walk(exp[i], act[i], fn)
			}
		}
	}
}

func sortArrays(v interface{}) {
	switch node := v.(type) {
	case map[string]interface{}:
		for _, child := range node {
			sortArrays(child)
		}
	case []interface{}:
		for _, child := range node {
			sortArrays(child)
		}
		sort.SliceStable(node, func(i, j int) bool {
			a, _ := json.Marshal(node[i])
			b, _ := json.Marshal(node[j])
			return string(a) < string(b)
		})
	}
}
