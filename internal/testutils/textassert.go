package testutils

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/mcuadros/go-defaults"
)

type TextOptions struct {
	TrimLines        bool `default:"false"`
	CollapseSpaces   bool `default:"false"`
	IgnoreEmptyLines bool `default:"false"`
	Colors           bool `default:"false"`
}

type TextOption func(*TextOptions)

// TrimLines strips leading and trailing blanks from every line
func TrimLines() TextOption {
	return func(o *TextOptions) { o.TrimLines = true }
}

// CollapseSpaces folds every run of blanks into one space, so column
// padding does not matter.
func CollapseSpaces() TextOption {
	return func(o *TextOptions) { o.CollapseSpaces = true }
}

// IgnoreEmptyLines drops blank lines on both sides
func IgnoreEmptyLines() TextOption {
	return func(o *TextOptions) { o.IgnoreEmptyLines = true }
}

// WithColors highlights the unified diff
func WithColors() TextOption {
	return func(o *TextOptions) { o.Colors = true }
}

// AssertText reports a unified diff when actual differs from expected after
// normalization.
func AssertText(t TestingT, actual, expected string, opts ...TextOption) bool {
	t.Helper()

	options := TextOptions{}
	defaults.SetDefaults(&options)
	for _, opt := range opts {
		opt(&options)
	}

	want, got := normalizeText(expected, options), normalizeText(actual, options)
	if want == got {
		return true
	}

	edits := myers.ComputeEdits("", want, got)
	diff := fmt.Sprint(gotextdiff.ToUnified("expected", "actual", want, edits))
	if options.Colors {
		diff = colorize(diff)
	}
	t.Errorf("text mismatch:\n%s", diff)
	return false
}

func normalizeText(text string, options TextOptions) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if options.TrimLines {
			line = strings.TrimSpace(line)
		}
		if options.CollapseSpaces {
			line = strings.Join(strings.Fields(line), " ")
		}
		if options.IgnoreEmptyLines && strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func colorize(diff string) string {
	added, removed, hunk := color.New(color.FgGreen), color.New(color.FgRed), color.New(color.FgCyan)
	for _, c := range []*color.Color{added, removed, hunk} {
		c.EnableColor()
	}

	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
		case strings.HasPrefix(line, "@@"):
			lines[i] = hunk.Sprint(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = removed.Sprint(line)
		case strings.HasPrefix(line, "+"):
			lines[i] = added.Sprint(line)
		}
	}
	return strings.Join(lines, "\n")
}
