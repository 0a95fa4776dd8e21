// Package shellformat renders and checks the shell scripts dropped into
// provisioned workspaces. Scripts are parsed with mvdan.cc/sh/v3/syntax and
// printed back canonically, so a script that fails to parse never reaches a
// developer's environment.
package shellformat

import (
	"bytes"
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

type Option func(*config)

type Variant int

const (
	Bash Variant = iota
	POSIX
)

type config struct {
	indent  uint
	variant Variant
}

func defaultConfig() *config {
	return &config{indent: 2, variant: Bash}
}

// WithIndent sets the indentation width in spaces (default: 2).
func WithIndent(n uint) Option {
	return func(c *config) { c.indent = n }
}

func WithVariant(v Variant) Option {
	return func(c *config) { c.variant = v }
}

func (c *config) syntaxVariant() syntax.LangVariant {
	if c.variant == POSIX {
		return syntax.LangPOSIX
	}
	return syntax.LangBash
}

// Format parses script and prints it back in canonical form, keeping comments
// (and therefore the shebang line). A parse error is returned as is.
func Format(script string, opts ...Option) (string, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	prog, err := parse(script, cfg)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	printer := syntax.NewPrinter(
		syntax.Indent(cfg.indent),
		syntax.BinaryNextLine(true),
		syntax.SpaceRedirects(true),
	)
	if err := printer.Print(&buf, prog); err != nil {
		return "", fmt.Errorf("failed to print script: %w", err)
	}
	return buf.String(), nil
}

// Validate reports whether script parses for the configured variant.
func Validate(script string, opts ...Option) error {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	_, err := parse(script, cfg)
	return err
}

// Quote returns s quoted as a single shell word, suitable for interpolating
// untrusted values like repository URLs into a script.
func Quote(s string) (string, error) {
	q, err := syntax.Quote(s, syntax.LangBash)
	if err != nil {
		return "", fmt.Errorf("cannot quote %q: %w", s, err)
	}
	return q, nil
}

func parse(script string, cfg *config) (*syntax.File, error) {
	parser := syntax.NewParser(
		syntax.Variant(cfg.syntaxVariant()),
		syntax.KeepComments(true),
	)
	prog, err := parser.Parse(strings.NewReader(script), "setup.sh")
	if err != nil {
		return nil, fmt.Errorf("invalid shell script: %w", err)
	}
	return prog, nil
}
