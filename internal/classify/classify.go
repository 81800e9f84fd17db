// Package classify decides which transform applies to a file reachable from
// an entry point. Rules are tested in declaration order and only the first
// matching rule applies.
package classify

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	// ErrNoMatchingRule indicates a file inside a rule's include root that no rule matches
	ErrNoMatchingRule = errors.New("no transform rule matches file")
	// ErrOutsideRoot indicates a file outside every rule's include root
	ErrOutsideRoot = errors.New("file is outside every rule include root")
	// ErrInvalidRule indicates a rule that cannot be compiled
	ErrInvalidRule = errors.New("invalid transform rule")
)

// Kind is the transform family a rule selects.
type Kind string

const (
	KindEmit       Kind = "emit"
	KindInline     Kind = "inline"
	KindStylesheet Kind = "stylesheet"
	KindScript     Kind = "script"
)

// Step is one named stage of a transform chain.
type Step string

const (
	StepEmit      Step = "emit"
	StepInline    Step = "inline"
	StepSass      Step = "sass"
	StepPrefix    Step = "prefix"
	StepDownlevel Step = "downlevel"
	StepBundle    Step = "bundle"
)

// Chain returns the ordered steps run for a kind.
func (k Kind) Chain() []Step {
	switch k {
	case KindEmit:
		return []Step{StepEmit}
	case KindInline:
		return []Step{StepInline}
	case KindStylesheet:
		return []Step{StepSass, StepPrefix, StepBundle}
	case KindScript:
		return []Step{StepDownlevel, StepBundle}
	}
	return nil
}

// Rule is a compiled transform rule.
type Rule struct {
	Name     string
	Patterns []string
	// Include is the absolute directory the rule is restricted to
	Include string
	Kind    Kind
	// Limit is the exclusive inline threshold in bytes, only used by KindInline
	Limit int64
	// Filename is the naming template of emitted assets
	Filename string
}

// Match is the result of classifying a file.
type Match struct {
	Rule  *Rule
	Index int
	// Rel is the slash separated path relative to the rule include root
	Rel string
}

// Classifier holds an ordered rule list.
type Classifier struct {
	rules []Rule
}

// New validates the rules and returns a classifier preserving their order.
func New(rules []Rule) (*Classifier, error) {
	for i, r := range rules {
		if r.Kind.Chain() == nil {
			return nil, fmt.Errorf("%w: rule %d (%s) has unknown kind %q", ErrInvalidRule, i, r.Name, r.Kind)
		}
		if !filepath.IsAbs(r.Include) {
			return nil, fmt.Errorf("%w: rule %d (%s) include %q is not absolute", ErrInvalidRule, i, r.Name, r.Include)
		}
		if len(r.Patterns) == 0 {
			return nil, fmt.Errorf("%w: rule %d (%s) has no patterns", ErrInvalidRule, i, r.Name)
		}
		for _, p := range r.Patterns {
			if !doublestar.ValidatePattern(p) {
				return nil, fmt.Errorf("%w: rule %d (%s) pattern %q", ErrInvalidRule, i, r.Name, p)
			}
		}
	}

	return &Classifier{rules: rules}, nil
}

// Rules returns the rules in priority order.
func (c *Classifier) Rules() []Rule {
	return c.rules
}

// Classify returns the first rule matching path. Relative paths are made
// absolute against the working directory.
func (c *Classifier) Classify(path string) (Match, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Match{}, err
	}

	included := false
	for i := range c.rules {
		r := &c.rules[i]

		rel, ok := within(r.Include, abs)
		if !ok {
			continue
		}
		included = true

		for _, p := range r.Patterns {
			// patterns were validated in New
			if matched, _ := doublestar.Match(p, rel); matched {
				return Match{Rule: r, Index: i, Rel: rel}, nil
			}
		}
	}

	if !included {
		return Match{}, fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return Match{}, fmt.Errorf("%w: %s", ErrNoMatchingRule, path)
}

// ShouldInline reports whether a file of the given size is embedded in the
// bundle. Only inline rules embed, and only strictly below their limit.
func ShouldInline(r *Rule, size int64) bool {
	return r.Kind == KindInline && size < r.Limit
}

func within(root, path string) (string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
