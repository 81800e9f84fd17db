package assets

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// Option configures a Pipeline
type Option func(*Pipeline)

// WithStyleCompiler replaces the libsass compiler used by the stylesheet chain
func WithStyleCompiler(c StyleCompiler) Option {
	return func(p *Pipeline) {
		p.compiler = c
	}
}

var browserPattern = regexp.MustCompile(`^([a-z]+)(\d+(?:\.\d+)*)$`)

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ie":      api.EngineIE,
	"ios":     api.EngineIOS,
	"node":    api.EngineNode,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

// ParseBrowsers converts a browser support policy such as "chrome58" or
// "safari11.1" into esbuild engines.
func ParseBrowsers(browsers []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(browsers))
	for _, b := range browsers {
		m := browserPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(b)))
		if m == nil {
			return nil, fmt.Errorf("invalid browser %q, expected name followed by version", b)
		}
		name, ok := engineNames[m[1]]
		if !ok {
			return nil, fmt.Errorf("unsupported browser %q", m[1])
		}
		engines = append(engines, api.Engine{Name: name, Version: m[2]})
	}
	return engines, nil
}

var targets = map[string]api.Target{
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

// ParseTarget maps a language level name to an esbuild target. es2015 is the
// lowest level esbuild can downlevel to.
func ParseTarget(target string) (api.Target, error) {
	t, ok := targets[strings.ToLower(target)]
	if !ok {
		return api.DefaultTarget, fmt.Errorf("unsupported target %q", target)
	}
	return t, nil
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}
	return falseVal
}
