package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/wolfeidau/assetpipe/internal/classify"
	"github.com/wolfeidau/assetpipe/internal/logger"
)

type ClassifyCmd struct {
	DescriptorFlags `embed:""`

	Paths []string `arg:"" help:"files to classify, relative to the working directory" type:"path"`
}

func (c *ClassifyCmd) Run(ctx context.Context, globals *Globals) error {
	logger.Setup(globals.Debug)

	desc, err := c.load()
	if err != nil {
		return err
	}

	classifier, err := classify.NewFromDescriptor(desc)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tRULE\tKIND\tCHAIN\tRESULT")

	var failed []string
	for _, path := range c.Paths {
		m, err := classifier.Classify(path)
		switch {
		case errors.Is(err, classify.ErrOutsideRoot):
			fmt.Fprintf(w, "%s\t-\t-\t-\tengine default\n", path)
			continue
		case err != nil:
			fmt.Fprintf(w, "%s\t-\t-\t-\terror: no matching rule\n", path)
			failed = append(failed, path)
			continue
		}

		chain := make([]string, 0, len(m.Rule.Kind.Chain()))
		for _, step := range m.Rule.Kind.Chain() {
			chain = append(chain, string(step))
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", path, m.Rule.Name, m.Rule.Kind, strings.Join(chain, " > "), result(m.Rule, path))
	}

	if err := w.Flush(); err != nil {
		return err
	}

	if len(failed) > 0 {
		return fmt.Errorf("%w: %s", classify.ErrNoMatchingRule, strings.Join(failed, ", "))
	}
	return nil
}

func result(r *classify.Rule, path string) string {
	switch r.Kind {
	case classify.KindInline:
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Sprintf("inline below %d bytes", r.Limit)
		}
		if classify.ShouldInline(r, info.Size()) {
			return fmt.Sprintf("inline (%d < %d bytes)", info.Size(), r.Limit)
		}
		return fmt.Sprintf("emit (%d >= %d bytes)", info.Size(), r.Limit)
	case classify.KindEmit:
		return "emit"
	case classify.KindStylesheet:
		return "extract stylesheet"
	default:
		return "bundle"
	}
}
