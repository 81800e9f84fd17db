package classify

import "github.com/wolfeidau/assetpipe/internal/config"

// NewFromDescriptor builds a classifier from the descriptor's rule list.
func NewFromDescriptor(d *config.Descriptor) (*Classifier, error) {
	rules := make([]Rule, 0, len(d.Rules))
	for _, r := range d.Rules {
		rules = append(rules, Rule{
			Name:     r.Name,
			Patterns: r.Test,
			Include:  d.IncludeRoot(r),
			Kind:     Kind(r.Use),
			Limit:    r.Limit,
			Filename: r.Filename,
		})
	}
	return New(rules)
}
