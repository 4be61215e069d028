package upload

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// Gate checks size and type against an entry point's Rule. It does not
// trust the Router's category; the allow-lists are consulted directly.
type Gate struct {
	policy *Policy
}

func NewGate(policy *Policy) *Gate {
	return &Gate{policy: policy}
}

// Ceiling is the largest size any file accepted by rule may have.
func (g *Gate) Ceiling(rule Rule) int64 {
	var ceiling int64
	for _, c := range rule.Categories {
		if size := g.policy.MaxSize[c]; size > ceiling {
			ceiling = size
		}
	}
	return ceiling
}

// AllowedTypes lists every MIME type accepted by rule.
func (g *Gate) AllowedTypes(rule Rule) []string {
	var types []string
	for _, c := range rule.Categories {
		types = append(types, g.policy.AllowedTypes[c]...)
	}
	return types
}

// Check runs both the type and the size check and returns the category
// whose allow-list matched.
func (g *Gate) Check(rule Rule, mimeType string, size int64) (Category, error) {
	mimeType = normalizeMime(mimeType)
	if size < 0 {
		size = 0
	}

	category, ok := g.match(rule, mimeType)
	if !ok {
		return "", newError(KindUnsupportedType, fmt.Sprintf(
			"file type %q is not allowed; allowed types: %s",
			mimeType, strings.Join(g.AllowedTypes(rule), ", "),
		), nil)
	}

	ceiling := g.policy.MaxSize[category]
	if rule.Union {
		ceiling = g.Ceiling(rule)
	}
	if size > ceiling {
		return "", newError(KindFileTooLarge, fmt.Sprintf(
			"file is %s, which exceeds the %s limit for %s uploads",
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(ceiling)), category,
		), nil)
	}
	return category, nil
}

func (g *Gate) match(rule Rule, mimeType string) (Category, bool) {
	for _, c := range rule.Categories {
		if g.policy.allows(c, mimeType) {
			return c, true
		}
	}
	return "", false
}
