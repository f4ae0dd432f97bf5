package store

import (
	"unicode"
	"unicode/utf8"

	"github.com/eventric-io/eventstore/store/types"
)

func validateToken(kind, value string) error {
	if value == "" {
		return types.Validationf("%s must not be empty", kind)
	}
	if !utf8.ValidString(value) {
		return types.Validationf("%s must be valid UTF-8", kind)
	}
	for _, r := range value {
		if unicode.IsControl(r) {
			return types.Validationf("%s must not contain control characters", kind)
		}
		if unicode.IsSpace(r) {
			return types.Validationf("%s must not contain whitespace", kind)
		}
	}
	return nil
}

func validateCandidate(c CandidateEvent) error {
	if len(c.Data) == 0 {
		return types.Validationf("data must not be empty")
	}
	if err := validateToken("identifier", c.Identifier); err != nil {
		return err
	}
	for _, tag := range c.Tags {
		if err := validateToken("tag", tag); err != nil {
			return err
		}
	}
	return nil
}

// dedupTags coalesces duplicate tags, preserving first-seen order.
func dedupTags(tags []string) []string {
	if len(tags) < 2 {
		return tags
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
