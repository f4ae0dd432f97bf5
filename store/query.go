package store

import "github.com/eventric-io/eventstore/store/hashkey"

// VersionRange is the half-open interval [Min, Max) a Specifier may filter
// on. A nil Max means unbounded above.
type VersionRange = hashkey.VersionRange

// Specifier is an OR-leaf of a Specifiers selector: an identifier with an
// optional version-range filter.
type Specifier struct {
	Identifier string
	Range      *VersionRange
}

// Selector is the tagged variant the planner dispatches on. Kind decides
// which of the fields below are meaningful (see the field comments); the
// unexported marker field stops other packages from building a Selector
// with an unkeyed composite literal.
type Selector struct {
	Kind SelectorKind

	Specifiers []Specifier // SelectorSpecifiers, SelectorSpecifiersAndTags
	Tags       []string    // SelectorTags, SelectorSpecifiersAndTags

	selectorMarker struct{}
}

type SelectorKind int

const (
	SelectorSpecifiers SelectorKind = iota
	SelectorTags
	SelectorSpecifiersAndTags
)

// SpecifiersSelector builds an OR-over-identifiers selector.
func SpecifiersSelector(specs ...Specifier) Selector {
	return Selector{Kind: SelectorSpecifiers, Specifiers: specs}
}

// TagsSelector builds an AND-over-tags selector.
func TagsSelector(tags ...string) Selector {
	return Selector{Kind: SelectorTags, Tags: tags}
}

// SpecifiersAndTagsSelector builds the AND of a Specifiers selector and a
// Tags selector.
func SpecifiersAndTagsSelector(specs []Specifier, tags []string) Selector {
	return Selector{Kind: SelectorSpecifiersAndTags, Specifiers: specs, Tags: tags}
}

// Hash fingerprints the selector: the keyed hash of its kind plus the
// canonicalised, order-independent set of its member hashes.
func (s Selector) Hash() uint64 {
	members := make([]uint64, 0, len(s.Specifiers)+len(s.Tags))
	for _, spec := range s.Specifiers {
		members = append(members, hashkey.Specifier(spec.Identifier, spec.Range))
	}
	for _, tag := range s.Tags {
		members = append(members, hashkey.Tag(tag))
	}
	return hashkey.Selector(uint8(s.Kind), members)
}

// Query is a non-empty OR-list of Selectors.
type Query struct {
	Selectors []Selector
}

// Hash fingerprints the query: the keyed hash of its order-independent
// selector-hash set, so two queries naming the same selectors in a
// different order fingerprint identically.
func (q Query) Hash() uint64 {
	hashes := make([]uint64, len(q.Selectors))
	for i, sel := range q.Selectors {
		hashes[i] = sel.Hash()
	}
	return hashkey.Query(hashes)
}

// Condition restricts a Query (or an append's optimistic guard) to
// positions >= From.
type Condition struct {
	Matches Query
	From    uint64
}
