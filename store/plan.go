package store

import (
	"github.com/eventric-io/eventstore/store/hashkey"
	"github.com/eventric-io/eventstore/store/iter"
	"github.com/eventric-io/eventstore/store/partition"
)

// planQuery converts a Condition into an OR combinator whose children are
// the per-selector iterators, each lower-bounded by cond.From.
func planQuery(identifierIndex *partition.IdentifierIndex, tagIndex *partition.TagIndex, cond Condition) (iter.PositionIter, error) {
	children := make([]iter.PositionIter, 0, len(cond.Matches.Selectors))
	for _, sel := range cond.Matches.Selectors {
		child, err := planSelector(identifierIndex, tagIndex, sel, cond.From)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return iter.Or(children), nil
}

func planSelector(identifierIndex *partition.IdentifierIndex, tagIndex *partition.TagIndex, sel Selector, from uint64) (iter.PositionIter, error) {
	switch sel.Kind {
	case SelectorSpecifiers:
		return planSpecifiers(identifierIndex, sel.Specifiers, from)
	case SelectorTags:
		return planTags(tagIndex, sel.Tags, from)
	case SelectorSpecifiersAndTags:
		specIter, err := planSpecifiers(identifierIndex, sel.Specifiers, from)
		if err != nil {
			return nil, err
		}
		tagIter, err := planTags(tagIndex, sel.Tags, from)
		if err != nil {
			return nil, err
		}
		return iter.And([]iter.PositionIter{specIter, tagIter}), nil
	default:
		return iter.Empty(), nil
	}
}

func planSpecifiers(identifierIndex *partition.IdentifierIndex, specs []Specifier, from uint64) (iter.PositionIter, error) {
	children := make([]iter.PositionIter, 0, len(specs))
	for _, spec := range specs {
		h := hashkey.Identifier(spec.Identifier)
		child, err := identifierIndex.Scan(h, spec.Range, from)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return iter.Or(children), nil
}

func planTags(tagIndex *partition.TagIndex, tags []string, from uint64) (iter.PositionIter, error) {
	children := make([]iter.PositionIter, 0, len(tags))
	for _, tag := range tags {
		h := hashkey.Tag(tag)
		child, err := tagIndex.Scan(h, from)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	if len(children) == 0 {
		return iter.Empty(), nil
	}
	return iter.And(children), nil
}
