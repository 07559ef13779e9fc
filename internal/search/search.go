// Package search implements the fold-insensitive text predicates used by the
// fork query layer.
package search

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/kitchen-mate/clipper/internal/model"
)

// Fold returns s case-folded for caseless comparison.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// Contains reports whether needle occurs in haystack under case folding.
func Contains(haystack, needle string) bool {
	return strings.Contains(Fold(haystack), Fold(needle))
}

// HasAllTags reports whether have contains every tag in want (set
// intersection, folded). An empty want matches everything.
func HasAllTags(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[Fold(t)] = struct{}{}
	}
	for _, t := range want {
		if _, ok := set[Fold(t)]; !ok {
			return false
		}
	}
	return true
}

// MatchesFork reports whether a fork matches a free-text query. The query is
// checked against title, description, ingredient text, instructions, tags
// and notes. An empty query matches everything.
func MatchesFork(payload *model.Recipe, tags []string, notes, query string) bool {
	if query == "" {
		return true
	}
	if payload != nil {
		if Contains(payload.Title, query) || Contains(payload.Description, query) {
			return true
		}
		for _, ing := range payload.Ingredients {
			if Contains(ing.Name, query) || Contains(ing.DisplayText, query) {
				return true
			}
		}
		for _, step := range payload.Instructions {
			if Contains(step, query) {
				return true
			}
		}
	}
	for _, t := range tags {
		if Contains(t, query) {
			return true
		}
	}
	return notes != "" && Contains(notes, query)
}
