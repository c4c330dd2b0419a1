// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package semantic

import (
	"regexp"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeAlias lowercases a value and collapses punctuation to single
// spaces. Applied before every lexical comparison so that "ACME Corp." and
// "acme corp" compare equal.
func NormalizeAlias(value string) string {
	return strings.TrimSpace(nonAlnum.ReplaceAllString(strings.ToLower(value), " "))
}

// normalizeToken strips everything but alphanumerics, for label matching.
func normalizeToken(value string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(value), "")
}

// LexicalSim returns a similarity ratio in [0, 1] between two strings:
// twice the matched character count over the total length, computed from a
// character-level diff.
func LexicalSim(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}
	if a == b {
		return 1.0
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, false)
	matched := 0
	for _, d := range diffs {
		if d.Type == diffmatchpatch.DiffEqual {
			matched += len(d.Text)
		}
	}
	return 2.0 * float64(matched) / float64(len(a)+len(b))
}

// labelBonus is 1 when any candidate label intersects the hint set after
// normalization, else 0. The resolver weighs it by w3.
func labelBonus(labels []string, hints map[string]bool) float64 {
	if len(labels) == 0 || len(hints) == 0 {
		return 0.0
	}
	for _, label := range labels {
		if hints[normalizeToken(label)] {
			return 1.0
		}
	}
	return 0.0
}
