// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package scoring

import (
	"strings"
	"unicode"
)

// Source categories produced by the default classifier.
const (
	SourceOfficialMedia   = "official_media"
	SourceTechMedia       = "tech_media"
	SourceAcademic        = "academic"
	SourceMainstreamMedia = "mainstream_media"
)

// SourceClassifier maps a source name to the category key looked up in
// Profile.SourceWeights.
type SourceClassifier interface {
	ClassifySource(source string) string
}

// SourceRule assigns Category to sources matching any keyword. Keywords made only of
// ASCII letters and digits must match a whole word; others match as substrings.
type SourceRule struct {
	Category string
	Keywords []string
}

// KeywordSourceClassifier applies rules in order and falls back to Fallback.
type KeywordSourceClassifier struct {
	Rules    []SourceRule
	Fallback string
}

var _ SourceClassifier = (*KeywordSourceClassifier)(nil)

// DefaultSourceClassifier recognizes official, tech and academic outlets.
func DefaultSourceClassifier() *KeywordSourceClassifier {
	return &KeywordSourceClassifier{
		Rules: []SourceRule{
			{Category: SourceOfficialMedia, Keywords: []string{
				"人民", "新华", "央视", "求是", "学习强国",
				"xinhua", "people's daily", "cctv", "qiushi",
			}},
			{Category: SourceTechMedia, Keywords: []string{
				"科技", "创新", "数码", "人工智能",
				"it", "tech", "wired", "techcrunch",
			}},
			{Category: SourceAcademic, Keywords: []string{
				"大学", "学院", "研究", "科学", "学术",
				"university", "institute", "journal", "academy",
			}},
		},
		Fallback: SourceMainstreamMedia,
	}
}

// ClassifySource returns the first matching rule's category. A source that already
// names a category maps to itself.
func (c *KeywordSourceClassifier) ClassifySource(source string) string {
	lower := strings.ToLower(source)
	if lower == c.Fallback {
		return c.Fallback
	}
	for _, rule := range c.Rules {
		if lower == rule.Category {
			return rule.Category
		}
	}
	var words []string
	for _, rule := range c.Rules {
		for _, kw := range rule.Keywords {
			if !isASCIIWord(kw) {
				if strings.Contains(lower, kw) {
					return rule.Category
				}
				continue
			}
			if words == nil {
				words = strings.FieldsFunc(lower, func(r rune) bool {
					return !unicode.IsLetter(r) && !unicode.IsDigit(r)
				})
			}
			for _, w := range words {
				if w == kw {
					return rule.Category
				}
			}
		}
	}
	return c.Fallback
}

func isASCIIWord(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return false
		}
	}
	return s != ""
}
