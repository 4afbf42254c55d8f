// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package content

import "strings"

// Content types assigned by the default classifier.
const (
	TypeTech     = "tech"
	TypePolitics = "politics"
	TypeEconomy  = "economy"
	TypeSocial   = "social"
	TypeGeneral  = "general"
)

// TypeClassifier maps an item to a content type used for schedule matching.
type TypeClassifier interface {
	ClassifyType(item *Item) string
}

// TypeRule assigns Type when the lower-cased title contains any of Keywords,
// or the lower-cased source contains any of SourceKeywords.
type TypeRule struct {
	Type           string
	Keywords       []string
	SourceKeywords []string
}

// KeywordTypeClassifier applies TypeRules in order; the first match wins.
type KeywordTypeClassifier struct {
	Rules    []TypeRule
	Fallback string
}

var _ TypeClassifier = (*KeywordTypeClassifier)(nil)

// DefaultTypeClassifier returns the built-in English and Chinese keyword rules.
func DefaultTypeClassifier() *KeywordTypeClassifier {
	return &KeywordTypeClassifier{
		Rules: []TypeRule{
			{Type: TypeTech, Keywords: []string{
				"tech", "artificial intelligence", "5g", "quantum", "space", "computer", "software",
				"航天", "科技", "人工智能", "量子",
			}},
			{Type: TypePolitics, Keywords: []string{
				"politics", "political", "government", "election", "diplomacy", "china",
				"外交", "政策", "中国",
			}},
			{Type: TypeEconomy, Keywords: []string{
				"economy", "market", "trade", "stock", "bank", "finance",
				"经济", "金融", "贸易",
			}},
			{Type: TypeSocial, Keywords: []string{
				"social", "weibo", "zhihu", "trending", "hot",
				"微博", "知乎",
			}, SourceKeywords: []string{"微博", "知乎", "weibo", "zhihu"}},
		},
		Fallback: TypeGeneral,
	}
}

// ClassifyType returns the first matching rule's type, or Fallback.
func (c *KeywordTypeClassifier) ClassifyType(item *Item) string {
	title := strings.ToLower(item.Title)
	source := strings.ToLower(item.Source)
	for _, rule := range c.Rules {
		if containsAny(title, rule.Keywords) || containsAny(source, rule.SourceKeywords) {
			return rule.Type
		}
	}
	return c.Fallback
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
