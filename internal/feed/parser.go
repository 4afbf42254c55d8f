// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

// Package feed converts RSS and Atom documents into content items. It does no
// network fetching; sources hand it documents they already hold.
package feed

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/tomtom215/newsdesk/internal/content"
)

// Source yields raw items for ingestion.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]*content.Item, error)
}

// Parser turns feed documents into items.
type Parser struct {
	parser *gofeed.Parser
	// targetLanguage marks items in any other language as needing translation.
	targetLanguage string
}

// NewParser creates a Parser. Items whose language does not start with
// targetLanguage are flagged NeedsTranslation; an empty target flags nothing.
func NewParser(targetLanguage string) *Parser {
	return &Parser{parser: gofeed.NewParser(), targetLanguage: strings.ToLower(targetLanguage)}
}

// ParseRSS parses data with a default Parser targeting Chinese readers.
func ParseRSS(data []byte, sourceName string) ([]*content.Item, error) {
	return NewParser("zh").Parse(data, sourceName)
}

// Parse converts an RSS or Atom document. sourceName overrides the feed title as
// the item source when set.
func (p *Parser) Parse(data []byte, sourceName string) ([]*content.Item, error) {
	f, err := p.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	source := coalesce(sourceName, f.Title)
	items := make([]*content.Item, 0, len(f.Items))
	for _, fi := range f.Items {
		it := &content.Item{
			Title:    strings.TrimSpace(HTMLToText(fi.Title)),
			Body:     HTMLToText(coalesce(fi.Content, fi.Description)),
			Source:   source,
			URL:      fi.Link,
			Topics:   normalizeCategories(fi.Categories),
			Language: strings.ToLower(f.Language),
		}
		if fi.Author != nil {
			it.Author = fi.Author.Name
		} else if len(fi.Authors) > 0 && fi.Authors[0] != nil {
			it.Author = fi.Authors[0].Name
		}

		it.PublishedRaw = coalesce(fi.Published, fi.Updated)
		switch {
		case fi.PublishedParsed != nil:
			it.PublishedAt = fi.PublishedParsed.UTC()
		case fi.UpdatedParsed != nil:
			it.PublishedAt = fi.UpdatedParsed.UTC()
		default:
			if t, ok := content.ParseTime(it.PublishedRaw); ok {
				it.PublishedAt = t
			}
		}

		if it.Language == "" {
			it.Language = DetectLanguage(it.Title + " " + it.Body)
		}
		it.NeedsTranslation = p.targetLanguage != "" && it.Language != "" &&
			!strings.HasPrefix(it.Language, p.targetLanguage)

		items = append(items, it)
	}
	return items, nil
}

// HTMLToText strips markup, scripts and styles and collapses whitespace.
// Plain text passes through with whitespace collapsed.
func HTMLToText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	doc.Find("script, style, nav, footer, aside").Remove()
	doc.Find("p, div, br, li, tr, h1, h2, h3, h4, h5, h6, blockquote").AfterHtml(" ")
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// DetectLanguage guesses "zh" when Han characters make up at least a third of
// the letters, "en" when there are other letters, and "" for text without letters.
func DetectLanguage(text string) string {
	var han, letters int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			han++
			letters++
		case unicode.IsLetter(r):
			letters++
		}
	}
	switch {
	case letters == 0:
		return ""
	case han*3 >= letters:
		return "zh"
	default:
		return "en"
	}
}

// FileSource reads a feed document from disk on every Fetch.
type FileSource struct {
	SourceName string `koanf:"name"`
	Path       string `koanf:"path" validate:"required"`
	parser     *Parser
}

var _ Source = (*FileSource)(nil)

// NewFileSource creates a source reading path.
func NewFileSource(name, path string, parser *Parser) *FileSource {
	if parser == nil {
		parser = NewParser("zh")
	}
	return &FileSource{SourceName: name, Path: path, parser: parser}
}

// Name returns the configured source name, or the path when unnamed.
func (s *FileSource) Name() string {
	return coalesce(s.SourceName, s.Path)
}

// Fetch reads and parses the file.
func (s *FileSource) Fetch(ctx context.Context) ([]*content.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read feed %s: %w", s.Path, err)
	}
	return s.parser.Parse(data, s.SourceName)
}

func normalizeCategories(cats []string) []string {
	if len(cats) == 0 {
		return nil
	}
	out := make([]string, 0, len(cats))
	seen := make(map[string]struct{}, len(cats))
	for _, c := range cats {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
