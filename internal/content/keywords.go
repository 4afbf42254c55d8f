// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package content

// KeywordMatcher finds configured keywords in text with an Aho-Corasick automaton,
// so a blacklist of any size costs one pass over the text.
//
// Matching is exact and case-sensitive. A matcher is immutable after construction
// and safe for concurrent use.
//
//	m := content.NewKeywordMatcher([]string{"rumor", "leaked"})
//	kw, ok := m.First("Leaked memo shows rumor was true") // "rumor", true
type KeywordMatcher struct {
	root     *acNode
	keywords []string
}

type acNode struct {
	children map[rune]*acNode
	failure  *acNode
	output   []int // indices into keywords ending at this node
}

func newACNode() *acNode {
	return &acNode{children: make(map[rune]*acNode)}
}

// NewKeywordMatcher builds a matcher for the non-empty, de-duplicated keywords.
func NewKeywordMatcher(keywords []string) *KeywordMatcher {
	m := &KeywordMatcher{root: newACNode()}
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		m.insert(len(m.keywords), kw)
		m.keywords = append(m.keywords, kw)
	}
	m.buildFailureLinks()
	return m
}

func (m *KeywordMatcher) insert(index int, kw string) {
	node := m.root
	for _, ch := range kw {
		next := node.children[ch]
		if next == nil {
			next = newACNode()
			node.children[ch] = next
		}
		node = next
	}
	node.output = append(node.output, index)
}

// buildFailureLinks links every node to its longest proper suffix present in the trie (BFS).
func (m *KeywordMatcher) buildFailureLinks() {
	queue := make([]*acNode, 0, len(m.root.children))
	for _, child := range m.root.children {
		child.failure = m.root
		queue = append(queue, child)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for ch, child := range current.children {
			queue = append(queue, child)

			fail := current.failure
			for fail != nil && fail.children[ch] == nil {
				fail = fail.failure
			}
			if fail == nil {
				child.failure = m.root
				continue
			}
			child.failure = fail.children[ch]
			child.output = append(child.output, child.failure.output...)
		}
	}
}

// First returns the keyword whose occurrence ends earliest in text.
// Among keywords ending at the same position the one configured first wins.
func (m *KeywordMatcher) First(text string) (string, bool) {
	if len(m.keywords) == 0 {
		return "", false
	}

	node := m.root
	for _, ch := range text {
		for node != m.root && node.children[ch] == nil {
			node = node.failure
		}
		if next := node.children[ch]; next != nil {
			node = next
		}
		if len(node.output) > 0 {
			best := node.output[0]
			for _, idx := range node.output[1:] {
				if idx < best {
					best = idx
				}
			}
			return m.keywords[best], true
		}
	}
	return "", false
}

// Contains reports whether any keyword occurs in text.
func (m *KeywordMatcher) Contains(text string) bool {
	_, ok := m.First(text)
	return ok
}

// Count returns how many occurrences of any keyword text contains, overlapping included.
func (m *KeywordMatcher) Count(text string) int {
	if len(m.keywords) == 0 {
		return 0
	}

	n := 0
	node := m.root
	for _, ch := range text {
		for node != m.root && node.children[ch] == nil {
			node = node.failure
		}
		if next := node.children[ch]; next != nil {
			node = next
		}
		n += len(node.output)
	}
	return n
}

// Len returns the number of distinct keywords.
func (m *KeywordMatcher) Len() int {
	return len(m.keywords)
}
