// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package transform

import (
	"context"
	"strings"
	"sync/atomic"
	"unicode/utf8"
)

// StubService returns deterministic results without any network access.
// It backs development runs and tests. Setting Err makes every call fail with it.
type StubService struct {
	// Analysis is returned by Analyze; DefaultStubAnalysis is used when nil.
	Analysis *AnalysisResult

	// Score is the reply to Complete. Empty replies leave scores unadjusted.
	Score string

	// Err, when set, is returned (wrapped in *ServiceError) from every call.
	Err error

	calls atomic.Int64
}

var _ Service = (*StubService)(nil)

// NewStubService returns a stub with the default analysis.
func NewStubService() *StubService {
	return &StubService{}
}

// DefaultStubAnalysis is a neutral, keep-as-is analysis.
func DefaultStubAnalysis() AnalysisResult {
	return AnalysisResult{
		Sentiment:      0.7,
		PatrioticLevel: 0.6,
		TechRelevance:  0.5,
		Formality:      0.6,
		Sensationalism: 0.3,
		Clickbait:      0.2,
		Topics:         []string{"general"},
		Action:         ActionKeep,
	}
}

// Calls returns how many calls the stub has served.
func (s *StubService) Calls() int64 {
	return s.calls.Load()
}

// Analyze returns a copy of the configured analysis.
func (s *StubService) Analyze(_ context.Context, _ string) (*AnalysisResult, error) {
	s.calls.Add(1)
	if s.Err != nil {
		return nil, &ServiceError{Op: OpAnalyze, Err: s.Err}
	}
	a := DefaultStubAnalysis()
	if s.Analysis != nil {
		a = *s.Analysis
		a.Topics = append([]string(nil), s.Analysis.Topics...)
	}
	return &a, nil
}

// Rewrite prefixes the first 200 runes of text with a marker.
func (s *StubService) Rewrite(_ context.Context, text string, _ StyleSpec) (string, error) {
	s.calls.Add(1)
	if s.Err != nil {
		return "", &ServiceError{Op: OpRewrite, Err: s.Err}
	}
	return "[rewritten] " + truncateRunes(text, 200), nil
}

// Translate prefixes text with the target language.
func (s *StubService) Translate(_ context.Context, text, targetLang string) (string, error) {
	s.calls.Add(1)
	if s.Err != nil {
		return "", &ServiceError{Op: OpTranslate, Err: s.Err}
	}
	return "[" + strings.ToLower(targetLang) + "] " + text, nil
}

// Complete returns the configured Score.
func (s *StubService) Complete(_ context.Context, _ string) (string, error) {
	s.calls.Add(1)
	if s.Err != nil {
		return "", &ServiceError{Op: OpComplete, Err: s.Err}
	}
	return s.Score, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
