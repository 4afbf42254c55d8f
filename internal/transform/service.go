// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

// Package transform is the boundary to the external text transformation service
// (analysis, rewriting, translation and free-form scoring prompts).
//
// Two implementations satisfy Service: RemoteService talks to any OpenAI-compatible
// chat endpoint, StubService returns deterministic canned results. The choice is made
// once at construction time in main.
//
// Every failure surfaces as a *ServiceError, which matches ErrUnavailable under errors.Is.
// Callers treat that as "service unavailable" and fall back to local behavior.
package transform

import (
	"context"
	"errors"
	"fmt"
)

// Action is the analysis recommendation for an item.
type Action string

const (
	ActionKeep    Action = "keep"
	ActionRewrite Action = "rewrite"
	ActionFilter  Action = "filter"
)

// AnalysisResult is the per-item output of Analyze.
type AnalysisResult struct {
	// Sentiment ranges from -1 (negative) to 1 (positive).
	Sentiment float64 `json:"sentiment_score"`

	// PatrioticLevel, TechRelevance, Formality, Sensationalism and Clickbait range 0..1.
	PatrioticLevel float64 `json:"patriotic_level"`
	TechRelevance  float64 `json:"tech_relevance"`
	Formality      float64 `json:"formality"`
	Sensationalism float64 `json:"sensationalism"`
	Clickbait      float64 `json:"clickbait_score"`

	// Topics lists the main topics detected in the text.
	Topics []string `json:"main_topics"`

	// Action is the recommended handling.
	Action Action `json:"recommended_action"`

	// Reason is an optional short explanation from the service.
	Reason string `json:"reason,omitempty"`
}

// Clamp forces every field into its documented range and defaults Action to keep.
func (a *AnalysisResult) Clamp() {
	a.Sentiment = clamp(a.Sentiment, -1, 1)
	a.PatrioticLevel = clamp(a.PatrioticLevel, 0, 1)
	a.TechRelevance = clamp(a.TechRelevance, 0, 1)
	a.Formality = clamp(a.Formality, 0, 1)
	a.Sensationalism = clamp(a.Sensationalism, 0, 1)
	a.Clickbait = clamp(a.Clickbait, 0, 1)
	switch a.Action {
	case ActionKeep, ActionRewrite, ActionFilter:
	default:
		a.Action = ActionKeep
	}
}

// StyleFeatures returns the analysis as named style dimensions, the shape feedback
// events carry and the preference model learns from.
func (a *AnalysisResult) StyleFeatures() map[string]float64 {
	return map[string]float64{
		"patriotic_tone":  a.PatrioticLevel,
		"formality":       a.Formality,
		"emotional_level": a.Sentiment,
	}
}

// StyleSpec describes the target style for Rewrite.
type StyleSpec struct {
	// Preferences maps style dimensions (patriotic_tone, formality, emotional_level) to 0..1 targets.
	Preferences map[string]float64 `json:"preferences,omitempty" koanf:"preferences"`

	// Guidelines are free-text editing instructions.
	Guidelines []string `json:"guidelines,omitempty" koanf:"guidelines"`
}

// Service is the text transformation capability consumed by the pipeline.
// All methods may block on the network and may fail; none of them may panic.
type Service interface {
	// Analyze scores sentiment and style and recommends an Action.
	Analyze(ctx context.Context, text string) (*AnalysisResult, error)

	// Rewrite returns text restyled according to style.
	Rewrite(ctx context.Context, text string, style StyleSpec) (string, error)

	// Translate returns text translated into targetLang.
	Translate(ctx context.Context, text, targetLang string) (string, error)

	// Complete answers a free-form prompt; scoring adjustment parses a number out of the reply.
	Complete(ctx context.Context, prompt string) (string, error)
}

// Operation names used for metrics and errors.
const (
	OpAnalyze   = "analyze"
	OpRewrite   = "rewrite"
	OpTranslate = "translate"
	OpComplete  = "complete"
)

// ErrUnavailable matches every *ServiceError under errors.Is.
var ErrUnavailable = errors.New("transform service unavailable")

// ServiceError reports a failed or timed out transform call.
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("transform %s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Is makes every ServiceError match ErrUnavailable.
func (e *ServiceError) Is(target error) bool { return target == ErrUnavailable }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
