// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jeranaias/doubtrun/internal/util"
)

// ============================================================================
// CLASSIFICATION RULES
// ============================================================================

// Length thresholds in characters.
const (
	longQuestionChars   = 500
	mediumQuestionChars = 200
)

// equationPatterns detect math-like content. Each pattern counts once no
// matter how many times it occurs in the text.
var equationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[=+\-*/^√∫∑∏]`),
	regexp.MustCompile(`\d+\s*[+\-*/^]\s*\d+`),
	regexp.MustCompile(`\\frac|\\int|\\sum|\\sqrt`),
	regexp.MustCompile(`(?i)\b(sin|cos|tan|log|ln|lim|derivative|integral)\b`),
	regexp.MustCompile(`(?i)\b(equation|formula|solve|calculate|compute|evaluate)\b`),
}

// hardKeywords mark exam-level or advanced-coursework questions.
var hardKeywords = []string{
	"jee advanced",
	"jee main",
	"neet",
	"derivation",
	"prove that",
	"multi-step",
	"complex",
	"advanced",
	"numerical",
	"integration",
	"differentiation",
	"organic mechanism",
	"quantum",
	"thermodynamics",
	"electromagnetic",
	"nuclear",
	"relativity",
}

// expertKeywords mark graduate or olympiad material.
var expertKeywords = []string{
	"olympiad",
	"research",
	"graduate level",
	"phd",
	"advanced topology",
	"abstract algebra",
	"real analysis",
	"complex analysis",
}

var multiStepPattern = regexp.MustCompile(`(?i)step\s*[1-9]|part\s*[a-e(]`)

// ============================================================================
// CLASSIFY
// ============================================================================

// Classify scores the structural difficulty of a question.
//
// Rules, applied in order (each appends a reason when it fires):
//  1. Length: > 500 chars +2, else > 200 chars +1
//  2. Equation patterns: >= 3 distinct patterns +3, >= 1 pattern +1
//  3. Hard keywords: +2 per keyword present
//  4. Expert keywords: +3 per keyword present
//  5. Multi-step markers ("step 1", "part a"): +2
//
// Score >= 8 is expert, >= 5 hard, >= 2 medium, otherwise easy.
// Classify is pure and deterministic.
func Classify(question string) Assessment {
	score := 0
	reasons := make([]string, 0, 5)

	// Length is in runes, not UTF-16 units: an emoji or a math-script
	// letter counts as one character.
	length := util.RuneLen(question)
	if length > longQuestionChars {
		score += 2
		reasons = append(reasons, "Long question text")
	} else if length > mediumQuestionChars {
		score++
		reasons = append(reasons, "Medium-length question")
	}

	equations := countEquationPatterns(question)
	if equations >= 3 {
		score += 3
		reasons = append(reasons, "Multiple mathematical expressions detected")
	} else if equations >= 1 {
		score++
		reasons = append(reasons, "Mathematical expressions detected")
	}

	lower := util.FoldCase(question)

	if hits := matchKeywords(lower, hardKeywords); len(hits) > 0 {
		score += 2 * len(hits)
		reasons = append(reasons, fmt.Sprintf("Advanced keywords: %s", strings.Join(hits, ", ")))
	}

	if hits := matchKeywords(lower, expertKeywords); len(hits) > 0 {
		score += 3 * len(hits)
		reasons = append(reasons, fmt.Sprintf("Expert-level keywords: %s", strings.Join(hits, ", ")))
	}

	if multiStepPattern.MatchString(question) {
		score += 2
		reasons = append(reasons, "Multi-step problem detected")
	}

	return Assessment{
		Level:   levelFromScore(score),
		Score:   score,
		Reasons: reasons,
	}
}

// countEquationPatterns returns how many distinct equation patterns match.
func countEquationPatterns(text string) int {
	count := 0
	for _, p := range equationPatterns {
		if p.MatchString(text) {
			count++
		}
	}
	return count
}

// matchKeywords returns the keywords present in lower, in list order.
func matchKeywords(lower string, keywords []string) []string {
	var hits []string
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			hits = append(hits, kw)
		}
	}
	return hits
}
