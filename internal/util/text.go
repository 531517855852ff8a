// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
	"golang.org/x/text/cases"
)

// FoldCase returns s case-folded for case-insensitive substring matching.
// A new Caser is built per call because Casers are not safe for concurrent use.
func FoldCase(s string) string {
	return cases.Fold().String(s)
}

// RuneLen returns the number of characters in s.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// TruncateRunes truncates s to at most maxRunes characters, appending "..."
// when anything was cut.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// TruncateRunesNoEllipsis truncates s to at most maxRunes characters.
func TruncateRunesNoEllipsis(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	return string([]rune(s)[:maxRunes])
}

// TruncateWidth truncates s to maxWidth terminal columns. Wide (CJK)
// characters count as two columns.
func TruncateWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	return runewidth.Truncate(s, maxWidth, "...")
}

var (
	speechHeading = regexp.MustCompile(`##\s*`)
	speechBullet  = regexp.MustCompile(`-\s+`)
	blankRuns     = regexp.MustCompile(`\n{2,}`)
)

// CleanSpeechText strips markdown so text reads naturally when synthesised:
// headings and emphasis are dropped, bullets and paragraph breaks become
// sentence breaks.
func CleanSpeechText(s string) string {
	s = speechHeading.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "*", "")
	s = speechBullet.ReplaceAllString(s, ". ")
	s = blankRuns.ReplaceAllString(s, ". ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
