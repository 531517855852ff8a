// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package topic assigns a subject and topic to a question by keyword density.
//
// The confidence value is hit density over the winning subject vocabulary,
// capped at 1. It is a coarse proxy, not a calibrated probability.
package topic

import (
	"fmt"
	"strings"

	"github.com/jeranaias/doubtrun/internal/util"
)

// General is the label used when no vocabulary matches.
const General = "General"

// hitsForFullConfidence is the hit count at which confidence saturates.
const hitsForFullConfidence = 3

// Classification is the subject/topic assignment for one question.
type Classification struct {
	Subject    string  `json:"subject"`
	Topic      string  `json:"topic"`
	SubTopic   string  `json:"sub_topic"`
	Confidence float64 `json:"confidence"`
}

// String returns a short label such as "Mathematics/Calculus".
func (c Classification) String() string {
	return fmt.Sprintf("%s/%s", c.Subject, c.Topic)
}

// IsGeneral reports whether no subject vocabulary matched.
func (c Classification) IsGeneral() bool {
	return c.Subject == General
}

// Classify picks the subject with the most vocabulary hits, then the best
// topic inside that subject. Ties keep the first-declared entry. Pure and
// deterministic.
func Classify(question string) Classification {
	lower := util.FoldCase(question)

	best := -1
	bestHits := 0
	for i, s := range subjects {
		if hits := countHits(lower, s.keywords); hits > bestHits {
			best, bestHits = i, hits
		}
	}

	if best < 0 {
		return Classification{Subject: General, Topic: General, SubTopic: General}
	}

	subject := subjects[best]
	topicName := General
	bestTopicHits := 0
	for _, t := range subject.topics {
		if hits := countHits(lower, t.keywords); hits > bestTopicHits {
			topicName, bestTopicHits = t.name, hits
		}
	}

	confidence := float64(bestHits) / hitsForFullConfidence
	if confidence > 1 {
		confidence = 1
	}

	return Classification{
		Subject:    subject.name,
		Topic:      topicName,
		SubTopic:   General,
		Confidence: confidence,
	}
}

// Subjects returns the subject names in declaration order.
func Subjects() []string {
	out := make([]string, len(subjects))
	for i, s := range subjects {
		out[i] = s.name
	}
	return out
}

// countHits counts distinct keywords that occur as substrings of lower.
func countHits(lower string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			n++
		}
	}
	return n
}
