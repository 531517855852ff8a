// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package resolve

import (
	"fmt"
	"strings"
)

// SystemPrompt instructs every tier to answer in the same three sections.
const SystemPrompt = `You are an expert academic tutor for Indian students preparing for NEET, JEE Main, and JEE Advanced exams. Your role is to:

1. Provide step-by-step solutions with clear explanations
2. Simplify complex concepts using analogies and examples
3. Suggest related concepts the student should review
4. Identify potential misconceptions
5. Format mathematical expressions clearly

Always structure your response as:
## Solution
[Step-by-step solution]

## Simplified Explanation
[Easy-to-understand explanation]

## Related Concepts
[List of related topics to review]

Be encouraging, patient, and thorough in your explanations.`

const (
	// ImagePlaceholder is classified in place of empty question text.
	ImagePlaceholder = "Image-based question"

	// EmptyCompletionText replaces an empty provider answer.
	EmptyCompletionText = "Unable to generate response."

	defaultImagePrompt = "Please analyze this image."

	imageInstruction = "The student has uploaded an image. Please carefully examine the image, " +
		"identify any questions, problems, diagrams, or content shown, and provide a detailed " +
		"step-by-step solution or explanation."

	jpegDataURLPrefix = "data:image/jpeg;base64,"
)

// FollowUpText embeds the previous question so a follow-up is answered in
// context.
func FollowUpText(prior, text string) string {
	return fmt.Sprintf("Context: The student previously asked \"%s\" and received this answer. Now they have a follow-up question: %s", prior, text)
}

// imagePrompt is the user message sent alongside an image.
func imagePrompt(text string) string {
	if strings.TrimSpace(text) == "" {
		text = defaultImagePrompt
	}
	return text + "\n\n" + imageInstruction
}

// ImageDataURL turns raw base64 into a data URL. Values that are already
// data URLs pass through.
func ImageDataURL(image string) string {
	if strings.HasPrefix(image, "data:") {
		return image
	}
	return jpegDataURLPrefix + image
}
