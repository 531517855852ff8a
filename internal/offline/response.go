// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package offline

import (
	"fmt"

	"github.com/jeranaias/doubtrun/internal/topic"
)

// FallbackResponse is the deterministic answer returned when every provider
// attempt failed. It names the detected subject and topic so the student
// still gets some orientation.
func FallbackResponse(c topic.Classification) string {
	return fmt.Sprintf(`## Solution
I apologize, but I'm currently unable to process this question through our AI models. Please try again in a moment.

## Question Details
- **Subject**: %[1]s
- **Topic**: %[2]s
- **Detected Complexity**: This appears to be a %[1]s question related to %[2]s.

## What You Can Do
1. Try rephrasing your question
2. Break down the problem into smaller parts
3. Contact your mentor for personalized help

We've logged this question and our team will review it.`, c.Subject, c.Topic)
}
