// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// classify.go - Show how a question would be graded and routed.
//
// No provider is called and no usage is recorded, so classify works
// without API keys or a usage store.

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/doubtrun/internal/router"
	"github.com/jeranaias/doubtrun/internal/server"
	"github.com/jeranaias/doubtrun/internal/topic"
)

func newClassifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <question>",
		Short: "Grade difficulty, tag the subject and show the routed model",
		Example: `  doubtrun classify "Integrate x^2 from 0 to 3"
  doubtrun classify --json "What is photosynthesis?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return &ValidationError{Field: "question", Reason: "Question is required"}
			}

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			resp := Classify(router.New(cfg.Models.RouterModels()), question)

			if opts.jsonOutput {
				return NewJSONResponse("classify", resp).Print(cmd.OutOrStdout())
			}
			printClassification(cmd.OutOrStdout(), resp)
			return nil
		},
	}
}

// Classify builds the same payload POST /v1/classify returns.
func Classify(rt *router.Router, question string) server.ClassifyResponse {
	decision := rt.Route(question)
	resp := server.ClassifyResponse{
		Assessment: decision.Assessment,
		Topic:      topic.Classify(question),
		Model:      decision.Model,
	}
	if next, ok := rt.NextFallback(decision.Assessment.Level); ok {
		resp.Fallback = &next
	}
	return resp
}

func printClassification(w io.Writer, c server.ClassifyResponse) {
	fmt.Fprintln(w, TitleStyle.Render("Classification"))

	fmt.Fprintln(w, RenderLabel("Difficulty")+RenderLevel(c.Assessment.Level)+
		DimStyle.Render(fmt.Sprintf("  (score %d)", c.Assessment.Score)))
	fmt.Fprintln(w, RenderField("Subject", c.Topic.Subject))
	fmt.Fprintln(w, RenderField("Topic", c.Topic.Topic))
	if c.Topic.SubTopic != "" {
		fmt.Fprintln(w, RenderField("Sub-topic", c.Topic.SubTopic))
	}
	fmt.Fprintln(w, RenderField("Confidence", fmt.Sprintf("%.2f", c.Topic.Confidence)))

	fmt.Fprintln(w, SectionStyle.Render("Routing"))
	fmt.Fprintln(w, RenderLabel("Model")+HighlightStyle.Render(c.Model.ModelID)+
		DimStyle.Render(fmt.Sprintf("  %s, %s", c.Model.Provider, c.Model.Tier)))
	if c.Fallback != nil {
		fmt.Fprintln(w, RenderField("Fallback", fmt.Sprintf("%s (%s)", c.Fallback.ModelID, c.Fallback.Provider)))
	} else {
		fmt.Fprintln(w, RenderLabel("Fallback")+DimStyle.Render("none"))
	}

	if len(c.Assessment.Reasons) > 0 {
		fmt.Fprintln(w, SectionStyle.Render("Reasons"))
		for _, reason := range c.Assessment.Reasons {
			fmt.Fprintf(w, "  %s %s\n", DimStyle.Render("-"), reason)
		}
	}
}
