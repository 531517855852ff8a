// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question resolution.
//
// Examples:
//   doubtrun ask "What is the derivative of x^2?"
//   doubtrun ask --image circuit.png "Find the current through R2"
//   echo "Explain Le Chatelier's principle" | doubtrun ask
//   doubtrun ask --json "What is a mole?"

package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/jeranaias/doubtrun/internal/resolve"
	"github.com/jeranaias/doubtrun/internal/server"
	"github.com/jeranaias/doubtrun/internal/telemetry"
)

const (
	// MaxImageSize bounds --image uploads.
	MaxImageSize = 5 << 20

	// defaultActor is recorded as the actor for CLI usage.
	defaultActor = "cli"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

var (
	markdownRenderer     *glamour.TermRenderer
	markdownRendererOnce sync.Once
)

// renderMarkdown renders content for the terminal, returning it unchanged
// when the renderer is unavailable.
func renderMarkdown(content string) string {
	markdownRendererOnce.Do(func() {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(min(GetTerminalWidth()-4, MaxRenderWidth)),
		)
		if err == nil {
			markdownRenderer = r
		}
	})
	if markdownRenderer == nil {
		return content
	}
	rendered, err := markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// displayResponse renders markdown only when stdout is a terminal so piped
// output is not corrupted by escape codes.
func displayResponse(w io.Writer, response string, tty bool) {
	if tty {
		fmt.Fprint(w, renderMarkdown(response))
		return
	}
	fmt.Fprintln(w, response)
}

// =============================================================================
// ASK COMMAND
// =============================================================================

type askOptions struct {
	imagePath string
	followUp  string
	actor     string
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	ao := &askOptions{}

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Resolve one question and print the answer",
		Example: `  doubtrun ask "What is the derivative of x^2?"
  doubtrun ask --image circuit.png "Find the current through R2"
  echo "Explain Le Chatelier's principle" | doubtrun ask`,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := buildQuestion(cmd.InOrStdin(), args, ao)
			if err != nil {
				return err
			}

			app, err := opts.openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer app.Close()
			defer app.Logger.Sync()

			return runAsk(cmd.Context(), app, q, ao.actor, cmd.OutOrStdout(), cmd.ErrOrStderr(), opts.jsonOutput)
		},
	}

	cmd.Flags().StringVar(&ao.imagePath, "image", "", "attach an image file (PNG or JPEG)")
	cmd.Flags().StringVar(&ao.followUp, "follow-up", "", "treat the question as a follow-up to this earlier question")
	cmd.Flags().StringVar(&ao.actor, "actor", defaultActor, "actor ID recorded with usage")
	return cmd
}

// buildQuestion assembles the question from args, stdin and --image.
func buildQuestion(stdin io.Reader, args []string, ao *askOptions) (resolve.Question, error) {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" && len(args) == 0 && !IsTTY() {
		data, err := io.ReadAll(io.LimitReader(stdin, server.MaxQuestionLength*4))
		if err != nil {
			return resolve.Question{}, &CommandError{Command: "ask", Action: "read stdin", Err: err}
		}
		text = strings.TrimSpace(string(data))
	}

	q := resolve.Question{Text: text, PriorContext: ao.followUp}
	if ao.imagePath != "" {
		encoded, err := readImage(ao.imagePath)
		if err != nil {
			return resolve.Question{}, err
		}
		q.ImageBase64 = encoded
	}

	if q.Text == "" && q.ImageBase64 == "" {
		return resolve.Question{}, &ValidationError{
			Field:   "question",
			Reason:  "Question is required",
			Example: `doubtrun ask "What is Newton's second law?"`,
		}
	}
	if n := len([]rune(q.Text)); n > server.MaxQuestionLength {
		return resolve.Question{}, &ValidationError{
			Field:  "question",
			Reason: fmt.Sprintf("exceeds %d characters", server.MaxQuestionLength),
			Value:  fmt.Sprintf("%d characters", n),
		}
	}
	return q, nil
}

func readImage(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", &ValidationError{Field: "image", Value: path, Reason: err.Error()}
	}
	if info.Size() > MaxImageSize {
		return "", &ValidationError{
			Field:  "image",
			Value:  path,
			Reason: fmt.Sprintf("larger than %d bytes", MaxImageSize),
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &CommandError{Command: "ask", Action: "read image", Err: err}
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// runAsk resolves q and prints the answer to out and a summary to errOut.
func runAsk(ctx context.Context, app *App, q resolve.Question, actor string, out, errOut io.Writer, jsonMode bool) error {
	start := time.Now()
	result := app.Resolver.Resolve(ctx, q, actor)
	elapsed := time.Since(start)

	if jsonMode {
		return NewJSONResponse("ask", server.DoubtResponse{
			Result:         result,
			ResponseTimeMs: elapsed.Milliseconds(),
		}).Print(out)
	}

	displayRouting(errOut, result)
	displayResponse(out, result.ResponseText, IsStdoutTTY())
	displaySummary(errOut, result, elapsed)
	return nil
}

// =============================================================================
// DISPLAY HELPERS
// =============================================================================

func outcomeOf(r resolve.Result) string {
	switch {
	case r.Offline:
		return "offline"
	case r.Fallback:
		return "fallback"
	default:
		return "primary"
	}
}

// displayRouting prints the routing line before the answer.
func displayRouting(w io.Writer, r resolve.Result) {
	fmt.Fprintf(w, "%s %s (score %d) | %s | %s %s\n\n",
		DimStyle.Render("Routing:"),
		RenderLevel(r.ComplexityLevel),
		r.DifficultyScore,
		r.Topic.String(),
		HighlightStyle.Render(r.ModelUsed),
		RenderStatus(outcomeOf(r)),
	)
}

// displaySummary prints tokens, cost and latency after the answer.
func displaySummary(w io.Writer, r resolve.Result, elapsed time.Duration) {
	fmt.Fprintln(w, RenderSeparator(45))
	if r.TokenUsage == nil {
		fmt.Fprintf(w, "%s %s\n", DimStyle.Render("Time:"), elapsed.Round(time.Millisecond))
		return
	}
	cost := telemetry.TokenCost(r.ModelUsed, r.TokenUsage.InputTokens, r.TokenUsage.OutputTokens)
	fmt.Fprintf(w, "%s %s | %s %s | %s $%s\n",
		DimStyle.Render("Tokens:"),
		formatNumber(r.TokenUsage.InputTokens+r.TokenUsage.OutputTokens),
		DimStyle.Render("Time:"),
		elapsed.Round(time.Millisecond),
		DimStyle.Render("Cost:"),
		cost.StringFixed(telemetry.CostPlaces),
	)
}

// formatNumber formats an integer with commas for thousands.
func formatNumber(n int) string {
	s := fmt.Sprintf("%d", n)
	if n < 1000 && n > -1000 {
		return s
	}

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
