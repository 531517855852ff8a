// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive doubt session.
//
// Each question after the first is sent as a follow-up to the previous
// one, so "why?" or "explain step 2" resolve with context. /clear starts
// a fresh thread.
//
// Commands:
//   /help, /h        Show commands
//   /clear, /c       Forget the previous question
//   /stats, /s       Session usage
//   /history         Questions asked this session
//   /quit, /q        Exit

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/jeranaias/doubtrun/internal/config"
	"github.com/jeranaias/doubtrun/internal/offline"
	"github.com/jeranaias/doubtrun/internal/resolve"
	"github.com/jeranaias/doubtrun/internal/server"
	"github.com/jeranaias/doubtrun/internal/telemetry"
	"github.com/jeranaias/doubtrun/internal/util"
)

// historyFileName lives in the config directory.
const historyFileName = "chat_history"

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides line editing and persistent input history.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI and loads saved history.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	c := &ChatCLI{line: line, historyFile: filepath.Join(dir, historyFileName)}
	c.LoadHistory()
	return c
}

// LoadHistory reads saved history, ignoring a missing file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads one line. Non-blank lines are added to history.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory writes history owner-readable only.
func (c *ChatCLI) SaveHistory() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// SESSION STATE
// =============================================================================

// ChatSession is the state of one interactive session.
type ChatSession struct {
	resolver server.Resolver
	actor    string
	out      io.Writer
	errOut   io.Writer
	tty      bool
	started  time.Time

	// previous is sent as PriorContext with the next question.
	previous  string
	questions []string
	fallbacks int
	offline   int
	tokens    int
	cost      decimal.Decimal
}

// NewChatSession creates a session that resolves through app.
func NewChatSession(app *App, actor string, out, errOut io.Writer) *ChatSession {
	return &ChatSession{
		resolver: app.Resolver,
		actor:    actor,
		out:      out,
		errOut:   errOut,
		tty:      IsStdoutTTY(),
		started:  time.Now(),
	}
}

// Ask resolves one question as a follow-up to the previous one.
func (s *ChatSession) Ask(ctx context.Context, question string) resolve.Result {
	result := s.resolver.Resolve(ctx, resolve.Question{
		Text:         question,
		PriorContext: s.previous,
	}, s.actor)

	s.previous = question
	s.questions = append(s.questions, question)
	switch {
	case result.Offline:
		s.offline++
	case result.Fallback:
		s.fallbacks++
	}
	if u := result.TokenUsage; u != nil {
		s.tokens += u.InputTokens + u.OutputTokens
		s.cost = s.cost.Add(telemetry.TokenCost(result.ModelUsed, u.InputTokens, u.OutputTokens))
	}
	return result
}

// HandleInput processes one line. It returns false when the session
// should end.
func (s *ChatSession) HandleInput(ctx context.Context, input string) bool {
	input = strings.TrimSpace(input)
	switch {
	case input == "":
		return true
	case strings.EqualFold(input, "exit"), strings.EqualFold(input, "quit"):
		return false
	case strings.HasPrefix(input, "/"):
		return s.handleSlashCommand(input)
	}

	start := time.Now()
	result := s.Ask(ctx, input)
	displayRouting(s.errOut, result)
	displayResponse(s.out, result.ResponseText, s.tty)
	displaySummary(s.errOut, result, time.Since(start))
	fmt.Fprintln(s.out)
	return true
}

func (s *ChatSession) handleSlashCommand(cmd string) bool {
	switch strings.ToLower(strings.Fields(cmd)[0]) {
	case "/help", "/h", "/?", "/":
		s.printHelp()
	case "/clear", "/c":
		s.previous = ""
		fmt.Fprintln(s.out, SuccessStyle.Render("[Context cleared]"))
	case "/stats", "/s":
		s.printStats()
	case "/history":
		for i, q := range s.questions {
			fmt.Fprintf(s.out, "  %s %s\n", DimStyle.Render(fmt.Sprintf("%2d.", i+1)), util.TruncateWidth(q, 70))
		}
	case "/quit", "/q", "/exit":
		return false
	default:
		fmt.Fprintf(s.errOut, "%s unknown command: %s (type /help for commands)\n", ErrorStyle.Render("[Error]"), cmd)
	}
	return true
}

// =============================================================================
// CHAT COMMAND
// =============================================================================

func newChatCmd(opts *rootOptions) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions interactively, with follow-up context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !IsTTY() {
				return &ValidationError{
					Field:   "stdin",
					Reason:  "chat needs an interactive terminal",
					Example: `echo "question" | doubtrun ask`,
				}
			}

			app, err := opts.openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer app.Close()
			defer app.Logger.Sync()

			session := NewChatSession(app, actor, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return runChat(cmd.Context(), session)
		},
	}
	cmd.Flags().StringVar(&actor, "actor", defaultActor, "actor ID recorded with usage")
	return cmd
}

func runChat(ctx context.Context, session *ChatSession) error {
	session.printWelcome()

	input := NewChatCLI()
	defer input.Close()

	for {
		line, err := input.ReadInput("doubt> ")
		if err != nil {
			if !errors.Is(err, liner.ErrPromptAborted) && !errors.Is(err, io.EOF) {
				return &CommandError{Command: "chat", Action: "read input", Err: err}
			}
			break
		}

		// Ctrl+C while a question is in flight cancels only that question.
		qctx, stop := signal.NotifyContext(ctx, os.Interrupt)
		keepGoing := session.HandleInput(qctx, line)
		stop()
		if !keepGoing {
			break
		}
	}

	session.printStats()
	return nil
}

// =============================================================================
// DISPLAY
// =============================================================================

func (s *ChatSession) printWelcome() {
	fmt.Fprintln(s.out, TitleStyle.Render("doubtrun interactive session"))
	if offline.IsOfflineMode() {
		fmt.Fprintf(s.out, "%s %s\n", ErrorStyle.Render("[OFFLINE MODE]"),
			DimStyle.Render("only loopback providers are reachable"))
	}
	fmt.Fprintln(s.out, DimStyle.Render("Type a question and press Enter. Commands: /help, /quit"))
	fmt.Fprintln(s.out)
}

func (s *ChatSession) printHelp() {
	commands := []struct{ cmd, desc string }{
		{"/help, /h", "Show this help"},
		{"/clear, /c", "Forget the previous question"},
		{"/stats, /s", "Show session usage"},
		{"/history", "List questions asked this session"},
		{"/quit, /q", "Exit"},
	}
	fmt.Fprintln(s.out, SectionStyle.Render("Commands"))
	for _, c := range commands {
		fmt.Fprintf(s.out, "  %s%s\n", HighlightStyle.Render(fmt.Sprintf("%-14s", c.cmd)), DimStyle.Render(c.desc))
	}
}

func (s *ChatSession) printStats() {
	fmt.Fprintln(s.out, SectionStyle.Render("Session"))
	fmt.Fprintln(s.out, RenderField("Questions", fmt.Sprintf("%d", len(s.questions))))
	fmt.Fprintln(s.out, RenderField("Fallbacks", fmt.Sprintf("%d", s.fallbacks)))
	fmt.Fprintln(s.out, RenderField("Offline answers", fmt.Sprintf("%d", s.offline)))
	fmt.Fprintln(s.out, RenderField("Tokens", formatNumber(s.tokens)))
	fmt.Fprintln(s.out, RenderField("Cost", "$"+s.cost.StringFixed(telemetry.CostPlaces)))
	fmt.Fprintln(s.out, RenderField("Duration", time.Since(s.started).Round(time.Second).String()))
}
