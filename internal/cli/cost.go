// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cost.go - Usage and pricing reports.
//
// Subcommands:
//   summary (default)   Totals by model over recent stored records
//   recent              List recent usage records
//   pricing             Show the price table

package cli

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/jeranaias/doubtrun/internal/telemetry"
	"github.com/jeranaias/doubtrun/internal/util"
)

// defaultCostLimit is how many stored records the reports read.
const defaultCostLimit = 1000

func newCostCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "cost",
		Short: "Report recorded usage and cost",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRecords(cmd.Context(), opts, limit, func(recs []telemetry.UsageRecord) error {
				summary := Summarize(recs)
				if opts.jsonOutput {
					return NewJSONResponse("cost", summary).Print(cmd.OutOrStdout())
				}
				printSummary(cmd.OutOrStdout(), summary)
				return nil
			})
		},
	}
	cmd.PersistentFlags().IntVar(&limit, "limit", defaultCostLimit, "number of recent records to read")

	recent := &cobra.Command{
		Use:   "recent",
		Short: "List recent usage records, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRecords(cmd.Context(), opts, limit, func(recs []telemetry.UsageRecord) error {
				if opts.jsonOutput {
					return NewJSONResponse("cost recent", recs).Print(cmd.OutOrStdout())
				}
				printRecords(cmd.OutOrStdout(), recs)
				return nil
			})
		},
	}

	pricing := &cobra.Command{
		Use:   "pricing",
		Short: "Show per-million-token prices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			table := PriceTable()
			if opts.jsonOutput {
				return NewJSONResponse("cost pricing", table).Print(cmd.OutOrStdout())
			}
			printPricing(cmd.OutOrStdout(), table)
			return nil
		},
	}

	cmd.AddCommand(recent, pricing)
	return cmd
}

// withRecords opens the configured store read-side and passes recent
// records to fn.
func withRecords(ctx context.Context, opts *rootOptions, limit int, fn func([]telemetry.UsageRecord) error) error {
	if limit < 1 {
		return &ValidationError{Field: "limit", Value: fmt.Sprint(limit), Reason: "must be positive"}
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	store, err := OpenStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	lister, ok := store.(telemetry.Lister)
	if !ok {
		return &StorageError{Backend: cfg.Storage.Driver, Err: fmt.Errorf("store does not support listing")}
	}
	recs, err := lister.Recent(ctx, limit)
	if err != nil {
		return &StorageError{Backend: cfg.Storage.Driver, Err: err}
	}
	return fn(recs)
}

// =============================================================================
// AGGREGATION
// =============================================================================

// ModelUsage is the total for one model.
type ModelUsage struct {
	Model        string          `json:"model"`
	Requests     int             `json:"requests"`
	InputTokens  int             `json:"input_tokens"`
	OutputTokens int             `json:"output_tokens"`
	CostUSD      decimal.Decimal `json:"cost_usd"`
}

// UsageSummary totals a set of records.
type UsageSummary struct {
	Records int             `json:"records"`
	CostUSD decimal.Decimal `json:"cost_usd"`
	Tokens  int             `json:"tokens"`
	// ByModel is sorted by cost, highest first.
	ByModel []ModelUsage `json:"by_model"`
}

// Summarize totals recs by model.
func Summarize(recs []telemetry.UsageRecord) UsageSummary {
	byModel := make(map[string]*ModelUsage)
	summary := UsageSummary{Records: len(recs), ByModel: []ModelUsage{}}

	for _, rec := range recs {
		m, ok := byModel[rec.ModelID]
		if !ok {
			m = &ModelUsage{Model: rec.ModelID}
			byModel[rec.ModelID] = m
		}
		m.Requests++
		m.InputTokens += rec.InputTokens
		m.OutputTokens += rec.OutputTokens
		m.CostUSD = m.CostUSD.Add(rec.CostUSD)

		summary.CostUSD = summary.CostUSD.Add(rec.CostUSD)
		summary.Tokens += rec.InputTokens + rec.OutputTokens
	}

	for _, m := range byModel {
		summary.ByModel = append(summary.ByModel, *m)
	}
	sort.Slice(summary.ByModel, func(i, j int) bool {
		a, b := summary.ByModel[i], summary.ByModel[j]
		if c := a.CostUSD.Cmp(b.CostUSD); c != 0 {
			return c > 0
		}
		return a.Model < b.Model
	})
	return summary
}

// PriceRow is one line of the price table.
type PriceRow struct {
	Model  string          `json:"model"`
	Input  decimal.Decimal `json:"input_per_million"`
	Output decimal.Decimal `json:"output_per_million"`
}

// PriceTable lists every model with token pricing.
func PriceTable() []PriceRow {
	models := telemetry.PricedModels()
	rows := make([]PriceRow, 0, len(models))
	for _, id := range models {
		p, _ := telemetry.PricingFor(id)
		rows = append(rows, PriceRow{Model: id, Input: p.Input, Output: p.Output})
	}
	return rows
}

// =============================================================================
// DISPLAY
// =============================================================================

func printSummary(w io.Writer, s UsageSummary) {
	fmt.Fprintln(w, TitleStyle.Render("Usage"))
	fmt.Fprintln(w, RenderField("Records", formatNumber(s.Records)))
	fmt.Fprintln(w, RenderField("Tokens", formatNumber(s.Tokens)))
	fmt.Fprintln(w, RenderLabel("Cost")+HighlightStyle.Render("$"+s.CostUSD.StringFixed(telemetry.CostPlaces)))

	if len(s.ByModel) == 0 {
		return
	}
	fmt.Fprintln(w, SectionStyle.Render("By model"))
	for _, m := range s.ByModel {
		fmt.Fprintf(w, "  %-24s %6d req  %10s tok  $%s\n",
			util.TruncateWidth(m.Model, 24),
			m.Requests,
			formatNumber(m.InputTokens+m.OutputTokens),
			m.CostUSD.StringFixed(telemetry.CostPlaces))
	}
}

func printRecords(w io.Writer, recs []telemetry.UsageRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No usage recorded yet."))
		return
	}
	for _, r := range recs {
		fmt.Fprintf(w, "%s  %-12s %-22s %-14s %8s tok  $%s\n",
			DimStyle.Render(r.CreatedAt.Local().Format("2006-01-02 15:04:05")),
			r.Service,
			util.TruncateWidth(r.ModelID, 22),
			util.TruncateWidth(r.ActorID, 14),
			formatNumber(r.TotalTokens),
			r.CostUSD.StringFixed(telemetry.CostPlaces))
	}
}

func printPricing(w io.Writer, rows []PriceRow) {
	fmt.Fprintln(w, TitleStyle.Render("Pricing (USD per 1M tokens)"))
	for _, r := range rows {
		fmt.Fprintf(w, "  %-24s in %8s   out %8s\n", r.Model, r.Input.StringFixed(2), r.Output.StringFixed(2))
	}
	fmt.Fprintln(w, SectionStyle.Render("Speech"))
	fmt.Fprintf(w, "  %-24s $%s per minute\n", telemetry.ServiceWhisper,
		telemetry.FixedServiceCost(telemetry.ServiceWhisper, decimal.NewFromInt(1)).StringFixed(3))
	fmt.Fprintf(w, "  %-24s $%s per 1K characters\n", telemetry.ServiceTTS,
		telemetry.FixedServiceCost(telemetry.ServiceTTS, decimal.NewFromInt(1)).StringFixed(3))
	fmt.Fprintf(w, "  %-24s $%s per 1K characters\n", telemetry.ServiceTTSHD,
		telemetry.FixedServiceCost(telemetry.ServiceTTSHD, decimal.NewFromInt(1)).StringFixed(3))
}
