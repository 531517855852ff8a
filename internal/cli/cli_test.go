// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/doubtrun/internal/config"
	"github.com/jeranaias/doubtrun/internal/offline"
	"github.com/jeranaias/doubtrun/internal/resolve"
	"github.com/jeranaias/doubtrun/internal/router"
	"github.com/jeranaias/doubtrun/internal/telemetry"
)

// =============================================================================
// HELPERS
// =============================================================================

// writeTestConfig writes a config that needs no disk store or network.
func writeTestConfig(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	body := "[storage]\ndriver = \"memory\"\n\n[logging]\nformat = \"console\"\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

// run executes the command tree and returns stdout and the error.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(config.ResetGlobalForTesting)

	var out, errOut bytes.Buffer
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(""))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func decodeEnvelope(t *testing.T, out string, data interface{}) JSONResponse {
	t.Helper()
	var env JSONResponse
	env.Data = data
	require.NoError(t, json.Unmarshal([]byte(out), &env), out)
	return env
}

// =============================================================================
// COMMANDS
// =============================================================================

func TestClassifyCommand_JSON(t *testing.T) {
	path := writeTestConfig(t, "")

	out, err := run(t, "--config", path, "--json", "classify",
		`JEE Advanced integration problem: evaluate \int_0^3 x^2 dx, then compute 3*2 + sin(x)`)
	require.NoError(t, err)

	var data struct {
		Assessment router.Assessment   `json:"assessment"`
		Model      router.ModelConfig  `json:"model"`
		Fallback   *router.ModelConfig `json:"fallback"`
	}
	env := decodeEnvelope(t, out, &data)
	assert.True(t, env.Success)
	assert.Equal(t, "classify", env.Command)
	assert.Equal(t, router.LevelExpert, data.Assessment.Level)
	assert.Equal(t, router.ProviderAnthropic, data.Model.Provider)
	assert.Nil(t, data.Fallback)
}

func TestClassifyCommand_UsesConfiguredModels(t *testing.T) {
	path := writeTestConfig(t, "\n[models]\ntier1 = \"campus-small\"\n")

	out, err := run(t, "--config", path, "classify", "What is a cell?")
	require.NoError(t, err)
	assert.Contains(t, out, "campus-small")
	assert.Contains(t, out, "Biology")
}

func TestAskCommand_OfflineAnswer(t *testing.T) {
	t.Cleanup(func() { offline.SetOfflineMode(false) })
	path := writeTestConfig(t, "")

	out, err := run(t, "--config", path, "--offline", "--json", "ask",
		"Solve: lim(x→0) (sin x)/x using L'Hopital's rule")
	require.NoError(t, err)

	var data map[string]interface{}
	env := decodeEnvelope(t, out, &data)
	assert.True(t, env.Success)
	assert.Equal(t, resolve.OfflineModel, data["model_used"])
	assert.Equal(t, true, data["offline"])
	assert.Equal(t, "medium", data["complexity_level"])
	assert.Contains(t, data, "response_time_ms")
}

func TestAskCommand_RequiresQuestion(t *testing.T) {
	if IsTTY() {
		t.Skip("stdin is a terminal")
	}
	path := writeTestConfig(t, "")

	_, err := run(t, "--config", path, "ask")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "Question is required", verr.Reason)
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

func TestConfigCommand_SetGet(t *testing.T) {
	path := writeTestConfig(t, "")

	_, err := run(t, "--config", path, "config", "set", "ratelimit.doubt_limit", "42")
	require.NoError(t, err)

	out, err := run(t, "--config", path, "config", "get", "ratelimit.doubt_limit")
	require.NoError(t, err)
	assert.Equal(t, "42\n", out)

	cfg, err := config.LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.RateLimit.DoubtLimit)
	assert.Equal(t, "memory", cfg.Storage.Driver, "other keys survive")
}

func TestConfigCommand_SetRejectsInvalid(t *testing.T) {
	path := writeTestConfig(t, "")

	_, err := run(t, "--config", path, "config", "set", "resolve.temperature", "9")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "resolve.temperature", verr.Field)

	_, err = run(t, "--config", path, "config", "set", "models.nope", "x")
	assert.Error(t, err)
}

func TestConfigCommand_GetRedactsSecrets(t *testing.T) {
	path := writeTestConfig(t, "\n[providers.openai]\napi_key = \"sk-live-secret\"\n")

	out, err := run(t, "--config", path, "config", "get", "providers.openai.api_key")
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-live-secret")

	out, err = run(t, "--config", path, "--json", "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-live-secret")
}

func TestConfigCommand_InvalidFile(t *testing.T) {
	path := writeTestConfig(t, "\n[ratelimit]\nbackend = \"memcached\"\n")

	_, err := run(t, "--config", path, "config", "show")
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, GetExitCode(err))
}

func TestCostCommand_Pricing(t *testing.T) {
	out, err := run(t, "--json", "cost", "pricing")
	require.NoError(t, err)

	var rows []PriceRow
	decodeEnvelope(t, out, &rows)
	models := make([]string, 0, len(rows))
	for _, r := range rows {
		models = append(models, r.Model)
	}
	assert.Contains(t, models, router.DefaultTier1Model)
}

func TestCostCommand_EmptyStore(t *testing.T) {
	path := writeTestConfig(t, "")

	out, err := run(t, "--config", path, "--json", "cost")
	require.NoError(t, err)

	var summary UsageSummary
	decodeEnvelope(t, out, &summary)
	assert.Zero(t, summary.Records)
	assert.True(t, summary.CostUSD.IsZero())

	_, err = run(t, "--config", path, "cost", "--limit", "0")
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

// =============================================================================
// WIRING
// =============================================================================

func TestOpenStore(t *testing.T) {
	store, err := OpenStore(context.Background(), config.StorageConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &telemetry.MemoryStore{}, store)

	path := filepath.Join(t.TempDir(), "nested", "usage.db")
	store, err = OpenStore(context.Background(), config.StorageConfig{Driver: "sqlite", SQLitePath: path})
	require.NoError(t, err)
	require.NoError(t, store.Close())
	assert.FileExists(t, path)

	_, err = OpenStore(context.Background(), config.StorageConfig{Driver: "mongodb"})
	assert.Equal(t, ExitConfigError, GetExitCode(err))
}

func TestNewLimiter(t *testing.T) {
	backend, client, err := NewLimiter(context.Background(), config.RateLimitConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.Nil(t, client)
	assert.NotNil(t, backend)

	_, _, err = NewLimiter(context.Background(), config.RateLimitConfig{Backend: "etcd"})
	assert.Equal(t, ExitConfigError, GetExitCode(err))
}

func TestNewApp_ReloadSwapsModels(t *testing.T) {
	t.Cleanup(func() { offline.SetOfflineMode(false) })

	cfg := config.Default()
	cfg.Storage.Driver = "memory"
	app, err := NewApp(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer app.Close()

	assert.ElementsMatch(t, []string{"openai", "anthropic"}, app.Registry.Names())

	next := cfg.Clone()
	next.Models.Tier3 = "reloaded-expert"
	next.Routing.OfflineMode = true
	app.Reload(next)

	assert.Equal(t, "reloaded-expert", app.Router.SelectModel(router.LevelExpert).ModelID)
	assert.True(t, offline.IsOfflineMode())
}

// =============================================================================
// CHAT SESSION
// =============================================================================

type recordingResolver struct {
	questions []resolve.Question
}

func (r *recordingResolver) Resolve(_ context.Context, q resolve.Question, _ string) resolve.Result {
	r.questions = append(r.questions, q)
	return resolve.Result{
		ResponseText: "answer",
		ModelUsed:    router.DefaultTier1Model,
		TokenUsage:   &resolve.TokenUsage{InputTokens: 1000, OutputTokens: 500},
	}
}

func TestChatSession_FollowUpContext(t *testing.T) {
	fake := &recordingResolver{}
	var out bytes.Buffer
	s := &ChatSession{resolver: fake, actor: "student", out: &out, errOut: &out}

	ctx := context.Background()
	assert.True(t, s.HandleInput(ctx, "What is a derivative?"))
	assert.True(t, s.HandleInput(ctx, "why?"))
	assert.True(t, s.HandleInput(ctx, "/clear"))
	assert.True(t, s.HandleInput(ctx, "What is an integral?"))
	assert.True(t, s.HandleInput(ctx, "   "))

	require.Len(t, fake.questions, 3)
	assert.Empty(t, fake.questions[0].PriorContext)
	assert.Equal(t, "What is a derivative?", fake.questions[1].PriorContext)
	assert.Empty(t, fake.questions[2].PriorContext, "cleared")

	assert.Equal(t, 4500, s.tokens)
	assert.True(t, s.cost.Equal(decimal.RequireFromString("0.00135")))

	assert.False(t, s.HandleInput(ctx, "/quit"))
	assert.False(t, s.HandleInput(ctx, "exit"))
}

// =============================================================================
// HELPERS
// =============================================================================

func TestSummarize(t *testing.T) {
	recs := []telemetry.UsageRecord{
		{ModelID: "gpt-4o-mini", InputTokens: 1000, OutputTokens: 500, CostUSD: decimal.RequireFromString("0.00045")},
		{ModelID: "claude-opus-4-6", InputTokens: 100, OutputTokens: 100, CostUSD: decimal.RequireFromString("0.009")},
		{ModelID: "gpt-4o-mini", InputTokens: 1000, OutputTokens: 500, CostUSD: decimal.RequireFromString("0.00045")},
	}

	s := Summarize(recs)
	assert.Equal(t, 3, s.Records)
	assert.Equal(t, 3200, s.Tokens)
	assert.Equal(t, "0.009900", s.CostUSD.StringFixed(telemetry.CostPlaces))
	require.Len(t, s.ByModel, 2)
	assert.Equal(t, "claude-opus-4-6", s.ByModel[0].Model, "sorted by cost")
	assert.Equal(t, 2, s.ByModel[1].Requests)
}

func TestFormatNumber(t *testing.T) {
	tests := map[int]string{0: "0", 999: "999", 1000: "1,000", 1234567: "1,234,567", -4500: "-4,500"}
	for n, want := range tests {
		assert.Equal(t, want, formatNumber(n))
	}
}

func TestWrapText(t *testing.T) {
	assert.Equal(t, "short", WrapText("short", 20))
	assert.Equal(t, "one two\nthree", WrapText("one two three", 8))
	assert.Equal(t, "a\n\nb", WrapText("a\n\nb", 10))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitUsageError, GetExitCode(&ValidationError{Field: "x"}))
	assert.Equal(t, ExitConfigError, GetExitCode(&ConfigError{Err: errors.New("bad")}))
	assert.Equal(t, ExitConfigError, GetExitCode(config.ValidateErrors{{Field: "a", Message: "b"}}))
	assert.Equal(t, ExitStorageError, GetExitCode(&StorageError{Backend: "redis", Err: errors.New("down")}))
	assert.Equal(t, ExitTimeoutError, GetExitCode(context.DeadlineExceeded))
	assert.Equal(t, ExitGeneralError, GetExitCode(errors.New("other")))
}

func TestDisplayError_JSON(t *testing.T) {
	var buf bytes.Buffer
	DisplayError(&buf, &StorageError{Backend: "redis", Err: errors.New("down")}, true)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "storage_error", out["error_type"])
	assert.EqualValues(t, ExitStorageError, out["exit_code"])
}
