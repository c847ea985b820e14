// Command execution for CLI commands.
//
// Information Hiding:
// - Pipeline assembly from settings hidden
// - Tool session selection (in-process vs external server) hidden
// - Output formatting hidden

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/richinex/cerberus/config"
	"github.com/richinex/cerberus/filter"
	"github.com/richinex/cerberus/llm"
	"github.com/richinex/cerberus/logging"
	"github.com/richinex/cerberus/mcp"
	"github.com/richinex/cerberus/recommend"
	"github.com/richinex/cerberus/retry"
	"github.com/richinex/cerberus/tools"
)

// Options holds CLI execution options.
type Options struct {
	Platform      string
	Question      string
	NoInputFilter bool
	NoPIIFilter   bool
	UseMCP        bool
	Verbose       bool
}

// Recommend runs the full defended recommendation pipeline for one student
// and prints the resulting JSON.
func Recommend(ctx context.Context, studentID string, opts Options) error {
	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}

	provider, err := createProvider(settings, settings.Platform().LLMModel)
	if err != nil {
		return err
	}

	session, err := createSession(ctx, settings, opts)
	if err != nil {
		return err
	}
	defer session.Close()

	recommender, err := buildRecommender(settings, provider, opts)
	if err != nil {
		return err
	}

	fmt.Printf("Generating recommendations for student %s with %s...\n\n", studentID, provider.Model())

	outcome, err := recommender.RecommendForStudent(ctx, studentID, opts.Question, tools.NewGateway(session))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}

	printed, marshalErr := json.MarshalIndent(outcome, "", "  ")
	if marshalErr != nil {
		return fmt.Errorf("failed to render outcome: %w", marshalErr)
	}
	fmt.Printf("%s\n", printed)

	if opts.Verbose {
		printRunStats(outcome)
	}
	return nil
}

// ListTools lists the tools the configured session exposes.
func ListTools(ctx context.Context, opts Options) error {
	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}

	session, err := createSession(ctx, settings, opts)
	if err != nil {
		return err
	}
	defer session.Close()

	infos, err := session.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tools: %w", err)
	}

	fmt.Println("Available tools:")
	fmt.Println()
	for _, info := range infos {
		fmt.Printf("  %s\n", info.Name)
		fmt.Printf("    %s\n", info.Description)
		if opts.Verbose && info.InputSchema != nil {
			schema, _ := json.MarshalIndent(info.InputSchema, "    ", "  ")
			fmt.Printf("    Schema: %s\n", schema)
		}
		fmt.Println()
	}
	return nil
}

func loadSettings(opts Options) (config.Settings, error) {
	settings, err := config.Load(config.LoaderOptions{})
	if err != nil {
		return config.Settings{}, err
	}
	if opts.Platform != "" {
		settings.API.Platform = opts.Platform
	}
	return settings, nil
}

// createProvider builds a model client for the configured platform. An empty
// model falls back to the platform override, then the provider default.
func createProvider(settings config.Settings, model string) (llm.Provider, error) {
	providerType, err := llm.ParseProviderType(settings.API.Platform)
	if err != nil {
		return nil, err
	}

	platform := settings.Platform()
	if model == "" {
		model = platform.LLMModel
	}

	builder := llm.NewProviderBuilder(providerType).Model(model)
	if platform.BaseURL != "" {
		builder = builder.BaseURL(platform.BaseURL)
	}
	if platform.ServiceTier != "" {
		builder = builder.ServiceTier(platform.ServiceTier)
	}
	if settings.API.Timeout > 0 {
		builder = builder.Timeout(settings.API.Timeout)
	}

	return builder.FromEnv()
}

// createSession picks the tool backend: the in-process SQLite session by
// default, or a spawned MCP server with --mcp.
func createSession(ctx context.Context, settings config.Settings, opts Options) (tools.Session, error) {
	dbPath := settings.Paths.MaterialsDBPath

	if opts.UseMCP {
		command, args := mcp.DefaultServerCommand(dbPath)
		session, err := mcp.NewSession(ctx, command, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to start MCP server: %w", err)
		}
		return session, nil
	}

	session, err := tools.NewSqliteSession(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open materials database: %w", err)
	}
	return session, nil
}

func buildRecommender(settings config.Settings, provider llm.Provider, opts Options) (*recommend.Recommender, error) {
	policy := retry.Policy{
		MaxAttempts:    settings.Orchestrator.MaxRetries,
		InitialBackoff: settings.Orchestrator.InitialBackoff,
		MaxBackoff:     settings.Orchestrator.MaxBackoff,
		Transient:      llm.TransientError,
	}

	var progress *os.File
	if opts.Verbose {
		progress = os.Stderr
	}

	orchestratorOpts := []recommend.Option{
		recommend.WithRetryPolicy(policy),
		recommend.WithMaxRounds(settings.Orchestrator.MaxRounds),
	}
	if tier := settings.Platform().ServiceTier; tier != "" {
		orchestratorOpts = append(orchestratorOpts, recommend.WithServiceTier(tier))
	}
	if progress != nil {
		orchestratorOpts = append(orchestratorOpts, recommend.WithProgress(progress))
	}

	cfg := recommend.RecommenderConfig{
		Orchestrator: recommend.NewOrchestrator(provider, orchestratorOpts...),
	}
	if progress != nil {
		cfg.Progress = progress
	}

	injectionFilter, err := createFilter(settings, provider, settings.Filters.Injection, opts.NoInputFilter)
	if err != nil {
		return nil, err
	}
	if injectionFilter != nil {
		cfg.InjectionFilter = filter.NewInjectionFilter(injectionFilter.provider, injectionFilter.policy)
	}

	piiFilter, err := createFilter(settings, provider, settings.Filters.PII, opts.NoPIIFilter)
	if err != nil {
		return nil, err
	}
	if piiFilter != nil {
		cfg.PIIFilter = filter.NewPIIFilter(piiFilter.provider, piiFilter.policy)
	}

	if settings.Paths.LogDir != "" {
		logger, err := logging.NewMarkdownLogger(settings.Paths.LogDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: run logging disabled: %v\n", err)
		} else {
			cfg.Logger = logger
		}
	}

	return recommend.NewRecommender(cfg), nil
}

// filterSetup pairs a classifier client with its degraded-mode policy.
type filterSetup struct {
	provider llm.Provider
	policy   filter.Policy
}

// createFilter resolves one filter's classifier. A filter-specific model gets
// its own client; otherwise the pipeline provider is shared.
func createFilter(settings config.Settings, shared llm.Provider, fc config.FilterConfig, disabledByFlag bool) (*filterSetup, error) {
	if !fc.Enabled || disabledByFlag {
		return nil, nil
	}

	classifier := shared
	if fc.Model != "" && fc.Model != shared.Model() {
		p, err := createProvider(settings, fc.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create filter model %s: %w", fc.Model, err)
		}
		classifier = p
	}

	return &filterSetup{
		provider: classifier,
		policy:   filter.Policy{FailClosed: fc.FailClosed},
	}, nil
}

func printRunStats(outcome recommend.Outcome) {
	m := outcome.Result.Metrics
	fmt.Printf("\nRun %s:\n", outcome.RunID)
	fmt.Printf("  Tool calls: %d\n", len(outcome.Result.ToolCalls))
	fmt.Printf("  Prompt tokens: %d\n", m.PromptTokens)
	fmt.Printf("  Completion tokens: %d\n", m.CompletionTokens)
	fmt.Printf("  Total time: %.2fs\n", m.TotalTime)
	if m.TotalCost > 0 {
		fmt.Printf("  Cost: $%.6f\n", m.TotalCost)
	}
	if m.Retries > 0 {
		fmt.Printf("  Retries: %d\n", m.Retries)
	}
}
