// handlers.go implements the command handlers: server wiring, the chat loop,
// health checks, and config bootstrap.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/stewardhq/steward/internal/agent"
	"github.com/stewardhq/steward/internal/channels"
	"github.com/stewardhq/steward/internal/config"
	"github.com/stewardhq/steward/internal/entity"
	"github.com/stewardhq/steward/internal/gateway"
	"github.com/stewardhq/steward/internal/policy"
	"github.com/stewardhq/steward/internal/providers"
	"github.com/stewardhq/steward/internal/scheduler"
	"github.com/stewardhq/steward/internal/storage"
	"github.com/stewardhq/steward/internal/tools"
	"github.com/stewardhq/steward/pkg/models"
)

// runServe wires the full runtime and blocks until a shutdown signal.
func runServe(ctx context.Context, configPath string, debug bool) error {
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}
	logger := slog.Default()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.Database.Path, storage.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	providerSet, err := buildProviders(cfg, logger)
	if err != nil {
		return err
	}

	engine := policy.NewEngine(store, store, policy.WithLogger(logger))
	registry, err := tools.NewRegistry(engine, tools.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("tool registry: %w", err)
	}

	runtime := entity.NewRuntime(store, entity.WithLogger(logger))
	processor := agent.NewProcessor(store, store, engine, registry, providerSet, cfg,
		agent.WithLogger(logger))
	runtime.Register(agent.EntityTypeSession, agent.NewSessionFactory(processor, store, logger))
	runtime.Register(channels.EntityTypeChannel,
		channels.NewChannelFactory(runtime, store, store, store, logger, time.Now))
	facade := channels.NewFacade(runtime, logger)

	executor := channels.NewPromptActionExecutor(facade, logger)
	sched := scheduler.New(store, executor, scheduler.WithLogger(logger))
	go sched.RunLoop(ctx, time.Duration(cfg.Scheduler.TickSeconds)*time.Second)

	server := gateway.NewServer(facade, gateway.NewMetrics(), gateway.WithLogger(logger))
	if err := server.Start(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
		return err
	}

	logger.Info("personal-agent runtime started", "port", cfg.Server.Port, "db", cfg.Database.Path)
	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", "error", err)
	}
	sched.Wait()
	return nil
}

// buildProviders constructs the LLM backends. The static provider is always
// available. A configured provider that fails to build is fatal when an agent
// profile references it, otherwise it is skipped with a warning.
func buildProviders(cfg *config.Config, logger *slog.Logger) (agent.ProviderSet, error) {
	referenced := make(map[string]bool)
	for _, profile := range cfg.Agents {
		referenced[profile.Model.Provider] = true
	}

	set := agent.ProviderSet{"static": providers.NewStaticProvider()}
	for name, pc := range cfg.Providers {
		var (
			provider providers.Provider
			err      error
		)
		switch name {
		case "anthropic":
			provider, err = providers.NewAnthropicProvider(providers.AnthropicConfig{
				APIKey:  pc.APIKey(),
				BaseURL: pc.APIURL,
			})
		case "openai":
			provider, err = providers.NewOpenAIProvider(providers.OpenAIConfig{
				APIKey:  pc.APIKey(),
				BaseURL: pc.APIURL,
			})
		default:
			err = fmt.Errorf("unknown provider %q", name)
		}
		if err != nil {
			if referenced[name] {
				return nil, fmt.Errorf("provider %s: %w", name, err)
			}
			logger.Warn("skipping unconfigured provider", "provider", name, "error", err)
			continue
		}
		set[name] = provider
	}
	return set, nil
}

// runChat is the interactive loop: open the channel, then post each stdin
// line and render the streamed events.
func runChat(ctx context.Context, serverURL, channelID, agentID string) error {
	if serverURL == "" {
		return &usageError{msg: "server URL must not be empty"}
	}
	if channelID == "" {
		channelID = "cli-" + uuid.NewString()[:8]
	}

	client := newAPIClient(serverURL)
	if err := client.waitHealthy(ctx, 3*time.Second); err != nil {
		return err
	}
	if err := client.CreateChannel(ctx, channelID, models.ChannelCLI, agentID); err != nil {
		return err
	}
	fmt.Printf("connected to channel %s (agent %s); ctrl-d to exit\n", channelID, agentID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := client.StreamMessage(ctx, channelID, line, renderEvent); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		fmt.Println()
	}
	return scanner.Err()
}

// renderEvent prints one streamed event in the chat format.
func renderEvent(event models.TurnEvent) error {
	switch event.Type {
	case models.EventAssistantDelta:
		fmt.Print(event.Delta)
	case models.EventToolCall:
		fmt.Printf("\n[tool: %s %s]\n", event.ToolName, string(event.InputJSON))
	case models.EventToolResult:
		fmt.Printf("[result: %s]\n", string(event.OutputJSON))
	case models.EventTurnFailed:
		fmt.Printf("\n[failed: %s - %s]\n", event.ErrorCode, event.Message)
	}
	return nil
}

// runStatus prints the server's health response.
func runStatus(ctx context.Context, serverURL string) error {
	if serverURL == "" {
		return &usageError{msg: "server URL must not be empty"}
	}
	body, err := newAPIClient(serverURL).Health(ctx)
	if err != nil {
		return err
	}
	fmt.Println(body)
	return nil
}

// runInit writes the starter configuration.
func runInit(configPath string, force bool) error {
	if err := config.WriteTemplate(configPath, force); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", configPath)
	return nil
}
