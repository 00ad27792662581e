package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"gemini-chat/handler"
	"gemini-chat/internal/config"
	"gemini-chat/internal/domain"
	"gemini-chat/internal/httpserver"
	"gemini-chat/internal/integrations/gemini"
	"gemini-chat/internal/integrations/openai"
	"gemini-chat/internal/integrations/paramstore"
	"gemini-chat/internal/metrics"
	"gemini-chat/internal/repository"
	"gemini-chat/internal/static"
	"gemini-chat/internal/usecase"
)

const dayLayout = "2006-01-02"

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gemini-chat",
		Short:         "Chat relay in front of a generative AI provider",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	pf := root.PersistentFlags()
	pf.String("provider", "", "provider backend (gemini|openai)")
	pf.String("models", "", "comma separated candidate models in priority order")
	pf.String("static-dir", "", "directory holding index.html and assets")
	pf.String("static-files", "", `comma separated servable files, "*" for any`)
	pf.String("api-key-param", "", "SSM parameter holding the provider key")
	pf.String("exchange-table", "", "DynamoDB table for the exchange log")
	pf.String("log-level", "", "debug|info|warn|error")
	root.Flags().String("addr", "", "listen address (default :8080 or :$PORT)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE:  runServe,
	}
	serve.Flags().String("addr", "", "listen address (default :8080 or :$PORT)")

	lambdaCmd := &cobra.Command{
		Use:   "lambda",
		Short: "Run as an API Gateway Lambda function",
		RunE:  runLambda,
	}

	exchanges := &cobra.Command{
		Use:   "exchanges",
		Short: "List recorded exchanges for one day",
		RunE:  runExchanges,
	}
	exchanges.Flags().String("day", "", "UTC day as YYYY-MM-DD (default today)")
	exchanges.Flags().Int("limit", 20, "maximum number of exchanges, 0 for all")

	root.AddCommand(serve, lambdaCmd, exchanges)
	return root
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	srv, err := httpserver.New(a.chat, a.assets,
		httpserver.WithAddr(a.cfg.Addr),
		httpserver.WithRequestObserver(a.metrics),
		httpserver.WithMetrics(a.metrics.Registry()),
		httpserver.WithLogger(a.logger),
	)
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}
	return srv.Start(cmd.Context())
}

func runLambda(cmd *cobra.Command, _ []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	h, err := handler.NewHandler(a.chat, a.assets,
		handler.WithRequestObserver(a.metrics),
		handler.WithLogger(a.logger),
	)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}
	lambda.Start(h.Handle)
	return nil
}

func runExchanges(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.ExchangeTable == "" {
		return errors.New("exchange table is not configured")
	}
	dayFlag, _ := cmd.Flags().GetString("day")
	day, err := parseDay(dayFlag, time.Now())
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")

	awsCfg, err := awsconfig.LoadDefaultConfig(cmd.Context())
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}
	repo, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.ExchangeTable)
	if err != nil {
		return err
	}
	items, err := repo.ListExchanges(cmd.Context(), day, limit)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, ex := range items {
		if err := enc.Encode(ex); err != nil {
			return err
		}
	}
	return nil
}

func parseDay(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return now.UTC(), nil
	}
	day, err := time.Parse(dayLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --day %q: %w", raw, err)
	}
	return day, nil
}

type app struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Collector
	chat    *usecase.ChatService
	assets  *static.Server
}

func buildApp(cmd *cobra.Command) (*app, error) {
	ctx := cmd.Context()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	// ---- AWS SDK config, loaded only when a component needs it ----
	awsConfig := sync.OnceValues(func() (aws.Config, error) {
		return awsconfig.LoadDefaultConfig(ctx)
	})

	// ---- Credential ----
	apiKey := cfg.APIKey
	if apiKey == "" && cfg.APIKeyParam != "" {
		apiKey, err = fetchAPIKey(ctx, awsConfig, cfg.APIKeyParam)
		if err != nil {
			logger.Warn("failed to fetch API key from parameter store", "param", cfg.APIKeyParam, "err", err)
		}
	}

	// ---- Clients ----
	gen, err := newGenerator(ctx, cfg, apiKey)
	if err != nil {
		return nil, err
	}
	if gen == nil {
		logger.Warn("no API key configured; chat requests will be answered with an error message")
	}

	collector, err := metrics.New()
	if err != nil {
		return nil, fmt.Errorf("create metrics: %w", err)
	}

	invOpts := []usecase.InvokerOption{
		usecase.WithAttemptObserver(collector),
		usecase.WithAttemptTimeout(cfg.ProviderTimeout),
		usecase.WithInvokerLogger(logger),
	}
	if cfg.CacheWorkingModel {
		invOpts = append(invOpts, usecase.WithWorkingModelCache(usecase.NewWorkingModelCache()))
	}

	chatOpts := []usecase.ChatOption{usecase.WithLogger(logger)}
	if cfg.ExchangeTable != "" {
		awsCfg, err := awsConfig()
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		repo, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.ExchangeTable)
		if err != nil {
			return nil, fmt.Errorf("create exchange log: %w", err)
		}
		chatOpts = append(chatOpts, usecase.WithExchangeRecorder(repo))
	}

	// ---- Services ----
	chat, err := usecase.NewChatService(usecase.NewInvoker(gen, invOpts...), usecase.ChatConfig{
		Candidates: cfg.Models,
		Options: domain.GenerationOptions{
			SystemPrompt: cfg.SystemPrompt,
			Temperature:  cfg.Temperature,
		},
		StrictImage: cfg.StrictImage,
	}, chatOpts...)
	if err != nil {
		return nil, fmt.Errorf("create chat service: %w", err)
	}

	assets, err := static.New(os.DirFS(cfg.StaticDir), cfg.StaticFiles)
	if err != nil {
		return nil, fmt.Errorf("create static server: %w", err)
	}

	logger.Info("chat relay configured",
		"provider", cfg.Provider,
		"models", cfg.Models,
		"cache_working_model", cfg.CacheWorkingModel,
		"exchange_log", cfg.ExchangeTable != "",
	)
	return &app{cfg: cfg, logger: logger, metrics: collector, chat: chat, assets: assets}, nil
}

func fetchAPIKey(ctx context.Context, awsConfig func() (aws.Config, error), param string) (string, error) {
	awsCfg, err := awsConfig()
	if err != nil {
		return "", fmt.Errorf("load AWS config: %w", err)
	}
	store, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return "", err
	}
	return store.GetToken(ctx, param)
}

// newGenerator returns a nil Generator when apiKey is empty.
func newGenerator(ctx context.Context, cfg config.Config, apiKey string) (usecase.Generator, error) {
	if apiKey == "" {
		return nil, nil
	}
	switch cfg.Provider {
	case config.ProviderOpenAI:
		c, err := openai.NewClient(apiKey, openai.WithBaseURL(cfg.OpenAIBaseURL))
		if err != nil {
			return nil, fmt.Errorf("create OpenAI client: %w", err)
		}
		return c, nil
	default:
		c, err := gemini.NewClient(ctx, apiKey)
		if err != nil {
			return nil, fmt.Errorf("create Gemini client: %w", err)
		}
		return c, nil
	}
}
