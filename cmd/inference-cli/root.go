// inference-cli runs one inference operation against a page and prints the
// result as JSON.
//
// Usage:
//
//	inference-cli ask --question "..."
//	inference-cli act --goal "..." (--url <url> | --dom-file <path>) [--var KEY=VALUE]
//	inference-cli extract --instruction "..." --schema <schema.json> (--url <url> | --dom-file <path>)
//	inference-cli observe --instruction "..." (--url <url> | --dom-file <path>)
//	inference-cli verify --goal "..." --steps "..." [--url <url> | --dom-file <path>]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nbenliogludev/go-browser-inference/internal/config"
	"github.com/nbenliogludev/go-browser-inference/internal/inference"
	"github.com/nbenliogludev/go-browser-inference/internal/llm"
	"github.com/nbenliogludev/go-browser-inference/internal/observability"
)

// version is set at build time via -ldflags.
var version = "dev"

// newClient is swapped out by tests.
var newClient = llm.NewClient

type app struct {
	configPath string
	requestID  string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "inference-cli",
		Short: "Ask a language model to act on, extract from or observe a web page",
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		SilenceUsage:      true,
		Version:           version,
		PersistentPreRunE: a.setup,
	}

	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "Path to a YAML config file")
	f.StringVar(&a.requestID, "request-id", "", "Correlation id forwarded to the LLM client (default: random UUID)")
	f.StringVar(&a.logLevel, "log-level", "", "Override logger.level")

	root.AddCommand(
		newAskCmd(a),
		newActCmd(a),
		newExtractCmd(a),
		newObserveCmd(a),
		newVerifyCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logger.Level = a.logLevel
	}
	a.cfg = cfg
	a.logger = observability.Initialize(cfg.Logger, zapcore.Lock(zapcore.AddSync(cmd.ErrOrStderr())))

	if a.requestID == "" {
		a.requestID = uuid.NewString()
	}
	a.logger.Debug("configuration loaded",
		zap.String("request_id", a.requestID),
		zap.String("provider", string(cfg.LLM.Provider)),
		zap.String("model", cfg.LLM.Model),
	)
	return nil
}

func (a *app) engine(ctx context.Context) (*inference.Engine, error) {
	client, err := newClient(ctx, a.cfg.LLM, a.logger)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}
	return inference.NewEngineFromConfig(client, a.cfg, a.logger), nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer observability.Sync()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		observability.Sync()
		stop()
		os.Exit(1)
	}
}
