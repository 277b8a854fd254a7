// Package servecmder provides the serve command: the operator API, the MCP
// endpoint and the background task workers in one process.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/sensei/api"
	"github.com/papercomputeco/sensei/api/mcp"
	"github.com/papercomputeco/sensei/cmd/sensei/app"
	"github.com/papercomputeco/sensei/pkg/config"
	"github.com/papercomputeco/sensei/pkg/logger"
	"github.com/papercomputeco/sensei/pkg/policy"
	"github.com/papercomputeco/sensei/pkg/worker"
)

type ServeCommander struct {
	flags flagValues

	watchPolicy bool
	noMCP       bool
	debug       bool
	configDir   string

	viper  *viper.Viper
	logger *zap.Logger
}

type flagValues struct {
	listen          string
	storageDriver   string
	sqlitePath      string
	postgresDSN     string
	vectorProvider  string
	vectorTarget    string
	embeddingProv   string
	embeddingTarget string
	embeddingModel  string
	llmProvider     string
	llmBaseURL      string
	llmModel        string
	manifest        string
	governance      string
	queueBackend    string
	queueTarget     string
	queueWorkers    uint
	embeddingDims   uint
	resourceIndex   string
	apertureTimeout string
}

const serveLongDesc string = `Run the sensei runtime.

Starts the operator API (policy evaluation and reload, context assembly,
/metrics and the /mcp endpoint), consumes background tasks from the work
queue, and sweeps conversations for summarization on the configured cron
schedule.

Configuration is read from sensei.toml in the .sensei/ directory, then
SENSEI_* environment variables, then flags.`

const serveShortDesc string = "Run the sensei runtime"

// serveFlagKeys lists every ServeFlags entry registered on the command.
var serveFlagKeys = []string{
	config.FlagAPIListen,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagLLMProvider,
	config.FlagLLMBaseURL,
	config.FlagLLMModel,
	config.FlagManifest,
	config.FlagGovernance,
	config.FlagQueueBackend,
	config.FlagQueueTarget,
	config.FlagResourceIndex,
	config.FlagApertureTimeout,
}

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			cmder.viper, err = config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(cmder.viper, cmd, config.ServeFlags, append(serveFlagKeys, config.FlagQueueWorkers, config.FlagEmbeddingDims))
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			return cmder.run(cmd.Context())
		},
	}

	targets := map[string]*string{
		config.FlagAPIListen:       &cmder.flags.listen,
		config.FlagStorageDriver:   &cmder.flags.storageDriver,
		config.FlagSQLite:          &cmder.flags.sqlitePath,
		config.FlagPostgres:        &cmder.flags.postgresDSN,
		config.FlagVectorStoreProv: &cmder.flags.vectorProvider,
		config.FlagVectorStoreTgt:  &cmder.flags.vectorTarget,
		config.FlagEmbeddingProv:   &cmder.flags.embeddingProv,
		config.FlagEmbeddingTgt:    &cmder.flags.embeddingTarget,
		config.FlagEmbeddingModel:  &cmder.flags.embeddingModel,
		config.FlagLLMProvider:     &cmder.flags.llmProvider,
		config.FlagLLMBaseURL:      &cmder.flags.llmBaseURL,
		config.FlagLLMModel:        &cmder.flags.llmModel,
		config.FlagManifest:        &cmder.flags.manifest,
		config.FlagGovernance:      &cmder.flags.governance,
		config.FlagQueueBackend:    &cmder.flags.queueBackend,
		config.FlagQueueTarget:     &cmder.flags.queueTarget,
		config.FlagResourceIndex:   &cmder.flags.resourceIndex,
		config.FlagApertureTimeout: &cmder.flags.apertureTimeout,
	}
	for _, key := range serveFlagKeys {
		config.AddStringFlag(cmd, config.ServeFlags, key, targets[key])
	}
	config.AddUintFlag(cmd, config.ServeFlags, config.FlagQueueWorkers, &cmder.flags.queueWorkers)
	config.AddUintFlag(cmd, config.ServeFlags, config.FlagEmbeddingDims, &cmder.flags.embeddingDims)

	cmd.Flags().BoolVar(&cmder.watchPolicy, "watch-policy", false, "Reload the policy when its files change")
	cmd.Flags().BoolVar(&cmder.noMCP, "no-mcp", false, "Serve an MCP endpoint with no tools")

	return cmd
}

func (c *ServeCommander) run(ctx context.Context) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	cfg := config.FromViper(c.viper)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{ConfigDir: c.configDir, Logger: c.logger})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			c.logger.Warn("closing backends", zap.Error(err))
		}
	}()

	mcpServer, err := mcp.NewServer(mcp.Config{
		Assembler: a.Assembler,
		Policy:    a.Policy,
		Noop:      c.noMCP,
		Logger:    c.logger.Named("mcp"),
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	apiServer, err := api.NewServer(api.Config{
		ListenAddr: cfg.API.Listen,
		Metrics:    a.Metrics,
		MCP:        mcpServer.Handler(),
	}, a.Policy, a.Assembler, c.logger.Named("api"))
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	sweep, err := newSweeper(cfg.Summarizer.Schedule, func(ctx context.Context) (int, error) {
		return a.Summarizer.Sweep(ctx, a.Queue)
	}, c.logger.Named("sweep"))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := apiServer.Run(); err != nil {
			return fmt.Errorf("API server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return apiServer.Shutdown()
	})

	g.Go(func() error {
		return worker.Run(gctx, a.Queue, a.Mux.Serve)
	})

	g.Go(func() error {
		return sweep.run(gctx)
	})

	if c.watchPolicy {
		g.Go(func() error {
			err := a.Policy.Watch(gctx)
			switch {
			case errors.Is(err, policy.ErrNoSource):
				c.logger.Warn("--watch-policy ignored: policy uses the bundled defaults")
				return nil
			case errors.Is(err, context.Canceled):
				return nil
			}
			return err
		})
	}

	c.logger.Info("sensei running",
		zap.String("api_addr", cfg.API.Listen),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("queue", cfg.Queue.Backend),
		zap.String("summary_schedule", cfg.Summarizer.Schedule),
	)

	err = g.Wait()
	if ctx.Err() != nil {
		c.logger.Info("received signal, shutting down")
	}
	return err
}
