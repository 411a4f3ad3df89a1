package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pauljones0/promo-reply-bot/internal/config"
	"github.com/pauljones0/promo-reply-bot/internal/logging"
	"github.com/pauljones0/promo-reply-bot/internal/models"
	"github.com/pauljones0/promo-reply-bot/internal/processor"
)

const serviceName = "promo-reply-bot"

var (
	envFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "replybot",
	Short: "Search posts by keyword, draft promotional replies and send them",
	Long: `replybot runs a three stage pipeline against the X API:

  search   fetch recent posts for the next keyword in rotation
  prepare  rank fresh posts and draft a reply for the best ones
  send     deliver prepared replies and record them in the sent log

Each stage can run on its own (for a scheduler), all together with "run",
or behind HTTP triggers with "serve".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logging.Init(serviceName, cfg.LogFormat, cfg.LogLevel)
		return nil
	},
}

func stageCommand(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd.Context(), name)
		},
	}
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run search, prepare and send in order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(cmd.Context(), processor.StageSearch, processor.StagePrepare, processor.StageSend)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the stages as HTTP triggers for an external scheduler",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.AddCommand(
		stageCommand(processor.StageSearch, "Fetch recent posts for the next keyword"),
		stageCommand(processor.StagePrepare, "Draft replies for the best fresh posts"),
		stageCommand(processor.StageSend, "Send prepared replies"),
		runCmd,
		serveCmd,
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// runStages builds every requested stage before running any, so missing
// credentials abort the run before it touches the queue.
func runStages(ctx context.Context, names ...string) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	stages := make([]processor.Stage, 0, len(names))
	for _, name := range names {
		s, err := a.stage(ctx, name)
		if err != nil {
			return err
		}
		stages = append(stages, s)
	}

	summaries, err := processor.NewPipeline(stages...).Run(ctx)
	for _, s := range summaries {
		slog.Info("Stage result", "stage", s.Stage, "run_id", s.RunID, "count", s.Count, "empty", s.Empty)
	}
	if errors.Is(err, models.ErrNoKeywords) {
		return fmt.Errorf("%w: add keywords to %s", err, cfg.KeywordsFile)
	}
	return err
}
