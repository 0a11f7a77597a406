package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"goa.design/clue/log"

	"github.com/xiaot623/gogo/streamer/internal/config"
	"github.com/xiaot623/gogo/streamer/internal/policy"
	"github.com/xiaot623/gogo/streamer/internal/toolname"
)

var version = "0.1.0"

var debugFlag bool

var rootCmd = &cobra.Command{
	Use:          "streamer",
	Short:        "Tool activity streamer",
	Long:         color.CyanString("streamer") + "\nStreams agent runs, detects tool activity and rebuilds progress timelines.",
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("streamer %s\n", version)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logs")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(timelineCmd)
	rootCmd.AddCommand(watchCmd)
}

// loadConfig reads the environment and sets up the logger.
func loadConfig() (context.Context, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if debugFlag {
		cfg.Debug = true
	}
	return logContext(cfg), cfg, nil
}

func logContext(cfg *config.Config) context.Context {
	format := log.FormatJSON
	switch cfg.LogFormat {
	case "terminal":
		format = log.FormatTerminal
	case "":
		if log.IsTerminal() {
			format = log.FormatTerminal
		}
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if cfg.Debug {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}
	return ctx
}

// newMapper builds the tool name mapper with the configured visibility policy.
func newMapper(ctx context.Context, cfg *config.Config) (*toolname.Mapper, error) {
	engine, err := policy.LoadEngine(ctx, cfg.VisibilityPolicy, policy.WithErrorHandler(func(toolName string, err error) {
		log.Errorf(ctx, err, "visibility policy failed for %q", toolName)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
	}
	return toolname.New(toolname.WithVisibility(engine)), nil
}
