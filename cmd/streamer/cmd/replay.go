package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/streamer/internal/adapter/runtime"
	"github.com/xiaot623/gogo/streamer/internal/domain"
	"github.com/xiaot623/gogo/streamer/internal/streaming"
	"github.com/xiaot623/gogo/streamer/internal/timeline"
)

var (
	replayFile  string
	replayQuiet bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded event file and print the rebuilt timeline",
	Long: "Runs the orchestrator against a JSONL file of {\"event\":...,\"data\":...} lines,\n" +
		"writes the resulting wire events as SSE frames and prints the timeline.",
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVarP(&replayFile, "file", "f", "", "JSONL event file")
	replayCmd.Flags().BoolVarP(&replayQuiet, "quiet", "q", false, "Do not print wire events")
	replayCmd.MarkFlagRequired("file")
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mapper, err := newMapper(ctx, cfg)
	if err != nil {
		return err
	}

	var out io.Writer = cmd.OutOrStdout()
	if replayQuiet {
		out = io.Discard
	}

	runID := "run_" + uuid.New().String()
	recorder := timeline.NewRecorder()
	orch := streaming.New(runtime.NewFileSource(replayFile), mapper, streaming.WithHookTimeout(cfg.HookTimeout))
	status := orch.Run(ctx, streaming.Params{
		RunID:    runID,
		ThreadID: "replay",
		Stream:   domain.StreamConfig{AssistantID: cfg.AssistantID, StreamMode: cfg.StreamModes},
	}, recorder, streaming.NewSSETransport(out))

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "\n%s %s (%s)\n", color.CyanString("Run"), runID, statusColor(status))

	activities := recorder.Activities()
	steps := timeline.NewBuilder(mapper).BuildForRun(activities, runID, timelineConfig(cfg))
	printSteps(w, steps)
	printStats(w, timeline.Stats(activities, runID))

	if status == domain.RunStatusError {
		return fmt.Errorf("replay of %s ended with an error", replayFile)
	}
	return nil
}
