package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/streamer/internal/config"
	"github.com/xiaot623/gogo/streamer/internal/domain"
	"github.com/xiaot623/gogo/streamer/internal/repository"
	"github.com/xiaot623/gogo/streamer/internal/timeline"
)

var (
	timelineRun    string
	timelineThread string
	timelineDB     string
)

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Print the stored timeline of a run or thread",
	RunE:  runTimeline,
}

func init() {
	timelineCmd.Flags().StringVar(&timelineRun, "run", "", "Run ID")
	timelineCmd.Flags().StringVar(&timelineThread, "thread", "", "Thread ID")
	timelineCmd.Flags().StringVar(&timelineDB, "db", "", "Database URL (defaults to STREAMER_DATABASE_URL)")
	timelineCmd.MarkFlagsMutuallyExclusive("run", "thread")
	timelineCmd.MarkFlagsOneRequired("run", "thread")
}

func runTimeline(cmd *cobra.Command, args []string) error {
	ctx, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if timelineDB != "" {
		cfg.DatabaseURL = timelineDB
	}

	db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	mapper, err := newMapper(ctx, cfg)
	if err != nil {
		return err
	}
	builder := timeline.NewBuilder(mapper)
	w := cmd.OutOrStdout()

	if timelineRun != "" {
		run, err := db.GetRun(ctx, timelineRun)
		if err != nil {
			return err
		}
		if run == nil {
			return errors.New("run not found: " + timelineRun)
		}
		activities, err := db.ListToolActivitiesByRun(ctx, run.RunID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s %s (%s)\n", color.CyanString("Run"), run.RunID, statusColor(run.Status))
		printSteps(w, builder.BuildForRun(activities, run.RunID, timelineConfig(cfg)))
		printStats(w, timeline.Stats(activities, run.RunID))
		return nil
	}

	runs, err := db.ListRunsByThread(ctx, timelineThread)
	if err != nil {
		return err
	}
	activities, err := db.ListToolActivitiesByThread(ctx, timelineThread)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s %s, %d runs\n", color.CyanString("Thread"), timelineThread, len(runs))
	for _, run := range runs {
		fmt.Fprintf(w, "\n%s %s (%s)\n", color.CyanString("Run"), run.RunID, statusColor(run.Status))
		printSteps(w, builder.BuildForRun(activities, run.RunID, timelineConfig(cfg)))
	}
	fmt.Fprintln(w)
	printStats(w, timeline.Stats(activities, ""))
	return nil
}

func timelineConfig(cfg *config.Config) timeline.Config {
	return timeline.Config{
		MinimumActivities: cfg.TimelineMinimumActivities,
		AddDoneStep:       cfg.TimelineAddDoneStep,
	}
}

func statusColor(s domain.RunStatus) string {
	switch s {
	case domain.RunStatusComplete:
		return color.GreenString(string(s))
	case domain.RunStatusError:
		return color.RedString(string(s))
	case domain.RunStatusInterrupted:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

func printSteps(w io.Writer, steps []domain.TimelineStep) {
	if len(steps) == 0 {
		fmt.Fprintln(w, color.HiBlackString("  (no steps)"))
		return
	}
	for _, s := range steps {
		switch {
		case s.IsLast:
			fmt.Fprintf(w, "  %s %s\n", color.GreenString("✓"), color.GreenString(s.Label))
		case s.IsRunning:
			fmt.Fprintf(w, "  %s %s\n", color.YellowString("…"), s.Label)
		default:
			fmt.Fprintf(w, "  %s %s\n", color.GreenString("•"), s.Label)
		}
	}
}

func printStats(w io.Writer, stats domain.TimelineStats) {
	fmt.Fprintf(w, "%s total=%d complete=%d running=%d unique=%d",
		color.CyanString("Stats"), stats.TotalActivities, stats.CompletedActivities,
		stats.RunningActivities, stats.UniqueTools)
	if stats.Timespan != nil {
		fmt.Fprintf(w, " timespan=%dms", *stats.Timespan)
	}
	fmt.Fprintln(w)
}
