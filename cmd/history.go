package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ftl/bandwatch/config"
	"github.com/ftl/bandwatch/history"
)

var historyFlags = struct {
	since time.Duration
	prune time.Duration
}{}

var historyCmd = &cobra.Command{
	Use:   "history <file.db>",
	Short: "show the average activity per channel recorded with --record",
	Args:  cobra.ExactArgs(1),
	Run:   runWithCtx(runHistory),
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().DurationVar(&historyFlags.since, "since", 24*time.Hour, "only consider the windows recorded within this time")
	historyCmd.Flags().DurationVar(&historyFlags.prune, "prune", 0, "delete all windows older than this time, 0 keeps all windows")
}

func runHistory(ctx context.Context, _ config.Config, cmd *cobra.Command, args []string) {
	store, err := history.Open(args[0])
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	now := time.Now()
	if historyFlags.prune > 0 {
		deleted, err := store.Prune(now.Add(-historyFlags.prune))
		if err != nil {
			log.Fatal(err)
		}
		fmt.Fprintf(os.Stdout, "%d windows deleted\n", deleted)
	}

	averages, err := store.ChannelAverages(now.Add(-historyFlags.since))
	if err != nil {
		log.Fatal(err)
	}
	if len(averages) == 0 {
		fmt.Fprintf(os.Stdout, "no windows recorded since %s\n", humanize.Time(now.Add(-historyFlags.since)))
		return
	}

	fmt.Fprintf(os.Stdout, "average activity since %s\n", humanize.Time(now.Add(-historyFlags.since)))
	for _, average := range averages {
		fmt.Fprintf(os.Stdout, "%2d  %3.0f (max %3.0f)  %6.1f frames %8s  %d windows\n",
			average.Channel, average.Smoothed, average.MaxRaw, average.Frames, humanize.Bytes(uint64(average.Bytes)), average.Windows)
	}
}
