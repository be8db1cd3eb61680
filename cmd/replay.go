package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/ftl/bandwatch/config"
	"github.com/ftl/bandwatch/radio"
)

var replayFlags = struct {
	realtime bool
}{}

var replayCmd = &cobra.Command{
	Use:   "replay <file.pcap>",
	Short: "sweep the channels of a radiotap capture file",
	Args:  cobra.ExactArgs(1),
	Run:   runWithCtx(runReplay),
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().BoolVar(&replayFlags.realtime, "realtime", true, "replay the capture with its original timing")
}

func runReplay(ctx context.Context, cfg config.Config, cmd *cobra.Command, args []string) {
	p, err := newPipeline(cfg)
	if err != nil {
		log.Fatal(err)
	}

	replay, err := radio.OpenPCAP(args[0], p.monitor, replayFlags.realtime)
	if err != nil {
		p.stop()
		log.Fatal(err)
	}
	defer replay.Close()

	p.run(ctx, replay, replay.Start, replay.Done())

	delivered, skipped := replay.Stats()
	log.Printf("replay finished: %d frames delivered, %d frames of other channels skipped", delivered, skipped)
	if err := replay.Err(); err != nil {
		log.Printf("replay failed: %v", err)
	}
}
