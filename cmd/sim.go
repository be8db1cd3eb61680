package cmd

import (
	"context"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/ftl/bandwatch/config"
	"github.com/ftl/bandwatch/radio"
)

var simFlags = struct {
	seed     uint32
	interval time.Duration
	failOn   []int
	duration time.Duration
}{}

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "sweep the channels of a simulated band with a few busy access points",
	Run:   runWithCtx(runSim),
}

func init() {
	rootCmd.AddCommand(simCmd)

	simCmd.Flags().Uint32Var(&simFlags.seed, "seed", 1, "the seed of the simulated traffic")
	simCmd.Flags().DurationVar(&simFlags.interval, "interval", 5*time.Millisecond, "the interval in which the simulated frames are delivered")
	simCmd.Flags().IntSliceVar(&simFlags.failOn, "fail_on", nil, "channels that cannot be tuned")
	simCmd.Flags().DurationVar(&simFlags.duration, "duration", 0, "stop the simulation after this time, 0 runs until interrupted")
}

func runSim(ctx context.Context, cfg config.Config, cmd *cobra.Command, args []string) {
	p, err := newPipeline(cfg)
	if err != nil {
		log.Fatal(err)
	}

	simulator := radio.NewSimulator(p.monitor, simFlags.seed, radio.DefaultSources()...)
	for _, channel := range simFlags.failOn {
		simulator.FailOn(channel)
	}
	defer simulator.Stop()

	if simFlags.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, simFlags.duration)
		defer cancel()
	}

	p.run(ctx, simulator, func() { simulator.Start(simFlags.interval) }, nil)
}
