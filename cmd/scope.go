package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/ftl/bandwatch/config"
	"github.com/ftl/bandwatch/rx"
	"github.com/ftl/bandwatch/scope"
)

var scopeFlags = struct {
	address string
}{}

var scopeCmd = &cobra.Command{
	Use:   "scope",
	Short: "show the sweep summaries streamed by a remote scope server",
	Run:   runWithCtx(runScope),
}

func init() {
	rootCmd.AddCommand(scopeCmd)

	scopeCmd.Flags().StringVar(&scopeFlags.address, "address", "localhost:35369", "the address of the scope server")
}

func runScope(ctx context.Context, _ config.Config, cmd *cobra.Command, args []string) {
	client := scope.NewClient(scopeFlags.address)
	err := client.Open()
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	frames, err := client.GetFrames(ctx)
	if err != nil {
		log.Fatal(err)
	}

	for frame := range frames {
		fmt.Fprintf(os.Stdout, "%s %s\n", frame.Timestamp.Local().Format("15:04:05"), frame.Stream)
		printStatus(os.Stdout, frameSummary(frame))
	}
}

func frameSummary(frame *scope.Frame) rx.Summary {
	result := rx.Summary{
		ActiveChannel:  frame.ActiveChannel,
		Sweeps:         frame.Sweep,
		GlobalActivity: frame.GlobalActivity,
		Top:            frame.Top,
		Channels:       make([]rx.ChannelView, len(frame.Channels)),
	}
	for i, c := range frame.Channels {
		result.Channels[i] = rx.ChannelView{
			Metrics: rx.Metrics{
				Frames:       c.Frames,
				Bytes:        c.Bytes,
				StrongFrames: c.StrongFrames,
				Unique:       c.Unique,
			},
			Channel:  c.Channel,
			Smoothed: c.Smoothed,
			Raw:      c.Raw,
			Active:   c.Active,
			HasData:  c.HasData,
			Period:   c.Period,
		}
	}
	return result
}
