package cmd

import (
	"context"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/ftl/bandwatch/config"
	"github.com/ftl/bandwatch/radio"
)

var remoteFlags = struct {
	url        string
	ackTimeout time.Duration
}{}

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "sweep the channels with a sniffer that is connected through a websocket",
	Run:   runWithCtx(runRemote),
}

func init() {
	rootCmd.AddCommand(remoteCmd)

	remoteCmd.Flags().StringVar(&remoteFlags.url, "url", "ws://localhost:8080/sniffer", "the websocket URL of the sniffer")
	remoteCmd.Flags().DurationVar(&remoteFlags.ackTimeout, "ack_timeout", radio.DefaultAckTimeout, "the time to wait for the sniffer to acknowledge a channel switch")
}

func runRemote(ctx context.Context, cfg config.Config, cmd *cobra.Command, args []string) {
	p, err := newPipeline(cfg)
	if err != nil {
		log.Fatal(err)
	}

	bridge, err := radio.DialWebsocketBridge(ctx, remoteFlags.url, p.monitor)
	if err != nil {
		p.stop()
		log.Fatal(err)
	}
	defer bridge.Close()
	bridge.SetAckTimeout(remoteFlags.ackTimeout)

	p.run(ctx, bridge, nil, bridge.Done())
}
