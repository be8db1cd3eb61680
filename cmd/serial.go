package cmd

import (
	"context"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/ftl/bandwatch/config"
	"github.com/ftl/bandwatch/radio"
)

var serialFlags = struct {
	port       string
	baudRate   int
	ackTimeout time.Duration
}{}

var serialCmd = &cobra.Command{
	Use:   "serial",
	Short: "sweep the channels with a sniffer attached to a serial port",
	Run:   runWithCtx(runSerial),
}

func init() {
	rootCmd.AddCommand(serialCmd)

	serialCmd.Flags().StringVar(&serialFlags.port, "port", "/dev/ttyUSB0", "the serial port of the sniffer")
	serialCmd.Flags().IntVar(&serialFlags.baudRate, "baud", radio.DefaultBaudRate, "the baud rate of the serial port")
	serialCmd.Flags().DurationVar(&serialFlags.ackTimeout, "ack_timeout", radio.DefaultAckTimeout, "the time to wait for the sniffer to acknowledge a channel switch")
}

func runSerial(ctx context.Context, cfg config.Config, cmd *cobra.Command, args []string) {
	p, err := newPipeline(cfg)
	if err != nil {
		log.Fatal(err)
	}

	bridge, err := radio.OpenSerialBridge(serialFlags.port, serialFlags.baudRate, p.monitor)
	if err != nil {
		p.stop()
		log.Fatal(err)
	}
	defer bridge.Close()
	bridge.SetAckTimeout(serialFlags.ackTimeout)

	p.run(ctx, bridge, nil, bridge.Done())
}
