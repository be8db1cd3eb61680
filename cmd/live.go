package cmd

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/ftl/bandwatch/config"
	"github.com/ftl/bandwatch/radio"
)

var liveFlags = struct {
	iface      string
	dump       string
	iwDisabled bool
}{}

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "sweep the channels with a Wi-Fi interface in monitor mode (Linux only)",
	Run:   runWithCtx(runLive),
}

func init() {
	rootCmd.AddCommand(liveCmd)

	liveCmd.Flags().StringVar(&liveFlags.iface, "iface", "wlan0mon", "the network interface in monitor mode")
	liveCmd.Flags().StringVar(&liveFlags.dump, "dump", "", "write all captured frames into this capture file")
	liveCmd.Flags().BoolVar(&liveFlags.iwDisabled, "no_tuning", false, "do not switch the channels of the interface")
}

func runLive(ctx context.Context, cfg config.Config, cmd *cobra.Command, args []string) {
	p, err := newPipeline(cfg)
	if err != nil {
		log.Fatal(err)
	}

	capture, err := radio.OpenLiveCapture(liveFlags.iface, p.monitor)
	if err != nil {
		p.stop()
		log.Fatal(err)
	}
	defer capture.Close()

	if liveFlags.dump != "" {
		f, err := os.Create(liveFlags.dump)
		if err != nil {
			p.stop()
			log.Fatalf("cannot create capture file: %v", err)
		}
		defer f.Close()
		dump, err := radio.NewPCAPWriter(f)
		if err != nil {
			p.stop()
			log.Fatal(err)
		}
		capture.SetDump(dump)
	}

	var tuner radio.Tuner = radio.NewIWTuner(liveFlags.iface)
	if liveFlags.iwDisabled {
		tuner = nil
	}

	p.run(ctx, tuner, capture.Start, capture.Done())
}
