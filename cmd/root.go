package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ftl/bandwatch/config"
)

var (
	version   string = "develop"
	gitCommit string = "-"
	buildTime string = "-"
)

var rootFlags = struct {
	pprof        bool
	debug        bool
	config       string
	scope        bool
	scopeAddress string
	telnetPort   int
	traceTo      string
	record       string
	status       time.Duration
	windows      bool

	channels int
	dwell    time.Duration
	alpha    float64
}{}

var rootCmd = &cobra.Command{
	Use:   "bandwatch",
	Short: "Bandwatch - see how busy the 2.4 GHz Wi-Fi channels are",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&rootFlags.pprof, "pprof", false, "enable pprof")
	rootCmd.PersistentFlags().BoolVar(&rootFlags.debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&rootFlags.config, "config", "", "the YAML configuration file")
	rootCmd.PersistentFlags().BoolVar(&rootFlags.scope, "scope", false, "enable the scope server that streams the sweep summaries")
	rootCmd.PersistentFlags().StringVar(&rootFlags.scopeAddress, "scope_address", ":35369", "listening address and port for the scope server")
	rootCmd.PersistentFlags().IntVar(&rootFlags.telnetPort, "telnet_port", 0, "the port of the telnet feed, 0 disables the telnet feed")
	rootCmd.PersistentFlags().StringVar(&rootFlags.traceTo, "trace_to", "", "trace every window to file:<filename> or udp:<host>:<port>")
	rootCmd.PersistentFlags().StringVar(&rootFlags.record, "record", "", "record every window into the given SQLite database")
	rootCmd.PersistentFlags().DurationVar(&rootFlags.status, "status", 0, "print the status of all channels in this interval, 0 disables the status")
	rootCmd.PersistentFlags().BoolVar(&rootFlags.windows, "windows", false, "print every finalized window")

	rootCmd.PersistentFlags().IntVar(&rootFlags.channels, "channels", 0, "the number of channels to sweep (overrides the configuration)")
	rootCmd.PersistentFlags().DurationVar(&rootFlags.dwell, "dwell", 0, "the dwell time per channel (overrides the configuration)")
	rootCmd.PersistentFlags().Float64Var(&rootFlags.alpha, "alpha", 0, "the smoothing factor (overrides the configuration)")

	rootCmd.PersistentFlags().MarkHidden("pprof")
}

func runWithCtx(f func(ctx context.Context, cfg config.Config, cmd *cobra.Command, args []string)) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		if !rootFlags.debug {
			log.SetOutput(&nopWriter{})
		}

		log.Printf("Bandwatch Version %s", formatVersion())

		cfg, err := loadConfig(cmd)
		if err != nil {
			log.SetOutput(os.Stderr)
			log.Fatal(err)
		}

		if rootFlags.pprof {
			go func() {
				log.Printf("starting pprof on http://localhost:6060/debug/pprof")
				log.Println(http.ListenAndServe("localhost:6060", nil))
			}()
		}

		ctx, cancel := context.WithCancel(context.Background())
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
		go handleCancelation(signals, cancel)

		f(ctx, cfg, cmd, args)
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(rootFlags.config)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("channels") {
		cfg.Channels = rootFlags.channels
		if cfg.TopK > cfg.Channels {
			cfg.TopK = cfg.Channels
		}
	}
	if flags.Changed("dwell") {
		cfg.Dwell = rootFlags.dwell
	}
	if flags.Changed("alpha") {
		cfg.Alpha = rootFlags.alpha
	}

	return cfg, cfg.Validate()
}

func formatVersion() string {
	if gitCommit == "-" && buildTime == "-" {
		return version
	}
	return fmt.Sprintf("%s_%s_%s", version, gitCommit, buildTime)
}

func handleCancelation(signals <-chan os.Signal, cancel context.CancelFunc) {
	count := 0
	for range signals {
		count++
		if count == 1 {
			cancel()
		} else {
			log.Fatal("hard shutdown")
		}
	}
}

type nopWriter struct{}

func (w *nopWriter) Write(p []byte) (n int, err error) { return len(p), nil }
