package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/inercia/specula/internal/bus"
	"github.com/inercia/specula/internal/config"
	"github.com/inercia/specula/internal/logging"
	"github.com/inercia/specula/internal/sim"
	"github.com/inercia/specula/internal/web"
)

var (
	serveHost     string
	servePort     int
	serveSimulate bool
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the event distribution server",
	Long: `Start the server that fans out session events to connected viewers.

Producers publish events through POST {prefix}/api/publish (or through the
bus directly when embedded); viewers subscribe at GET {prefix}/api/events
(Server-Sent Events) or GET {prefix}/api/events/ws (WebSocket).

Example:
  specula serve                    # Listen on 127.0.0.1:8080
  specula serve --port 0           # Use a random free port
  specula serve --simulate         # Also publish a demo conversation loop`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Address to bind (default 127.0.0.1)")
	serveCmd.Flags().IntVar(&servePort, "port", -1, "HTTP server port; 0 for a random port")
	serveCmd.Flags().BoolVar(&serveSimulate, "simulate", false, "Publish a simulated conversation every few seconds")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := logging.Web()

	if serveHost != "" {
		cfg.Web.Host = serveHost
	}
	if servePort >= 0 {
		cfg.Web.Port = servePort
	}

	b := bus.New(
		bus.WithBufferSize(cfg.Bus.BufferSize),
		bus.WithLogger(logging.Bus()),
	)
	defer b.Close()

	server := web.NewServer(web.Config{
		Host:           cfg.Web.Host,
		Port:           cfg.Web.Port,
		APIPrefix:      cfg.Web.APIPrefix,
		RateLimitRPS:   cfg.Web.RateLimitRPS,
		RateLimitBurst: cfg.Web.RateLimitBurst,
	}, b)
	if err := server.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Apply log-level changes from the config file without a restart.
	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
			logging.SetLevel(next.Log.Level)
		}, logger)
		if err != nil {
			logger.Warn("Config watching disabled", "error", err)
		} else {
			watcher.Start()
			defer watcher.Close()
		}
	}

	if serveSimulate {
		go runSimulationLoop(ctx, b)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("Shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// runSimulationLoop publishes demo conversations until the context ends.
func runSimulationLoop(ctx context.Context, b *bus.Bus) {
	producer := sim.New(b, sim.WithPermission(true))

	for i := 0; ; i++ {
		_, err := producer.RunConversation(ctx,
			"Demo conversation",
			"Summarize the latest changes.",
			[]string{"Looking at the history", ", three commits stand out", ": a bug fix, a refactor, and new tests."},
		)
		if err != nil {
			return
		}

		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
			return
		}
	}
}
