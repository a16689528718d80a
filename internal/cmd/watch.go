package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/inercia/specula/internal/client"
	"github.com/inercia/specula/internal/event"
	"github.com/inercia/specula/internal/logging"
	"github.com/inercia/specula/internal/reconcile"
	"github.com/inercia/specula/internal/store"
)

var watchURL string

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a server's event stream and reconcile it locally",
	Long: `Connect to a running specula server, reconcile its event stream into
a local view, and log a summary whenever that view changes.

This is the reference consumer: it demonstrates the convergence guarantees
(duplicates, gaps and out-of-order delivery are absorbed) and is useful for
inspecting what any viewer of the same server would see.

Example:
  specula watch
  specula watch --url http://127.0.0.1:9000`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchURL, "url", "http://127.0.0.1:8080", "Base URL of the specula server")
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger := logging.Client()

	st := store.New()
	rec := reconcile.New(st, reconcile.WithLogger(logging.Reconcile()))
	rec.Handle(event.KindSessionIdle, func(ev event.Event) {
		var p event.SessionIDPayload
		if err := ev.DecodeProperties(&p); err == nil {
			logger.Info("Session idle", "session_id", p.SessionID)
		}
	})

	c := client.New(watchURL, rec,
		client.WithAPIPrefix(cfg.Web.APIPrefix),
		client.WithLogger(logger),
	)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	go logChanges(ctx, rec, st)

	return c.Run(ctx)
}

// logChanges logs a store summary whenever the reconciler reports a change.
func logChanges(ctx context.Context, rec *reconcile.Reconciler, st *store.Store) {
	logger := logging.Client()

	for {
		select {
		case <-rec.Changed():
			sessions := st.Sessions()
			messages := 0
			for _, s := range sessions {
				messages += len(st.Messages(s.ID))
			}
			logger.Info("View updated",
				"sessions", len(sessions),
				"messages", messages)
		case <-ctx.Done():
			return
		}
	}
}
