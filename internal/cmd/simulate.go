package cmd

import (
	"github.com/spf13/cobra"

	"github.com/inercia/specula/internal/client"
	"github.com/inercia/specula/internal/logging"
	"github.com/inercia/specula/internal/sim"
)

var (
	simulateURL    string
	simulateTitle  string
	simulatePrompt string
)

// simulateCmd represents the simulate command
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Publish a scripted conversation to a running server",
	Long: `Publish one simulated conversation (session, user message, streamed
assistant reply, permission round trip) through a server's publish endpoint.

Useful for demos and for exercising connected viewers without a real
execution engine.

Example:
  specula simulate
  specula simulate --url http://127.0.0.1:9000 --prompt "Explain the bus"`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringVar(&simulateURL, "url", "http://127.0.0.1:8080", "Base URL of the specula server")
	simulateCmd.Flags().StringVar(&simulateTitle, "title", "Simulated conversation", "Session title")
	simulateCmd.Flags().StringVar(&simulatePrompt, "prompt", "Walk me through the repository layout.", "User prompt text")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	c := client.New(simulateURL, nil, client.WithAPIPrefix(cfg.Web.APIPrefix))

	producer := sim.New(c,
		sim.WithPermission(true),
		sim.WithLogger(logging.Sim()),
	)

	sessionID, err := producer.RunConversation(cmd.Context(),
		simulateTitle,
		simulatePrompt,
		[]string{
			"The repository follows the usual cmd/ and internal/ split. ",
			"Events flow from producers through the bus to every stream. ",
			"Each viewer reconciles the stream into its own local view.",
		},
	)
	if err != nil {
		return err
	}

	logging.Sim().Info("Conversation published", "session_id", sessionID)
	return nil
}
