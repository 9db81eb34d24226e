package cmds

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-tavern/chatbot/internal/config"
	"github.com/zhouzirui/z-tavern/chatbot/internal/logging"
	"github.com/zhouzirui/z-tavern/chatbot/internal/service/chat"
	"github.com/zhouzirui/z-tavern/chatbot/internal/service/session"
	"github.com/zhouzirui/z-tavern/chatbot/internal/service/webhook"
	"github.com/zhouzirui/z-tavern/chatbot/internal/store"
)

// app holds what every subcommand needs. It is built once in PersistentPreRunE.
type app struct {
	cfg      *config.Config
	storage  store.Store
	identity *session.Manager
	client   *webhook.Client
	chat     *chat.Service
}

// NewRootCommand assembles the chatbot CLI.
func NewRootCommand() *cobra.Command {
	a := &app{}
	var storageBackend, storagePath string

	root := &cobra.Command{
		Use:           "chatbot",
		Short:         "Talk to the webhook chatbot from a terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			envErr := godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return errors.Wrap(err, "load configuration")
			}
			logging.Setup(os.Stderr, cfg.LogLevel)
			if envErr != nil {
				log.Debug().Err(envErr).Msg("no .env file loaded")
			}

			if storageBackend != "" {
				cfg.Storage.Backend = storageBackend
			}
			if storagePath != "" {
				cfg.Storage.Path = storagePath
			}
			return a.init(cmd, cfg)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.storage != nil {
				return a.storage.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&storageBackend, "storage", "", "storage backend (memory, file, sqlite, redis)")
	root.PersistentFlags().StringVar(&storagePath, "storage-path", "", "storage file or database path")

	root.AddCommand(
		newSessionCommand(a),
		newSendCommand(a),
		newReplCommand(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command, cfg *config.Config) error {
	storage, err := store.Open(cmd.Context(), cfg.Storage)
	if err != nil {
		return errors.Wrapf(err, "open %s storage", cfg.Storage.Backend)
	}

	a.cfg = cfg
	a.storage = storage
	a.identity = session.NewManager(storage)
	a.client = webhook.NewClient(webhook.Config{
		EndpointURL: cfg.Chatbot.WebhookURL,
		Timeout:     cfg.Chatbot.Timeout,
	})
	a.chat = chat.NewService(a.identity, a.client, chat.Config{
		Greeting: cfg.Chatbot.Greeting,
		Fallback: cfg.Chatbot.Fallback,
	})
	return nil
}

func (a *app) requireEnabled() error {
	if !a.client.Configured() {
		return webhook.ErrNotConfigured
	}
	return nil
}

// Execute runs the CLI with args and returns the process exit code. Errors
// are printed to stderr since the root command silences cobra's own output.
func Execute(args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
