// Package commands defines all Cobra CLI commands for the studyrag binary.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/studyrag-go/internal/audit"
	"github.com/54b3r/studyrag-go/internal/config"
	"github.com/54b3r/studyrag-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// envFile holds the --env-file flag value.
var envFile string

// settings is resolved once per invocation in PersistentPreRunE.
var settings *config.Settings

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "studyrag",
		Short: "studyrag: chat with your course material",
		Long: `studyrag is a retrieval-augmented study assistant.

Students ingest the extracted text of their course material, then ask
questions that are answered only from what they ingested. Every student's
material and conversations are kept separate.

Providers and storage are selected via environment variables, a .env file,
or a YAML config file (~/.studyrag/config.yaml).
See 'studyrag --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			boot := logging.New("info", "json")

			if err := config.LoadDotEnv(envFile, boot); err != nil {
				return err
			}
			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, boot)
			if err != nil {
				return err
			}

			s, err := config.FromEnv()
			if err != nil {
				return err
			}
			settings = s

			log := logging.New(s.Logging.Level, s.Logging.Format)
			slog.SetDefault(log)
			ctx := logging.WithLogger(cmd.Context(), log)
			cmd.SetContext(ctx)

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(ctx, log, cmd.CommandPath(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.studyrag/config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file; missing files are ignored")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewAskCmd(),
		NewChatCmd(),
		NewVersionCmd(),
	)

	return root
}
