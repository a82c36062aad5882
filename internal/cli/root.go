// Package cli implements the mxprobe command line.
package cli

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/optimode/mxprobe"
	"github.com/optimode/mxprobe/internal/config"
	"github.com/optimode/mxprobe/internal/logger"
)

const mxprobeDesc = "Check whether email addresses are deliverable without sending mail"
const mxprobeDescLong = mxprobeDesc + "\n\n" +
	`Each address is matched against a fixed pattern, its domain's MX (or A)
records are resolved, and the first mail host is asked whether it accepts the
address at RCPT TO. No message is ever sent.

To verify addresses from the command line:
  mxprobe verify alice@example.com bob@example.org

To verify a list, one address per line:
  mxprobe verify < addresses.txt

To run the HTTP service:
  mxprobe serve

Settings are read from mxprobe.yaml in the --config directory and from
MXPROBE_* environment variables, e.g. MXPROBE_PROBE_MAIL_FROM.
`

// app carries state shared by the subcommands.
type app struct {
	configDir string
	logLevel  string

	cfg *config.Config
	log zerolog.Logger

	stdin io.Reader
	// tweak adjusts verifier options after configuration is applied.
	tweak func(*mxprobe.Options)
}

func (a *app) verifierOptions() mxprobe.Options {
	opts := a.cfg.VerifierOptions()
	if a.tweak != nil {
		a.tweak(&opts)
	}
	return opts
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "mxprobe",
		Version:       "v0.1.0",
		Short:         mxprobeDesc,
		Long:          mxprobeDescLong,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configDir)
			if err != nil {
				return err
			}
			if a.logLevel != "" {
				cfg.Logging.Level = a.logLevel
			}
			a.cfg = cfg
			a.log = logger.NewFromConfig(cfg.LoggerConfig())
			return nil
		},
	}

	root.PersistentFlags().StringVarP(
		&a.configDir, "config", "c", ".",
		"Directory containing mxprobe.yaml",
	)
	root.PersistentFlags().StringVar(
		&a.logLevel, "log-level", "",
		"Log level (debug, info, warn, error); overrides the config file",
	)

	root.AddCommand(newVerifyCmd(a), newServeCmd(a))
	return root
}

// Execute runs the root command with the process's arguments.
func Execute() error {
	return newRootCmd(&app{stdin: os.Stdin}).Execute()
}
