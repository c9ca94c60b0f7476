// Package cli implements the livecheck command line
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrCodeEU/livecheck/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Version is the application version
const Version = "0.3.0"

// options holds the persistent flags shared by every subcommand
type options struct {
	configPath string
	verbose    bool
}

// NewRootCommand builds the command tree
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "livecheck",
		Short:         "Real-time camera liveness verification",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file (default: search /etc/livecheck, ~/.livecheck, .)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(
		newRunCommand(opts),
		newVerifyCommand(opts),
		newScoreCommand(opts),
		newChallengesCommand(),
		newConfigCommand(opts),
	)
	return root
}

// Execute runs the command line with a context cancelled on SIGINT or SIGTERM
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// loadConfiguration reads the config file, falling back to defaults when an
// implicit search finds nothing usable
func (o *options) loadConfiguration() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		if o.configPath != "" {
			return nil, err
		}
		fmt.Fprintf(os.Stderr, "Using default configuration: %v\n", err)
		cfg = config.DefaultConfig()
	}
	return cfg, nil
}

// newLogger builds the logger from the logging section; --verbose forces debug
func (o *options) newLogger(cfg *config.Config) (*logrus.Logger, io.Closer, error) {
	logger, closer, err := cfg.Logging.NewLogger()
	if err != nil {
		return nil, nil, err
	}
	if o.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger, closer, nil
}
