package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opencourtdata/judgment-crawler/internal/logging"
	"github.com/opencourtdata/judgment-crawler/pkg/config"
)

var (
	cfgFile     string
	development bool

	// logger is built once by the root command's initializer and shared
	// by all subcommands.
	logger *zap.Logger
)

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "judgment-crawler",
		Short: "A resumable crawler for the judgments portal.",
		Long: `judgment-crawler walks the judgments portal court by court and day by
day, solving the portal's captcha-gated session protocol, downloading
every judgment document it has not seen before, and checkpointing its
progress so interrupted runs pick up where they left off.`,
	}

	cobra.OnInitialize(func() {
		l, err := logging.New(development)
		if err != nil {
			fmt.Fprintln(os.Stderr, "initialize logger:", err)
			os.Exit(1)
		}
		logger = l
		config.InitConfig(cfgFile, logger)
	})

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	cmd.PersistentFlags().BoolVar(&development, "dev", false, "human-readable development logging")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		if logger != nil {
			logger.Error("command failed", zap.Error(err))
			_ = logger.Sync()
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
	if logger != nil {
		_ = logger.Sync()
	}
}
