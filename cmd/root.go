// Package cmd implements the CLI commands using Cobra.
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"linkchain/internal/config"
	"linkchain/internal/hostalias"
	applog "linkchain/internal/log"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Global flags
var (
	flagConfig    string
	flagSeason    int
	flagEpisode   int
	flagContentID string
	flagReferer   string
	flagJSON      bool
	flagPlain     bool
	flagNoSubs    bool
	flagLanguage  string
	flagSubsDir   string
	flagWorkers   int
	flagAliases   []string
	flagDebug     bool
)

// cfg holds the loaded configuration (merged: defaults < config file < flags).
var cfg *config.Config

var (
	logger    *logrus.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "linkchain [url]",
	Short: "Resolve watch pages into playable stream links",
	Long: `linkchain fetches a watch page, finds every server it offers, follows
redirectors and encoded tokens, and prints the stream links they lead to.`,
	Args:              cobra.MaximumNArgs(1),
	PersistentPreRunE: loadConfig,
	SilenceUsage:      true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return resolveRun(cmd, args)
	},
}

// Execute runs the root command.
func Execute() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

// run executes the root command and closes the log file even when the
// command failed, which cobra's post-run hooks would skip.
func run() error {
	err := rootCmd.Execute()
	if cerr := closeLog(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Config file (default: $XDG_CONFIG_HOME/linkchain/config.toml)")
	pf.BoolVarP(&flagDebug, "debug", "x", false, "Debug logging to stderr")

	addResolveFlags(rootCmd)
	addResolveFlags(resolveCmd)

	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(aliasesCmd)
	rootCmd.AddCommand(versionCmd)
}

func addResolveFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVarP(&flagSeason, "season", "s", 0, "Season number")
	f.IntVarP(&flagEpisode, "episode", "e", 0, "Episode number")
	f.StringVar(&flagContentID, "content-id", "", "Upstream content or episode ID")
	f.StringVar(&flagReferer, "referer", "", "Referer sent with the watch page request")
	f.BoolVarP(&flagJSON, "json", "j", false, "Output links and subtitles as JSON")
	f.BoolVar(&flagPlain, "plain", false, "Plain line output even on a terminal")
	f.BoolVarP(&flagNoSubs, "no-subs", "n", false, "Do not report subtitles")
	f.StringVarP(&flagLanguage, "language", "l", "", "Preferred subtitle language")
	f.StringVar(&flagSubsDir, "subs-dir", "", "Save the best matching subtitle into this directory")
	f.IntVarP(&flagWorkers, "workers", "w", 0, "Candidates resolved at once")
	f.StringArrayVar(&flagAliases, "alias", nil, "Extra host alias old=new (repeatable)")
}

// loadConfig loads and merges configuration: defaults < config file < CLI flags.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	if flagConfig != "" {
		cfg, err = config.LoadFile(flagConfig)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// CLI flags override config file values
	if flagWorkers > 0 {
		cfg.Workers = flagWorkers
	}
	if flagLanguage != "" {
		cfg.SubsLanguage = flagLanguage
	}
	if flagDebug {
		cfg.Debug = true
	}
	for _, a := range flagAliases {
		pair, err := hostalias.ParsePair(a)
		if err != nil {
			return err
		}
		cfg.Aliases = append(cfg.Aliases, pair)
	}

	// Re-validate after flag overrides
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, logCloser, err = applog.New(applog.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
		Debug:  cfg.Debug,
	})
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	logger.WithField("version", Version).Debug("configuration loaded")
	return nil
}

func closeLog() error {
	if logCloser == nil {
		return nil
	}
	err := logCloser.Close()
	logCloser = nil
	return err
}
