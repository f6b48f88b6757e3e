package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"grokfav/pkg/config"
	"grokfav/pkg/ui"
)

var (
	// Global flags
	configFile    string
	logLevel      string
	noColor       bool
	notifications bool
	quiet         bool
	verbose       bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "grokfav",
	Short: "Download every favorite from a Grok Imagine gallery",
	Long: `grokfav opens your Grok Imagine favorites in a browser, scrolls the whole
gallery, and downloads every image and video into a timestamped folder.

Features:
  - Scrolls virtualized and paginated galleries until nothing new renders
  - Names files by favorite position ({position}-{kind}{ext})
  - Retries failed downloads with a bounded retry drain
  - Writes a run report next to the downloads
  - Optionally unfavorites downloaded cards afterwards`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./grokfav.yaml or ~/.config/grokfav/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&notifications, "notifications", true, "enable desktop notifications")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "print only the final result and errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print every status line and log instead of a progress bar")

	rootCmd.SetVersionTemplate(`grokfav {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// globalOverrides collects the persistent flags the user actually set
func globalOverrides(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	if cmd.Flags().Changed("log-level") {
		flags["log-level"] = logLevel
	}
	if cmd.Flags().Changed("notifications") {
		flags["notifications"] = notifications
	}
	return flags
}

// newConsole builds the console for the current terminal and flags
func newConsole(showDebug bool) *ui.Console {
	return ui.NewConsole(os.Stdout, ui.ConsoleOptions{
		NoColor:   noColor || !ui.IsInteractive(os.Stdout),
		Quiet:     quiet,
		ShowDebug: showDebug,
	})
}

// loadConfig loads the configuration, reporting failures on console
func loadConfig(console *ui.Console, flags map[string]interface{}) (*config.Config, error) {
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		console.Error("Failed to load configuration", err)
		return nil, err
	}
	return cfg, nil
}
