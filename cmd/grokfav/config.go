package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"grokfav/pkg/config"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage grokfav configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (GROKFAV_*)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file with every option set to its default",
	Long: `Create a configuration file with every option set to its default.

The file is created as 'grokfav.yaml' in the current directory unless a
different path is given with --config.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Validate the configuration for syntax errors and invalid values.

Besides the value checks done on every load this command checks that the
output and log directories can be created and that a browser is available.`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	console := newConsole(false)

	configPath := configFile
	if configPath == "" {
		configPath = "grokfav.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		err := fmt.Errorf("configuration file already exists: %s", configPath)
		console.Error("Refusing to overwrite", err)
		return err
	}

	if err := config.DefaultConfig().Save(configPath); err != nil {
		console.Error("Failed to create configuration file", err)
		return err
	}

	console.Success("Configuration file created: " + configPath)
	console.Println("\nNext steps:")
	console.Println("1. Adjust the gallery URL and output directory")
	console.Println("2. Run 'grokfav config validate' to check the configuration")
	console.Println("3. Start downloading with 'grokfav run'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	console := newConsole(false)
	cfg, err := loadConfig(console, globalOverrides(cmd))
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		console.Error("Failed to format configuration", err)
		return err
	}

	console.Info("Configuration", describeSource())
	fmt.Fprintln(cmd.OutOrStdout())
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

func describeSource() string {
	if configFile != "" {
		return configFile
	}
	return "defaults, environment and auto-detected file"
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	console := newConsole(false)
	console.Info("Validating configuration", describeSource())

	cfg, err := loadConfig(console, globalOverrides(cmd))
	if err != nil {
		return err
	}

	var problems, warnings []string

	if err := os.MkdirAll(cfg.Output.BaseDirectory, 0755); err != nil {
		problems = append(problems, fmt.Sprintf("cannot create output directory: %v", err))
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}

	if cfg.Browser.BrowserPath != "" {
		if _, err := os.Stat(cfg.Browser.BrowserPath); err != nil {
			problems = append(problems, fmt.Sprintf("browser not found at %s", cfg.Browser.BrowserPath))
		}
	} else if _, found := launcher.LookPath(); !found {
		warnings = append(warnings, "no system Chrome/Chromium found; one will be downloaded on first run")
	}
	if cfg.Browser.Headless && cfg.Reversal.Mode == "prompt" {
		warnings = append(warnings, "headless runs cannot sign in interactively; make sure the profile is already signed in")
	}

	if len(problems) > 0 {
		console.Error("Configuration has errors", errors.New(fmt.Sprint(len(problems), " problem(s)")))
		for _, p := range problems {
			console.Println("  - " + p)
		}
		return errors.New("configuration is invalid")
	}

	for _, w := range warnings {
		console.Warn(w)
	}

	console.Success("Configuration is valid")
	console.Println("\nConfiguration summary:")
	console.Info("  Gallery", cfg.Browser.GalleryURL)
	console.Info("  Output directory", filepath.Join(cfg.Output.BaseDirectory, cfg.Output.SessionRoot))
	console.Info("  Concurrent transfers", fmt.Sprint(cfg.Download.ConcurrentDownloads))
	console.Info("  Rate limit", fmt.Sprintf("%d transfers/minute", cfg.RateLimit.RequestsPerMinute))
	console.Info("  Max retries", fmt.Sprint(cfg.Download.MaxRetries))
	console.Info("  Unfavorite mode", cfg.Reversal.Mode)
	console.Info("  Log level", cfg.Logging.Level)
	return nil
}
