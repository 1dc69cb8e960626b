package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dotsetgreg/dotcommunity/pkg/config"
	"github.com/dotsetgreg/dotcommunity/pkg/providers"
)

func executeCLI() error {
	root := buildRootCommand(true)
	if err := root.Execute(); err != nil {
		return err
	}
	return nil
}

type rootOptions struct {
	configPath string
	envFile    string
}

func buildRootCommand(includeDocsCommand bool) *cobra.Command {
	var (
		showVersion bool
		opts        rootOptions
	)

	root := &cobra.Command{
		Use:   "dotcommunity",
		Short: "Discord community bot: triage, gentle replies, scheduled topics and outreach",
		Long: strings.TrimSpace(`dotcommunity watches a Discord server, decides with two LLM judges when a
message deserves a reply, posts scheduled discussion topics and reaches out to
inactive members by DM.

Configuration comes from an optional JSON file and the environment. A .env
file in the working directory is loaded first when present.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion()
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("DOTCOMMUNITY_CONFIG"), "Optional JSON config file (environment wins)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Dotenv file loaded before reading the environment")

	root.AddCommand(newRunCommand(&opts))
	root.AddCommand(newStatusCommand(&opts))
	root.AddCommand(newCheckConfigCommand(&opts))
	root.AddCommand(newVersionCommand())

	if includeDocsCommand {
		docsCmd := newDocsCommand(func() *cobra.Command { return buildRootCommand(false) })
		root.AddCommand(docsCmd)
	}

	return root
}

// loadConfig reads the dotenv file, if any, and then the config.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	if path := strings.TrimSpace(opts.envFile); path != "" {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	return config.LoadConfig(opts.configPath)
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Connect to Discord and run the bot",
		Long:    "Start the Discord adapter, the message pipeline, the scheduler and the optional health server.",
		Example: "  dotcommunity run --debug",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			return runBot(cmd.Context(), cfg, debug)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show configuration, provider, and storage readiness",
		Example: "  dotcommunity status",
		RunE: func(cmd *cobra.Command, args []string) error {
			printStatus(cmd, opts)
			return nil
		},
	}
}

func newCheckConfigCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "check-config",
		Short:   "Validate the configuration and exit",
		Example: "  dotcommunity check-config --config ./dotcommunity.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Configuration OK")
			fmt.Fprintf(out, "  Timezone: %s\n", cfg.Bot.Timezone)
			fmt.Fprintf(out, "  Topic channels: %s\n", valueOr(strings.Join(cfg.Topics.TopicChannels(), ", "), "none"))
			fmt.Fprintf(out, "  Outreach dry-run: %t\n", cfg.Outreach.DryRun)
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  dotcommunity version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion()
			return nil
		},
	}
}

func printStatus(cmd *cobra.Command, opts *rootOptions) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Status\n", appName)
	fmt.Fprintf(out, "Version: %s\n", formatVersion())
	build, _ := formatBuildInfo()
	if build != "" {
		fmt.Fprintf(out, "Build: %s\n", build)
	}
	fmt.Fprintln(out)

	if opts.configPath != "" {
		if _, err := os.Stat(opts.configPath); err == nil {
			fmt.Fprintln(out, "Config:", opts.configPath, "✓")
		} else {
			fmt.Fprintln(out, "Config:", opts.configPath, "✗")
		}
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(out, "Configuration error: %v\n", err)
		return
	}

	status := func(enabled bool) string {
		if enabled {
			return "✓"
		}
		return "not set"
	}
	primary := providers.CredentialConfigured(cfg, cfg.Judges.PrimaryProvider)
	secondary := providers.CredentialConfigured(cfg, cfg.Judges.SecondaryProvider)

	fmt.Fprintln(out, "Discord token:", status(strings.TrimSpace(cfg.Discord.Token) != ""))
	fmt.Fprintf(out, "Primary judge (%s): %s\n", cfg.Judges.PrimaryProvider, status(primary))
	fmt.Fprintf(out, "Secondary judge (%s): %s\n", cfg.Judges.SecondaryProvider, status(secondary))
	fmt.Fprintln(out, "Storage:", valueOr(cfg.Storage.Path, "disabled"))
	fmt.Fprintln(out, "Health server:", valueOr(cfg.Gateway.Addr, "disabled"))
	fmt.Fprintln(out, "Topic channels:", valueOr(strings.Join(cfg.Topics.TopicChannels(), ", "), "none"))
	fmt.Fprintln(out, "Welcome channel:", valueOr(cfg.Discord.WelcomeChannelID, "none"))
	fmt.Fprintln(out, "Outreach dry-run:", cfg.Outreach.DryRun)
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
