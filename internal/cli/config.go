package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/competia/internal/model"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

// configShowCmd prints the effective configuration.
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		// Never print secrets.
		cfg.Providers.OpenAI.APIKey = redact(cfg.Providers.OpenAI.APIKey)
		cfg.Providers.Anthropic.APIKey = redact(cfg.Providers.Anthropic.APIKey)

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		fmt.Print(string(data))
		return nil
	},
}

// configInitCmd writes a default config file.
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file to $HOME/.competia/config.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("find home directory: %w", err)
		}
		dir := home + "/.competia"
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}

		path := dir + "/config.yaml"
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s", path)
		}

		data, err := yaml.Marshal(model.DefaultConfig())
		if err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		header := "# Competia configuration.\n" +
			"# Every key is overridable via COMPETIA_* environment variables\n" +
			"# and command-line flags; flags win over env, env wins over this file.\n" +
			"# API keys may be left empty and provided via OPENAI_API_KEY / ANTHROPIC_API_KEY.\n"
		if err := os.WriteFile(path, append([]byte(header), data...), 0o600); err != nil {
			return fmt.Errorf("write config: %w", err)
		}

		fmt.Printf("Wrote default config to %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func redact(key string) string {
	if key == "" {
		return ""
	}
	return "[set]"
}
