package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage aegis configuration",
	Long:  `View and edit the aegis configuration file. Keys use dot notation (e.g. store.type).`,
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View current configuration",
	Long:  `Display the effective configuration from all sources (config file, environment variables, flags). Secrets are redacted.`,
	RunE:  runConfigView,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
}

// redactedKeys are never echoed back by config view/get.
var redactedKeys = []string{"passphrase", "secret_access_key"}

func isRedacted(key string) bool {
	for _, sensitive := range redactedKeys {
		if strings.Contains(key, sensitive) {
			return true
		}
	}
	return false
}

func runConfigView(cmd *cobra.Command, args []string) error {
	settings := viper.AllSettings()
	redactSettings(settings, "")

	out, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

func redactSettings(settings map[string]interface{}, prefix string) {
	for key, value := range settings {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok {
			redactSettings(nested, fullKey)
			continue
		}
		if isRedacted(fullKey) {
			if s, ok := value.(string); ok && s != "" {
				settings[key] = "<redacted>"
			}
		}
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if err := writeConfigValue(args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("%s set\n", args[0])
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	if !viper.IsSet(key) {
		return fmt.Errorf("configuration key %q is not set", key)
	}
	if isRedacted(key) {
		fmt.Println("<redacted>")
		return nil
	}
	fmt.Println(viper.GetString(key))
	return nil
}
