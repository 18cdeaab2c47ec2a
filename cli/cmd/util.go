package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render JSON: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func getConfigFilePath() string {
	if cfgFile != "" {
		return cfgFile
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".aegis.yaml")
}

// writeConfigValue sets a dot-notation key in the config file,
// creating the file when needed. Values in the file are plain YAML;
// intermediate maps are created along the key path.
func writeConfigValue(key, value string) error {
	configFile := getConfigFilePath()

	settings := make(map[string]interface{})
	if data, err := os.ReadFile(configFile); err == nil {
		if err = yaml.Unmarshal(data, &settings); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", configFile, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	segments := strings.Split(key, ".")
	current := settings
	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			current[segment] = next
		}
		current = next
	}
	current[segments[len(segments)-1]] = value

	out, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to render config file: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(configFile), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err = os.WriteFile(configFile, out, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
