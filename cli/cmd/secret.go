package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage secrets in the encrypted store",
	Long:  "Store, retrieve and delete secrets. Values can be provided inline, from a file, or via stdin.",
}

var setSecretCmd = &cobra.Command{
	Use:   "set [key]",
	Short: "Store a secret",
	Args:  cobra.ExactArgs(1),
	RunE:  setSecret,
}

var getSecretCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Retrieve a secret",
	Args:  cobra.ExactArgs(1),
	RunE:  getSecret,
}

var deleteSecretCmd = &cobra.Command{
	Use:   "delete [key]",
	Short: "Delete a secret",
	Args:  cobra.ExactArgs(1),
	RunE:  deleteSecret,
}

var listSecretsCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored secret keys",
	RunE:  listSecrets,
}

var exportSecretsCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export all secrets to a passphrase-encrypted file",
	Long:  "Write every stored secret to a passphrase-encrypted file. The file is self-contained and can be imported into a vault backed by a different store.",
	Args:  cobra.ExactArgs(1),
	RunE:  exportSecrets,
}

var importSecretsCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import secrets from a passphrase-encrypted file",
	Long:  "Read a file produced by 'secret export' and store every entry it contains, overwriting entries that share a key.",
	Args:  cobra.ExactArgs(1),
	RunE:  importSecrets,
}

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage API keys with optional expiry",
}

var setAPIKeyCmd = &cobra.Command{
	Use:   "set [service] [key]",
	Short: "Store an API key for a service",
	Long:  "Store an API key, optionally expiring after --ttl-days and carrying --meta key=value pairs alongside it.",
	Args:  cobra.ExactArgs(2),
	RunE:  setAPIKey,
}

var getAPIKeyCmd = &cobra.Command{
	Use:   "get [service]",
	Short: "Retrieve an API key",
	Long:  "Retrieve the API key stored for a service. Expired keys are reported as not found.",
	Args:  cobra.ExactArgs(1),
	RunE:  getAPIKey,
}

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage service credentials",
}

var setCredentialsCmd = &cobra.Command{
	Use:   "set [service] [username] [password]",
	Short: "Store a password for a service account",
	Args:  cobra.ExactArgs(3),
	RunE:  setCredentials,
}

var getCredentialsCmd = &cobra.Command{
	Use:   "get [service] [username]",
	Short: "Retrieve a password for a service account",
	Args:  cobra.ExactArgs(2),
	RunE:  getCredentials,
}

var (
	secretValue      string
	secretValueFile  string
	secretFromStdin  bool
	exportPassphrase string
	apiKeyTTLDays    int
	apiKeyMeta       []string
)

func init() {
	rootCmd.AddCommand(secretCmd)
	secretCmd.AddCommand(setSecretCmd)
	secretCmd.AddCommand(getSecretCmd)
	secretCmd.AddCommand(deleteSecretCmd)
	secretCmd.AddCommand(listSecretsCmd)
	secretCmd.AddCommand(exportSecretsCmd)
	secretCmd.AddCommand(importSecretsCmd)

	rootCmd.AddCommand(apikeyCmd)
	apikeyCmd.AddCommand(setAPIKeyCmd)
	apikeyCmd.AddCommand(getAPIKeyCmd)

	rootCmd.AddCommand(credentialsCmd)
	credentialsCmd.AddCommand(setCredentialsCmd)
	credentialsCmd.AddCommand(getCredentialsCmd)

	setSecretCmd.Flags().StringVar(&secretValue, "value", "", "secret value (prefer --file or --stdin)")
	setSecretCmd.Flags().StringVar(&secretValueFile, "file", "", "read the secret value from a file")
	setSecretCmd.Flags().BoolVar(&secretFromStdin, "stdin", false, "read the secret value from stdin")

	exportSecretsCmd.Flags().StringVar(&exportPassphrase, "export-passphrase", "", "passphrase protecting the export file (or AEGIS_EXPORT_PASSPHRASE)")
	importSecretsCmd.Flags().StringVar(&exportPassphrase, "export-passphrase", "", "passphrase protecting the export file (or AEGIS_EXPORT_PASSPHRASE)")

	setAPIKeyCmd.Flags().IntVar(&apiKeyTTLDays, "ttl-days", 0, "days until the key expires (0 = never)")
	setAPIKeyCmd.Flags().StringSliceVar(&apiKeyMeta, "meta", nil, "metadata key=value pairs stored alongside the key")
}

func readSecretValue() (string, error) {
	switch {
	case secretFromStdin:
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read value from stdin: %w", err)
		}
		return strings.TrimRight(string(data), "\n"), nil
	case secretValueFile != "":
		data, err := os.ReadFile(secretValueFile)
		if err != nil {
			return "", fmt.Errorf("failed to read value file: %w", err)
		}
		return string(data), nil
	case secretValue != "":
		return secretValue, nil
	default:
		return "", fmt.Errorf("a value is required: use --value, --file or --stdin")
	}
}

func setSecret(cmd *cobra.Command, args []string) error {
	v, err := ensureVault()
	if err != nil {
		return err
	}

	value, err := readSecretValue()
	if err != nil {
		return err
	}

	if err = v.StoreSecureData(args[0], value); err != nil {
		return err
	}
	fmt.Printf("Secret %q stored\n", args[0])
	return nil
}

func getSecret(cmd *cobra.Command, args []string) error {
	v, err := ensureVault()
	if err != nil {
		return err
	}

	value, found, err := v.GetSecureData(args[0])
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("secret %q not found", args[0])
	}
	fmt.Println(value)
	return nil
}

func deleteSecret(cmd *cobra.Command, args []string) error {
	v, err := ensureVault()
	if err != nil {
		return err
	}

	if err = v.DeleteSecureData(args[0]); err != nil {
		return err
	}
	fmt.Printf("Secret %q deleted\n", args[0])
	return nil
}

func listSecrets(cmd *cobra.Command, args []string) error {
	v, err := ensureVault()
	if err != nil {
		return err
	}

	keys, err := v.ListKeys()
	if err != nil {
		return err
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Println(key)
	}
	return nil
}

func resolveExportPassphrase() (string, error) {
	if exportPassphrase != "" {
		return exportPassphrase, nil
	}
	if passphrase := os.Getenv("AEGIS_EXPORT_PASSPHRASE"); passphrase != "" {
		return passphrase, nil
	}
	return "", fmt.Errorf("an export passphrase is required: use --export-passphrase or AEGIS_EXPORT_PASSPHRASE")
}

func exportSecrets(cmd *cobra.Command, args []string) error {
	v, err := ensureVault()
	if err != nil {
		return err
	}

	passphrase, err := resolveExportPassphrase()
	if err != nil {
		return err
	}

	data, err := v.ExportSecrets(passphrase)
	if err != nil {
		return err
	}

	if err = os.WriteFile(args[0], data, 0600); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	fmt.Printf("Secrets exported to %s\n", args[0])
	return nil
}

func importSecrets(cmd *cobra.Command, args []string) error {
	v, err := ensureVault()
	if err != nil {
		return err
	}

	passphrase, err := resolveExportPassphrase()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read export file: %w", err)
	}

	if err = v.ImportSecrets(data, passphrase); err != nil {
		return err
	}
	fmt.Printf("Secrets imported from %s\n", args[0])
	return nil
}

func setAPIKey(cmd *cobra.Command, args []string) error {
	v, err := ensureVault()
	if err != nil {
		return err
	}

	metadata, err := parseMetaPairs(apiKeyMeta)
	if err != nil {
		return err
	}

	if err = v.StoreAPIKey(args[0], args[1], apiKeyTTLDays, metadata); err != nil {
		return err
	}
	if apiKeyTTLDays > 0 {
		fmt.Printf("API key for %q stored (expires in %d days)\n", args[0], apiKeyTTLDays)
	} else {
		fmt.Printf("API key for %q stored\n", args[0])
	}
	return nil
}

func getAPIKey(cmd *cobra.Command, args []string) error {
	v, err := ensureVault()
	if err != nil {
		return err
	}

	key, found, err := v.GetAPIKey(args[0])
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no API key found for %q", args[0])
	}
	fmt.Println(key)
	return nil
}

func setCredentials(cmd *cobra.Command, args []string) error {
	v, err := ensureVault()
	if err != nil {
		return err
	}

	if err = v.StoreCredentials(args[0], args[1], args[2]); err != nil {
		return err
	}
	fmt.Printf("Credentials for %s@%s stored\n", args[1], args[0])
	return nil
}

func getCredentials(cmd *cobra.Command, args []string) error {
	v, err := ensureVault()
	if err != nil {
		return err
	}

	password, found, err := v.GetCredentials(args[0], args[1])
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no credentials found for %s@%s", args[1], args[0])
	}
	fmt.Println(password)
	return nil
}

func parseMetaPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	metadata := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid metadata pair %q: want key=value", pair)
		}
		metadata[key] = value
	}
	return metadata, nil
}
