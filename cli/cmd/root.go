package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"southwinds.dev/aegis"
	"southwinds.dev/aegis/audit"
	"southwinds.dev/aegis/persist"
)

var (
	cfgFile string

	// lazily constructed collaborators, shared by subcommands
	vault   *aegis.Vault
	checker *aegis.Checker
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "aegis",
	Short: "Trust and integrity tooling for document templates and secrets",
	Long: `Aegis is the trust layer of the document assistant: it validates and
sanitizes file paths, stores secrets with optional expiry in an encrypted
store, and verifies template integrity through checksums, digital
signatures and a trusted-source registry.`,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		var errs []string
		if vault != nil {
			if err := vault.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if checker != nil {
			if err := checker.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if len(errs) > 0 {
			return fmt.Errorf("shutdown errors: %s", strings.Join(errs, "; "))
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.aegis.yaml)")
	rootCmd.PersistentFlags().StringP("store-path", "p", "", "path to secret store")
	rootCmd.PersistentFlags().String("store-type", "", "storage backend type (filesystem, s3, memory)")
	rootCmd.PersistentFlags().String("passphrase", "", "store passphrase (or use AEGIS_STORE_PASSPHRASE env var)")
	rootCmd.PersistentFlags().StringP("namespace", "n", "", "store namespace")
	rootCmd.PersistentFlags().String("resources", "", "application resource directory (implicitly trusted templates)")

	bindFlagOrPanic("store.path", "store-path")
	bindFlagOrPanic("store.type", "store-type")
	bindFlagOrPanic("store.passphrase", "passphrase")
	bindFlagOrPanic("store.namespace", "namespace")
	bindFlagOrPanic("resources.dir", "resources")

	// Audit flags
	rootCmd.PersistentFlags().Bool("audit", false, "enable audit logging")
	rootCmd.PersistentFlags().String("audit-type", "", "audit logger type (file, syslog)")
	rootCmd.PersistentFlags().String("audit-file", "", "audit log file path")

	bindFlagOrPanic("audit.enabled", "audit")
	bindFlagOrPanic("audit.type", "audit-type")
	bindFlagOrPanic("audit.options.file_path", "audit-file")

	// S3 flags (for direct CLI usage)
	rootCmd.PersistentFlags().String("s3-endpoint", "", "S3 endpoint URL")
	rootCmd.PersistentFlags().String("s3-region", "", "S3 region")
	rootCmd.PersistentFlags().String("s3-bucket", "", "S3 bucket name")
	rootCmd.PersistentFlags().String("s3-prefix", "", "S3 key prefix")
	rootCmd.PersistentFlags().String("s3-access-key", "", "S3 access key ID")
	rootCmd.PersistentFlags().String("s3-secret-key", "", "S3 secret access key")
	rootCmd.PersistentFlags().Bool("s3-use-ssl", true, "Use SSL for S3 connections")

	bindFlagOrPanic("store.s3.endpoint", "s3-endpoint")
	bindFlagOrPanic("store.s3.region", "s3-region")
	bindFlagOrPanic("store.s3.bucket", "s3-bucket")
	bindFlagOrPanic("store.s3.prefix", "s3-prefix")
	bindFlagOrPanic("store.s3.access_key_id", "s3-access-key")
	bindFlagOrPanic("store.s3.secret_access_key", "s3-secret-key")
	bindFlagOrPanic("store.s3.use_ssl", "s3-use-ssl")
}

func bindFlagOrPanic(configKey, flagName string) {
	var flag *pflag.Flag
	if flag = rootCmd.PersistentFlags().Lookup(flagName); flag == nil {
		panic(fmt.Sprintf("flag %s is not defined", flagName))
	}
	if err := viper.BindPFlag(configKey, flag); err != nil {
		panic(fmt.Sprintf("failed to bind %s flag: %v", flagName, err))
	}
}

func initConfig() {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/aegis")

		viper.SetConfigType("yaml")
		viper.SetConfigName(".aegis")
	}

	viper.SetEnvPrefix("AEGIS")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
		// Config file not found is OK - defaults and env vars apply
	}
}

func setDefaults() {
	viper.SetDefault("store.path", ".aegis")
	viper.SetDefault("store.type", "filesystem")
	viper.SetDefault("store.namespace", "default")

	viper.SetDefault("store.s3.region", "us-east-1")
	viper.SetDefault("store.s3.prefix", "aegis/")
	viper.SetDefault("store.s3.use_ssl", true)

	viper.SetDefault("audit.enabled", false)
	viper.SetDefault("audit.type", "file")
	viper.SetDefault("audit.options.max_size", 100)
	viper.SetDefault("audit.options.max_backups", 5)
	viper.SetDefault("audit.options.file_path", "audit.log")
}

// auditConfig assembles the audit configuration from viper settings.
func auditConfig() *audit.Config {
	if !viper.GetBool("audit.enabled") {
		return nil
	}

	filePath := viper.GetString("audit.options.file_path")
	if filePath == "audit.log" {
		filePath = filepath.Join(viper.GetString("store.path"), "audit.log")
	}

	return &audit.Config{
		Enabled: true,
		Type:    audit.ConfigType(viper.GetString("audit.type")),
		Options: map[string]interface{}{
			"file_path":   filePath,
			"max_size":    viper.GetInt("audit.options.max_size"),
			"max_backups": viper.GetInt("audit.options.max_backups"),
		},
		LogLevel: viper.GetString("audit.log_level"),
	}
}

// storeConfig assembles a persist.StoreConfig from viper settings.
func storeConfig() (*persist.StoreConfig, error) {
	storeType := viper.GetString("store.type")

	passphrase := viper.GetString("store.passphrase")
	if passphrase == "" {
		passphrase = os.Getenv("AEGIS_STORE_PASSPHRASE")
	}

	switch storeType {
	case "filesystem", "file":
		if passphrase == "" {
			return nil, fmt.Errorf("store passphrase is required. Use --passphrase or AEGIS_STORE_PASSPHRASE")
		}
		return &persist.StoreConfig{
			Type: persist.StoreTypeFileSystem,
			Config: map[string]interface{}{
				"base_path":  viper.GetString("store.path"),
				"namespace":  viper.GetString("store.namespace"),
				"passphrase": passphrase,
			},
		}, nil

	case "s3":
		if passphrase == "" {
			return nil, fmt.Errorf("store passphrase is required. Use --passphrase or AEGIS_STORE_PASSPHRASE")
		}
		return &persist.StoreConfig{
			Type: persist.StoreTypeS3,
			Config: map[string]interface{}{
				"endpoint":          viper.GetString("store.s3.endpoint"),
				"region":            viper.GetString("store.s3.region"),
				"bucket":            viper.GetString("store.s3.bucket"),
				"key_prefix":        viper.GetString("store.s3.prefix"),
				"access_key_id":     viper.GetString("store.s3.access_key_id"),
				"secret_access_key": viper.GetString("store.s3.secret_access_key"),
				"use_ssl":           viper.GetBool("store.s3.use_ssl"),
				"namespace":         viper.GetString("store.namespace"),
				"passphrase":        passphrase,
			},
		}, nil

	case "memory":
		return &persist.StoreConfig{Type: persist.StoreTypeMemory}, nil

	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeType)
	}
}

// ensureVault constructs the shared Vault on first use.
func ensureVault() (*aegis.Vault, error) {
	if vault != nil {
		return vault, nil
	}

	config, err := storeConfig()
	if err != nil {
		return nil, err
	}

	v, err := aegis.New(aegis.Options{
		StoreConfig: config,
		Audit:       auditConfig(),
	})
	if err != nil {
		return nil, err
	}
	vault = v
	return vault, nil
}

// ensureChecker constructs the shared integrity Checker on first use.
func ensureChecker() (*aegis.Checker, error) {
	if checker != nil {
		return checker, nil
	}

	c, err := aegis.NewChecker(aegis.CheckerOptions{
		ResourceDir: viper.GetString("resources.dir"),
		Audit:       auditConfig(),
	})
	if err != nil {
		return nil, err
	}

	// Trust anchors recorded in the config file are registered at
	// startup, before any verification command runs.
	for name, keyPath := range viper.GetStringMapString("trust.sources") {
		if err = c.AddTrustedSource(name, keyPath); err != nil {
			return nil, fmt.Errorf("failed to register trusted source %q: %w", name, err)
		}
	}

	checker = c
	return checker, nil
}
