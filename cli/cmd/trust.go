package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var trustCmd = &cobra.Command{
	Use:   "trust",
	Short: "Manage the trusted-source registry",
	Long:  "Register named trust anchors (a source name tied to a public key) used by template verification.",
}

var trustAddCmd = &cobra.Command{
	Use:   "add [name] [public-key-path]",
	Short: "Register or overwrite a trusted source",
	Args:  cobra.ExactArgs(2),
	RunE:  addTrustedSource,
}

var trustListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered trusted sources",
	RunE:  listTrustedSources,
}

func init() {
	rootCmd.AddCommand(trustCmd)
	trustCmd.AddCommand(trustAddCmd)
	trustCmd.AddCommand(trustListCmd)
}

func addTrustedSource(cmd *cobra.Command, args []string) error {
	c, err := ensureChecker()
	if err != nil {
		return err
	}

	if err = c.AddTrustedSource(args[0], args[1]); err != nil {
		return err
	}

	// Persist so future invocations register the source at startup.
	if err = writeConfigValue("trust.sources."+args[0], args[1]); err != nil {
		return fmt.Errorf("source registered but not persisted: %w", err)
	}

	fmt.Printf("Trusted source %q registered\n", args[0])
	return nil
}

func listTrustedSources(cmd *cobra.Command, args []string) error {
	c, err := ensureChecker()
	if err != nil {
		return err
	}

	sources := c.TrustedSources()
	if len(sources) == 0 {
		fmt.Println("No trusted sources registered")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPUBLIC KEY")
	for _, source := range sources {
		fmt.Fprintf(w, "%s\t%s\n", source.Name, source.PublicKeyPath)
	}
	return w.Flush()
}
