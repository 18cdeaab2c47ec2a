package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Sign and verify document templates",
	Long:  "Sign template files, verify signatures, and run the full integrity check (checksum + trust + signature) used before rendering.",
}

var templateSignCmd = &cobra.Command{
	Use:   "sign [file]",
	Short: "Sign a template",
	Long:  "Compute an RSA-SHA256 signature over the template bytes and write it, base64 encoded, to <file>.sig.",
	Args:  cobra.ExactArgs(1),
	RunE:  signTemplate,
}

var templateVerifySigCmd = &cobra.Command{
	Use:   "verify-signature [file]",
	Short: "Verify a template's signature",
	Args:  cobra.ExactArgs(1),
	RunE:  verifyTemplateSignature,
}

var templateVerifyCmd = &cobra.Command{
	Use:   "verify [file]",
	Short: "Run the full integrity check",
	Long:  "Verify the template's checksum sidecar and its trust status (trusted source or valid signature). Exits non-zero when the template is not safe to render from.",
	Args:  cobra.ExactArgs(1),
	RunE:  verifyTemplate,
}

var (
	privateKeyPath string
	publicKeyPath  string
	templateSource string
	verifyJSON     bool
)

func init() {
	rootCmd.AddCommand(templateCmd)
	templateCmd.AddCommand(templateSignCmd)
	templateCmd.AddCommand(templateVerifySigCmd)
	templateCmd.AddCommand(templateVerifyCmd)

	templateSignCmd.Flags().StringVar(&privateKeyPath, "key", "", "PEM private key path (required)")
	_ = templateSignCmd.MarkFlagRequired("key")

	templateVerifySigCmd.Flags().StringVar(&publicKeyPath, "key", "", "PEM public key path (required)")
	_ = templateVerifySigCmd.MarkFlagRequired("key")

	templateVerifyCmd.Flags().StringVar(&templateSource, "source", "", "trusted source name the template claims")
	templateVerifyCmd.Flags().BoolVar(&verifyJSON, "json", false, "print the verification result as JSON")
}

func signTemplate(cmd *cobra.Command, args []string) error {
	c, err := ensureChecker()
	if err != nil {
		return err
	}

	signaturePath, err := c.SignTemplate(args[0], privateKeyPath)
	if err != nil {
		return err
	}
	fmt.Printf("Signature written: %s\n", signaturePath)
	return nil
}

func verifyTemplateSignature(cmd *cobra.Command, args []string) error {
	c, err := ensureChecker()
	if err != nil {
		return err
	}

	if !c.VerifySignature(args[0], publicKeyPath) {
		return fmt.Errorf("signature verification failed for %s", args[0])
	}
	fmt.Printf("Signature verified: %s\n", args[0])
	return nil
}

func verifyTemplate(cmd *cobra.Command, args []string) error {
	c, err := ensureChecker()
	if err != nil {
		return err
	}

	result := c.VerifyTemplateIntegrity(args[0], templateSource)

	if verifyJSON {
		if err := printJSON(result); err != nil {
			return err
		}
	} else {
		fmt.Printf("checksum:  %s\n", passFail(result.ChecksumValid))
		fmt.Printf("trusted:   %s\n", passFail(result.FromTrustedSource))
		fmt.Printf("signature: %s\n", passFail(result.SignatureValid))
		if result.Source != "" {
			fmt.Printf("source:    %s\n", result.Source)
		}
	}

	if !result.Valid {
		return fmt.Errorf("template %s failed integrity verification", args[0])
	}
	fmt.Printf("Template verified: %s\n", args[0])
	return nil
}

func passFail(ok bool) string {
	if ok {
		return "ok"
	}
	return "FAILED"
}
