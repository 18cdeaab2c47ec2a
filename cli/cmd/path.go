package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"southwinds.dev/aegis"
	"southwinds.dev/aegis/audit"
)

var pathCmd = &cobra.Command{
	Use:   "path",
	Short: "Validate and sanitize file paths",
	Long:  "Check untrusted file paths against a policy, or coerce them into a safe location under a base directory.",
}

var pathValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate a path against the policy",
	Long:  "Validate a candidate path: traversal, absolute-path, base-directory and extension rules. Exits non-zero when the path is rejected.",
	Args:  cobra.ExactArgs(1),
	RunE:  validatePath,
}

var pathSanitizeCmd = &cobra.Command{
	Use:   "sanitize [path]",
	Short: "Coerce a path into the base directory",
	Long:  "Strip traversal segments from a candidate path and resolve it against the base directory. Always prints a path contained in the base directory.",
	Args:  cobra.ExactArgs(1),
	RunE:  sanitizePath,
}

var (
	policyExtensions   []string
	policyBaseDirs     []string
	policyAllowTravsl  bool
	policyDenyAbsolute bool
	policyNoExtension  bool
	sanitizeBaseDir    string
	pathValidationJSON bool
)

func init() {
	rootCmd.AddCommand(pathCmd)
	pathCmd.AddCommand(pathValidateCmd)
	pathCmd.AddCommand(pathSanitizeCmd)

	pathValidateCmd.Flags().StringSliceVar(&policyExtensions, "ext", nil, "allowed extensions (default policy list when omitted)")
	pathValidateCmd.Flags().StringSliceVar(&policyBaseDirs, "base-dir", nil, "allowed base directories")
	pathValidateCmd.Flags().BoolVar(&policyAllowTravsl, "allow-traversal", false, "permit traversal segments")
	pathValidateCmd.Flags().BoolVar(&policyDenyAbsolute, "deny-absolute", false, "reject absolute paths")
	pathValidateCmd.Flags().BoolVar(&policyNoExtension, "no-extension-check", false, "skip the extension allow-list")
	pathValidateCmd.Flags().BoolVar(&pathValidationJSON, "json", false, "print the validation result as JSON")

	pathSanitizeCmd.Flags().StringVar(&sanitizeBaseDir, "base", "", "base directory the result must stay within (required)")
	_ = pathSanitizeCmd.MarkFlagRequired("base")
}

func validatePath(cmd *cobra.Command, args []string) error {
	policy := aegis.DefaultPathPolicy()
	if policyExtensions != nil {
		policy.AllowedExtensions = policyExtensions
	}
	policy.AllowedBaseDirs = policyBaseDirs
	policy.AllowTraversal = policyAllowTravsl
	policy.AllowAbsolutePaths = !policyDenyAbsolute
	policy.EnforceExtension = !policyNoExtension

	result := aegis.ValidatePath(args[0], &policy)
	logPathValidation(args[0], result)

	if pathValidationJSON {
		if err := printJSON(result); err != nil {
			return err
		}
	} else {
		fmt.Println(result.Message)
		if len(result.Errors) > 1 {
			for _, e := range result.Errors[1:] {
				fmt.Printf("  also: %s\n", e)
			}
		}
	}

	if !result.Valid {
		return fmt.Errorf("path rejected")
	}
	return nil
}

// logPathValidation records the validation verdict when audit logging
// is enabled. Logging problems never fail the command.
func logPathValidation(candidate string, result aegis.ValidationResult) {
	config := auditConfig()
	if config == nil {
		return
	}

	logger, err := audit.NewLogger(config)
	if err != nil {
		return
	}
	defer logger.Close()

	metadata := map[string]interface{}{"path": candidate}
	if !result.Valid {
		metadata["error"] = result.Message
	}
	_ = logger.Log(audit.ActionPathValidate, result.Valid, metadata)
}

func sanitizePath(cmd *cobra.Command, args []string) error {
	fmt.Println(aegis.SanitizePath(args[0], sanitizeBaseDir))
	return nil
}
