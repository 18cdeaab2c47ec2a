package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"southwinds.dev/aegis"
)

var checksumCmd = &cobra.Command{
	Use:   "checksum",
	Short: "Generate and verify template checksums",
	Long:  "Compute file digests, write checksum sidecar files, and verify templates against them.",
}

var checksumCalcCmd = &cobra.Command{
	Use:   "calc [file]",
	Short: "Print a file's digest",
	Args:  cobra.ExactArgs(1),
	RunE:  calcChecksum,
}

var checksumGenerateCmd = &cobra.Command{
	Use:   "generate [file]",
	Short: "Write a checksum sidecar file",
	Long:  "Compute the sidecar digests (MD5 and SHA-256) and write them with a timestamp to <file>.checksum.",
	Args:  cobra.ExactArgs(1),
	RunE:  generateChecksum,
}

var checksumVerifyCmd = &cobra.Command{
	Use:   "verify [file]",
	Short: "Verify a file against its sidecar",
	Long:  "Recompute every digest recorded in <file>.checksum and require all of them to match. Exits non-zero on mismatch or a missing sidecar.",
	Args:  cobra.ExactArgs(1),
	RunE:  verifyChecksum,
}

var checksumAlgorithm string

func init() {
	rootCmd.AddCommand(checksumCmd)
	checksumCmd.AddCommand(checksumCalcCmd)
	checksumCmd.AddCommand(checksumGenerateCmd)
	checksumCmd.AddCommand(checksumVerifyCmd)

	checksumCalcCmd.Flags().StringVar(&checksumAlgorithm, "algorithm", aegis.DefaultChecksumAlgorithm,
		fmt.Sprintf("digest algorithm (%s)", strings.Join(aegis.ChecksumAlgorithms(), ", ")))
}

func calcChecksum(cmd *cobra.Command, args []string) error {
	c, err := ensureChecker()
	if err != nil {
		return err
	}

	digest, err := c.CalculateChecksum(args[0], checksumAlgorithm)
	if err != nil {
		return err
	}
	fmt.Printf("%s=%s\n", strings.ToUpper(checksumAlgorithm), digest)
	return nil
}

func generateChecksum(cmd *cobra.Command, args []string) error {
	c, err := ensureChecker()
	if err != nil {
		return err
	}

	sidecar, err := c.GenerateChecksumFile(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Checksum file written: %s\n", sidecar)
	return nil
}

func verifyChecksum(cmd *cobra.Command, args []string) error {
	c, err := ensureChecker()
	if err != nil {
		return err
	}

	if !c.VerifyTemplateWithChecksumFile(args[0]) {
		return fmt.Errorf("checksum verification failed for %s", args[0])
	}
	fmt.Printf("Checksum verified: %s\n", args[0])
	return nil
}
