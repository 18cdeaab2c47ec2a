package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"southwinds.dev/aegis/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the audit log",
	Long:  "Query recorded audit events: secret operations, checksum generation, signing and verification outcomes.",
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "List audit events",
	RunE:  queryAudit,
}

var (
	auditSince    string
	auditAction   string
	auditFailures bool
	auditLimit    int
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditQueryCmd)

	auditQueryCmd.Flags().StringVar(&auditSince, "since", "", "only events after this RFC3339 timestamp or duration (e.g. 24h)")
	auditQueryCmd.Flags().StringVar(&auditAction, "action", "", "filter by action name")
	auditQueryCmd.Flags().BoolVar(&auditFailures, "failures", false, "only failed operations")
	auditQueryCmd.Flags().IntVar(&auditLimit, "limit", 50, "maximum events to return")
}

func queryAudit(cmd *cobra.Command, args []string) error {
	config := auditConfig()
	if config == nil {
		return fmt.Errorf("audit logging is not enabled")
	}

	logger, err := audit.NewLogger(config)
	if err != nil {
		return err
	}
	defer logger.Close()

	options := audit.QueryOptions{
		Action: auditAction,
		Limit:  auditLimit,
	}
	if auditFailures {
		failed := false
		options.Success = &failed
	}
	if auditSince != "" {
		since, err := parseSince(auditSince)
		if err != nil {
			return err
		}
		options.Since = &since
	}

	result, err := logger.Query(options)
	if err != nil {
		return err
	}

	if len(result.Events) == 0 {
		fmt.Println("No matching audit events")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tOK\tPATH\tKEY\tERROR")
	for _, event := range result.Events {
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\t%s\n",
			event.Timestamp.Format(time.RFC3339), event.Action, event.Success,
			event.Path, event.SecretKey, event.Error)
	}
	if err = w.Flush(); err != nil {
		return err
	}

	if result.HasMore {
		fmt.Printf("(%d of %d events shown; raise --limit for more)\n", result.Filtered, result.TotalCount)
	}
	return nil
}

// parseSince accepts either an RFC3339 timestamp or a relative
// duration like "24h".
func parseSince(value string) (time.Time, error) {
	if d, err := time.ParseDuration(value); err == nil {
		return time.Now().Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since value %q: want RFC3339 or a duration", value)
	}
	return t, nil
}
