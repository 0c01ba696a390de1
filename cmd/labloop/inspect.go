package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"labloop/internal/audit"
	"labloop/internal/runner"
	"labloop/internal/runstore"
)

func newRunsCmd(root *rootOptions) *cobra.Command {
	var (
		sessionID  string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "runs <experiment-dir>",
		Short: "List the runs of a session (latest by default)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := root.loadEnv(args[0], cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			store, err := runstore.Open(e.workspace.StateDBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			var sess *runstore.Session
			if sessionID != "" {
				sess, err = store.GetSession(sessionID)
			} else {
				sess, err = store.LatestSession()
			}
			if errors.Is(err, runstore.ErrNotFound) {
				return fmt.Errorf("no session recorded in %s", e.workspace.Root)
			}
			if err != nil {
				return err
			}
			runs, err := store.ListRuns(sess.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, map[string]any{
					"session": sess,
					"runs":    runs,
				})
			}
			return writeRunsHuman(out, sess, runs)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

func writeRunsHuman(out io.Writer, sess *runstore.Session, runs []runstore.RunRecord) error {
	fmt.Fprintf(out, "Session %s: %s\n", sess.ID, sess.Title)
	status := sess.Status
	if sess.StopReason != "" {
		status += " (" + sess.StopReason + ")"
	}
	fmt.Fprintf(out, "Status:  %s\n\n", status)

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs dispatched.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tITER\tSTATUS\tRC\tSNAPSHOT\tDURATION\tDIAGNOSTIC")
	for _, rec := range runs {
		fmt.Fprintf(w, "%d\t%d\t%s\t%d\t%s\t%s\t%s\n",
			rec.Run,
			rec.Iteration,
			rec.Status,
			rec.ReturnCode,
			rec.Snapshot,
			formatDuration(rec),
			summarizeDiagnostic(rec),
		)
	}
	return w.Flush()
}

func formatDuration(rec runstore.RunRecord) string {
	if rec.FinishedAt == nil {
		return "-"
	}
	return rec.FinishedAt.Sub(rec.StartedAt).Round(time.Millisecond).String()
}

func summarizeDiagnostic(rec runstore.RunRecord) string {
	if rec.Status == runner.StatusSucceeded {
		return ""
	}
	line := lastLine(rec.Diagnostic)
	return runner.Truncate(line, 60)
}

func lastLine(text string) string {
	end := len(text)
	for end > 0 && (text[end-1] == '\n' || text[end-1] == '\r') {
		end--
	}
	start := end
	for start > 0 && text[start-1] != '\n' {
		start--
	}
	return text[start:end]
}

func newDiffCmd(root *rootOptions) *cobra.Command {
	var from, to int
	cmd := &cobra.Command{
		Use:   "diff <experiment-dir>",
		Short: "Show the experiment.py changes between two run snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if from < 1 || to < 1 {
				return fmt.Errorf("--from and --to must be run numbers >= 1")
			}
			e, err := root.loadEnv(args[0], cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			diff, err := runner.DiffFiles(e.workspace.SnapshotPath(from), e.workspace.SnapshotPath(to))
			if err != nil {
				return err
			}
			if diff == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "run_%d.py and run_%d.py are identical\n", from, to)
				return nil
			}
			_, err = io.WriteString(cmd.OutOrStdout(), diff)
			return err
		},
	}
	cmd.Flags().IntVar(&from, "from", 0, "base run number")
	cmd.Flags().IntVar(&to, "to", 0, "target run number")
	return cmd
}

func newEventsCmd(root *rootOptions) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "events <experiment-dir>",
		Short: "Show the audit log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := root.loadEnv(args[0], cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			events, err := audit.NewLogger(e.workspace.AuditDBPath).Events(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, events)
			}
			for _, ev := range events {
				fmt.Fprintf(out, "%s  %-18s %s\n", ev.Time.Local().Format(time.DateTime), ev.Type, ev.Payload)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "number of most recent events (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
