package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bft-labs/tillsync/internal/api"
	"github.com/bft-labs/tillsync/internal/domain"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// statusView is the printable form of the daemon's status reply.
type statusView struct {
	Length        int  `json:"length" yaml:"length"`
	Pending       int  `json:"pending" yaml:"pending"`
	Syncing       int  `json:"syncing" yaml:"syncing"`
	Failed        int  `json:"failed" yaml:"failed"`
	Online        bool `json:"online" yaml:"online"`
	ForcedOffline bool `json:"forced_offline" yaml:"forced_offline"`
	Draining      bool `json:"draining" yaml:"draining"`
}

func newStatusView(s api.StatusResponse) statusView {
	return statusView{
		Length:        s.Length,
		Pending:       s.Pending,
		Syncing:       s.Syncing,
		Failed:        s.Failed,
		Online:        s.Online,
		ForcedOffline: s.ForcedOffline,
		Draining:      s.Draining,
	}
}

// operationView is one queue entry without its payload.
type operationView struct {
	ID           string    `json:"id" yaml:"id"`
	Kind         string    `json:"kind" yaml:"kind"`
	Status       string    `json:"status" yaml:"status"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
	ErrorMessage string    `json:"error_message,omitempty" yaml:"error_message,omitempty"`
}

func newOperationView(r api.OperationResponse) operationView {
	return operationView{
		ID:           r.ID,
		Kind:         string(r.Kind),
		Status:       string(r.Status),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		ErrorMessage: r.ErrorMessage,
	}
}

func newClient(addr string) *api.Client {
	// long enough for POST /v1/queue/retry, which waits for a full drain
	return api.NewClient(addr, &http.Client{Timeout: 2 * time.Minute})
}

func addClientFlags(cmd *cobra.Command, addr *string) {
	cmd.Flags().StringVar(addr, "addr", defaultAddr(), "operator API address of the running daemon")
}

func newStatusCommand() *cobra.Command {
	var addr, output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue status of a running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := newClient(addr).Status(cmd.Context())
			if err != nil {
				return err
			}
			return renderStatus(cmd.OutOrStdout(), newStatusView(st), output)
		},
	}
	addClientFlags(cmd, &addr)
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format (table, json, yaml)")
	return cmd
}

func newListCommand() *cobra.Command {
	var addr, output, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued operations, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" && !domain.Status(status).Valid() {
				return fmt.Errorf("unknown status %q (pending, syncing, failed)", status)
			}
			ops, err := newClient(addr).List(cmd.Context(), domain.Status(status))
			if err != nil {
				return err
			}
			views := make([]operationView, 0, len(ops))
			for _, op := range ops {
				views = append(views, newOperationView(op))
			}
			return renderOperations(cmd.OutOrStdout(), views, output)
		},
	}
	addClientFlags(cmd, &addr)
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format (table, json, yaml)")
	cmd.Flags().StringVar(&status, "status", "", "only show entries with this status")
	return cmd
}

func newRetryCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "retry [id]",
		Short: "Re-run a drain, or reset one failed entry to pending",
		Long: "Without an id, runs a drain cycle and reports how many entries synced.\n" +
			"With an id, moves that failed entry back to pending and triggers a drain.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient(addr)
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				op, err := client.RetryOperation(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s reset to %s\n", op.ID, op.Status)
				return nil
			}
			res, err := client.Retry(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(out, drainSummary(res))
			return nil
		},
	}
	addClientFlags(cmd, &addr)
	return cmd
}

func newDiscardCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "discard <id>",
		Short: "Permanently remove a failed entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient(addr).Discard(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s discarded\n", args[0])
			return nil
		},
	}
	addClientFlags(cmd, &addr)
	return cmd
}

func drainSummary(res domain.DrainResult) string {
	switch {
	case !res.Ran():
		return fmt.Sprintf("drain skipped: %s", res.Skipped)
	case res.FailedID != "":
		return fmt.Sprintf("synced %d, stopped at failed entry %s", res.Synced, res.FailedID)
	case res.Synced == 0:
		return "nothing to sync"
	default:
		return fmt.Sprintf("synced %d", res.Synced)
	}
}

func renderStatus(w io.Writer, st statusView, format string) error {
	switch format {
	case formatJSON:
		return writeJSON(w, st)
	case formatYAML:
		return writeYAML(w, st)
	case formatTable:
		table := tablewriter.NewWriter(w)
		table.Header("FIELD", "VALUE")
		rows := [][]string{
			{"online", fmt.Sprint(st.Online)},
			{"forced offline", fmt.Sprint(st.ForcedOffline)},
			{"draining", fmt.Sprint(st.Draining)},
			{"length", fmt.Sprint(st.Length)},
			{"pending", fmt.Sprint(st.Pending)},
			{"syncing", fmt.Sprint(st.Syncing)},
			{"failed", fmt.Sprint(st.Failed)},
		}
		for _, row := range rows {
			if err := table.Append(row); err != nil {
				return err
			}
		}
		return table.Render()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func renderOperations(w io.Writer, ops []operationView, format string) error {
	switch format {
	case formatJSON:
		return writeJSON(w, ops)
	case formatYAML:
		return writeYAML(w, ops)
	case formatTable:
		if len(ops) == 0 {
			_, err := fmt.Fprintln(w, "queue is empty")
			return err
		}
		table := tablewriter.NewWriter(w)
		table.Header("ID", "KIND", "STATUS", "CREATED", "ERROR")
		for _, op := range ops {
			row := []string{
				op.ID,
				op.Kind,
				op.Status,
				op.CreatedAt.Local().Format(time.DateTime),
				op.ErrorMessage,
			}
			if err := table.Append(row); err != nil {
				return err
			}
		}
		return table.Render()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
