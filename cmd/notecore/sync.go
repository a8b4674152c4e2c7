package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/notecore/internal/models"
)

func newSyncCmd(opts *rootOptions) *cobra.Command {
	syncCmd := &cobra.Command{Use: "sync", Short: "Sync operations"}

	// sync pull
	syncCmd.AddCommand(&cobra.Command{
		Use:   "pull",
		Short: "Pull from every adapter and merge by last-write-wins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.scheduler.SyncNow(commandContext(cmd))
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d (notes +%d ~%d, categories +%d ~%d), unchanged %d, conflicts %d\n",
				result.Applied(), result.NotesInserted, result.NotesUpdated,
				result.CategoriesInserted, result.CategoriesUpdated,
				result.Unchanged, len(result.Conflicts))
			return nil
		},
	})

	// sync push
	syncCmd.AddCommand(&cobra.Command{
		Use:   "push",
		Short: "Deliver due outbox entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			delivered, failed := a.scheduler.ProcessOutbox(commandContext(cmd))
			fmt.Fprintf(cmd.OutOrStdout(), "delivered %d, failed %d\n", delivered, failed)
			return nil
		},
	})

	// sync retry
	syncCmd.AddCommand(&cobra.Command{
		Use:   "retry",
		Short: "Reset failed outbox entries and deliver them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			reset, err := a.outbox.RetryAll(commandContext(cmd))
			if err != nil {
				return err
			}
			delivered, failed := a.scheduler.ProcessOutbox(commandContext(cmd))
			fmt.Fprintf(cmd.OutOrStdout(), "reset %d, delivered %d, failed %d\n", reset, delivered, failed)
			return nil
		},
	})

	// sync outbox
	outboxCmd := &cobra.Command{
		Use:   "outbox",
		Short: "List queued propagations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			status, _ := cmd.Flags().GetString("status")
			entries, err := a.outbox.List(commandContext(cmd), models.OutboxStatus(status))
			if err != nil {
				return err
			}
			if opts.json {
				if entries == nil {
					entries = []*models.OutboxEntry{}
				}
				return printJSON(cmd.OutOrStdout(), entries)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tADAPTER\tOP\tKIND\tRECORD\tSTATUS\tRETRIES\tNEXT RETRY\tERROR")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
					e.ID, e.Adapter, e.Operation, e.Kind, e.RecordID, e.Status,
					e.RetryCount, e.MaxRetries, e.NextRetryTime().Format(time.DateTime), e.LastError)
			}
			return tw.Flush()
		},
	}
	outboxCmd.Flags().String("status", "", "Filter by status: pending|failed")
	syncCmd.AddCommand(outboxCmd)

	// sync conflicts
	conflictsCmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List local records overwritten by newer remote copies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			logs, err := a.store.ListConflictLogs(commandContext(cmd), limit)
			if err != nil {
				return err
			}
			if opts.json {
				if logs == nil {
					logs = []*models.ConflictLog{}
				}
				return printJSON(cmd.OutOrStdout(), logs)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DETECTED\tKIND\tRECORD\tSOURCE\tLOCAL\tREMOTE")
			for _, c := range logs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
					c.DetectedAtTime().Format(time.DateTime), c.Kind, c.RecordID, c.Source,
					c.LocalTimestamp, c.RemoteTimestamp)
			}
			return tw.Flush()
		},
	}
	conflictsCmd.Flags().Int("limit", 50, "Maximum entries, 0 for all")
	syncCmd.AddCommand(conflictsCmd)

	// sync status
	syncCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show adapters and outbox counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.outbox.Stats(commandContext(cmd))
			if err != nil {
				return err
			}
			var names []string
			for _, ad := range a.manager.Adapters() {
				names = append(names, ad.Name())
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"adapters": names,
					"outbox":   stats,
				})
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "adapters: %d\n", len(names))
			for _, n := range names {
				fmt.Fprintf(w, "  - %s\n", n)
			}
			fmt.Fprintf(w, "outbox: %d pending, %d failed\n", stats.Pending, stats.Failed)
			return nil
		},
	})

	return syncCmd
}
