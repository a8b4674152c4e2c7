package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/notecore/internal/config"
	backupsched "github.com/kimhsiao/notecore/internal/export/scheduler"
)

func newBackupCmd(opts *rootOptions) *cobra.Command {
	backupCmd := &cobra.Command{Use: "backup", Short: "Backup archives of the local store"}
	backupCmd.PersistentFlags().String("password", "", "Archive password (default "+config.EnvBackupPassword+")")

	// backup create
	backupCmd.AddCommand(&cobra.Command{
		Use:   "create [path]",
		Short: "Write a backup archive; the default path is in the backup directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var path string
			if len(args) == 1 {
				path = args[0]
			}
			result, err := a.backups.ExportFile(commandContext(cmd), a.cfg.BackupDir(), path, backupPassword(cmd, a))
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d notes, %d categories, %d bytes)\n", result.Path,
				result.Manifest.NoteCount, result.Manifest.CategoryCount, result.SizeBytes)
			return nil
		},
	})

	// backup restore
	backupCmd.AddCommand(&cobra.Command{
		Use:   "restore <path>",
		Short: "Merge a backup archive into the store; newer local records win",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.backups.ImportFile(commandContext(cmd), args[0], backupPassword(cmd, a))
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %d (notes +%d ~%d, categories +%d ~%d), unchanged %d\n",
				result.Applied(), result.NotesInserted, result.NotesUpdated,
				result.CategoriesInserted, result.CategoriesUpdated, result.Unchanged)
			return nil
		},
	})

	// backup list
	backupCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List archives in the backup directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			archives, err := backupsched.ListArchives(cfg.BackupDir())
			if err != nil {
				return err
			}
			if opts.json {
				if archives == nil {
					archives = []*backupsched.Archive{}
				}
				return printJSON(cmd.OutOrStdout(), archives)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PATH\tSIZE\tCREATED")
			for _, ar := range archives {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", ar.Path, ar.SizeBytes, ar.CreatedAt.Format(time.DateTime))
			}
			return tw.Flush()
		},
	})

	return backupCmd
}

// backupPassword prefers the flag over the configured password.
func backupPassword(cmd *cobra.Command, a *app) string {
	if cmd.Flags().Changed("password") {
		p, _ := cmd.Flags().GetString("password")
		return p
	}
	return a.cfg.Backup.Password
}
