package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/notecore/internal/models"
)

func newNoteCmd(opts *rootOptions) *cobra.Command {
	noteCmd := &cobra.Command{Use: "note", Short: "Note operations"}

	// note list
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List notes, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var categoryID *string
			if cmd.Flags().Changed("category") {
				c, _ := cmd.Flags().GetString("category")
				categoryID = &c
			}
			notes, err := a.service.ListNotes(commandContext(cmd), categoryID)
			if err != nil {
				return err
			}
			if opts.json {
				if notes == nil {
					notes = []*models.Note{}
				}
				return printJSON(cmd.OutOrStdout(), notes)
			}

			cats, err := a.service.ListCategories(commandContext(cmd))
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tCATEGORY\tFORMAT\tUPDATED")
			for _, n := range notes {
				cat := models.ResolveCategory(n.PrimaryCategoryID, cats)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", n.ID, n.Title, cat.Name, n.Format,
					n.UpdatedAtTime().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
	listCmd.Flags().String("category", "", "Only notes with this primary category id")
	noteCmd.AddCommand(listCmd)

	// note show
	noteCmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Print a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.service.GetNote(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), n)
			}
			cat, err := a.service.DisplayCategory(commandContext(cmd), n)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "# %s\n", n.Title)
			fmt.Fprintf(w, "id: %s\ncategory: %s\nformat: %s\nupdated: %s\n\n", n.ID, cat.Name, n.Format,
				n.UpdatedAtTime().Format(time.DateTime))
			fmt.Fprintln(w, n.Content)
			return nil
		},
	})

	// note add
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create a note",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			note := &models.Note{}
			if err := applyNoteFlags(cmd, note); err != nil {
				return err
			}
			return saveNote(cmd, opts, note)
		},
	}
	addNoteFlags(addCmd)
	noteCmd.AddCommand(addCmd)

	// note edit
	editCmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a note; unset flags keep their value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			note, err := a.service.GetNote(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			if err := applyNoteFlags(cmd, note); err != nil {
				return err
			}
			saved, err := a.service.SaveNote(commandContext(cmd), note)
			if err != nil {
				return err
			}
			return printSaved(cmd, opts, saved)
		},
	}
	addNoteFlags(editCmd)
	noteCmd.AddCommand(editCmd)

	// note rm
	noteCmd.AddCommand(&cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a note",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.service.DeleteNote(commandContext(cmd), args[0])
		},
	})

	return noteCmd
}

func addNoteFlags(cmd *cobra.Command) {
	cmd.Flags().String("title", "", "Title")
	cmd.Flags().String("content", "", "Content")
	cmd.Flags().String("file", "", "Read content from a file, - for stdin")
	cmd.Flags().String("format", "", "Content format: richtext|code")
	cmd.Flags().String("category", "", "Primary category id")
	cmd.Flags().StringSlice("categories", nil, "Category ids")
}

// applyNoteFlags copies the flags that were set onto note.
func applyNoteFlags(cmd *cobra.Command, note *models.Note) error {
	f := cmd.Flags()
	if f.Changed("title") {
		note.Title, _ = f.GetString("title")
	}
	if f.Changed("content") {
		note.Content, _ = f.GetString("content")
	}
	if f.Changed("file") {
		path, _ := f.GetString("file")
		var data []byte
		var err error
		if path == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return fmt.Errorf("read content: %w", err)
		}
		note.Content = string(data)
	}
	if f.Changed("format") {
		format, _ := f.GetString("format")
		note.Format = models.Format(format)
	}
	if f.Changed("category") {
		note.PrimaryCategoryID, _ = f.GetString("category")
	}
	if f.Changed("categories") {
		ids, _ := f.GetStringSlice("categories")
		note.Categories = models.IDList(ids)
	}
	return nil
}

func saveNote(cmd *cobra.Command, opts *rootOptions, note *models.Note) error {
	a, err := opts.openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	saved, err := a.service.SaveNote(commandContext(cmd), note)
	if err != nil {
		return err
	}
	return printSaved(cmd, opts, saved)
}

func printSaved(cmd *cobra.Command, opts *rootOptions, n *models.Note) error {
	if opts.json {
		return printJSON(cmd.OutOrStdout(), n)
	}
	fmt.Fprintln(cmd.OutOrStdout(), n.ID)
	return nil
}
