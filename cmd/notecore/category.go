package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/notecore/internal/models"
)

func newCategoryCmd(opts *rootOptions) *cobra.Command {
	categoryCmd := &cobra.Command{Use: "category", Aliases: []string{"cat"}, Short: "Category operations"}

	// category list
	categoryCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			cats, err := a.service.ListCategories(commandContext(cmd))
			if err != nil {
				return err
			}
			if opts.json {
				if cats == nil {
					cats = []*models.Category{}
				}
				return printJSON(cmd.OutOrStdout(), cats)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCOLOR")
			for _, c := range cats {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ID, c.Name, c.Color)
			}
			return tw.Flush()
		},
	})

	// category add
	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			color, _ := cmd.Flags().GetString("color")
			return saveCategory(cmd, opts, &models.Category{Name: args[0], Color: color})
		},
	}
	addCmd.Flags().String("color", "#1b2030", "Display color")
	categoryCmd.AddCommand(addCmd)

	// category edit
	editCmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Rename or recolor a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := commandContext(cmd)
			cats, err := a.service.ListCategories(ctx)
			if err != nil {
				return err
			}
			var cat *models.Category
			for _, c := range cats {
				if c.ID == args[0] {
					cat = c
				}
			}
			if cat == nil {
				return fmt.Errorf("category %s not found", args[0])
			}
			if cmd.Flags().Changed("name") {
				cat.Name, _ = cmd.Flags().GetString("name")
			}
			if cmd.Flags().Changed("color") {
				cat.Color, _ = cmd.Flags().GetString("color")
			}
			saved, err := a.service.SaveCategory(ctx, cat)
			if err != nil {
				return err
			}
			return printCategory(cmd, opts, saved)
		},
	}
	editCmd.Flags().String("name", "", "New name")
	editCmd.Flags().String("color", "", "New color")
	categoryCmd.AddCommand(editCmd)

	// category rm
	categoryCmd.AddCommand(&cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a category; its notes show as Uncategorized",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.service.DeleteCategory(commandContext(cmd), args[0])
		},
	})

	return categoryCmd
}

func saveCategory(cmd *cobra.Command, opts *rootOptions, c *models.Category) error {
	a, err := opts.openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	saved, err := a.service.SaveCategory(commandContext(cmd), c)
	if err != nil {
		return err
	}
	return printCategory(cmd, opts, saved)
}

func printCategory(cmd *cobra.Command, opts *rootOptions, c *models.Category) error {
	if opts.json {
		return printJSON(cmd.OutOrStdout(), c)
	}
	fmt.Fprintln(cmd.OutOrStdout(), c.ID)
	return nil
}
