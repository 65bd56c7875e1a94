package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/abelbrown/imageshelf/internal/gallery"
)

func newTagsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Manage the tag catalog used for auto-tagging",
	}
	cmd.AddCommand(newTagsListCmd(), newTagsAddCmd())
	return cmd
}

func newTagsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tags in catalog order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			browser, closeFn, err := openBrowser(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			tags, err := browser.ListTags(context.Background(), gallery.TagLimit)
			if err != nil {
				return err
			}
			p := newPrinter(cmd)
			if p.isJSON() {
				return p.json(tags)
			}
			rows := make([][]string, 0, len(tags))
			for _, t := range tags {
				rows = append(rows, []string{t.ID, t.Slug, t.Name})
			}
			p.table([]string{"ID", "SLUG", "NAME"}, rows)
			return nil
		},
	}
}

func newTagsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <name>...",
		Short: "Add tags to the local catalog",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := requireStore(cfg, "tags add")
			if err != nil {
				return err
			}
			defer st.Close()

			var added []gallery.Tag
			for _, name := range args {
				tag, err := st.CreateTag(context.Background(), name)
				if err != nil {
					return err
				}
				added = append(added, tag)
			}
			p := newPrinter(cmd)
			if p.isJSON() {
				return p.json(added)
			}
			rows := make([][]string, 0, len(added))
			for _, t := range added {
				rows = append(rows, []string{t.ID, t.Slug, t.Name})
			}
			p.table([]string{"ID", "SLUG", "NAME"}, rows)
			return nil
		},
	}
}
