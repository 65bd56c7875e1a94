package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abelbrown/imageshelf/internal/gallery"
)

func newImagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "images",
		Short: "Browse and curate saved images",
	}
	cmd.AddCommand(
		newImagesListCmd(),
		newSetStatusCmd("feature", "Mark an image Featured", gallery.StatusFeatured),
		newSetStatusCmd("archive", "Mark an image Archived", gallery.StatusArchived),
		newSetStatusCmd("restore", "Return an image to Active", gallery.StatusActive),
	)
	return cmd
}

func newImagesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved images, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			q := gallery.ImageQuery{Limit: cfg.UI.PageSize}
			if s, _ := cmd.Flags().GetString("status"); s != "" {
				if q.Status, err = gallery.ParseStatus(s); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("limit") {
				q.Limit, _ = cmd.Flags().GetInt("limit")
			}

			browser, closeFn, err := openBrowser(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			images, err := browser.ListImages(context.Background(), q)
			if err != nil {
				return err
			}
			p := newPrinter(cmd)
			if p.isJSON() {
				return p.json(images)
			}
			rows := make([][]string, 0, len(images))
			for _, img := range images {
				seed := "-"
				if img.Seed != nil {
					seed = strconv.FormatInt(*img.Seed, 10)
				}
				rows = append(rows, []string{
					img.ID, string(img.Status), img.CreatedAt, seed,
					strconv.Itoa(len(img.TagIDs)), truncate(img.Title, 40),
				})
			}
			p.table([]string{"ID", "STATUS", "CREATED", "SEED", "TAGS", "TITLE"}, rows)
			return nil
		},
	}
	cmd.Flags().String("status", "", "only images with this status (active, featured, archived)")
	cmd.Flags().Int("limit", 0, "maximum images to list (default ui.page_size)")
	return cmd
}

func newSetStatusCmd(use, short string, status gallery.Status) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := requireStore(cfg, "images "+use)
			if err != nil {
				return err
			}
			defer st.Close()

			for _, id := range args {
				if err := st.SetStatus(context.Background(), id, status); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s → %s\n", id, strings.ToLower(string(status)))
			}
			return nil
		},
	}
}
