package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/abelbrown/imageshelf/internal/gallery"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Image counts by status and catalog size",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := requireStore(cfg, "stats")
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := context.Background()
			counts, err := st.CountByStatus(ctx)
			if err != nil {
				return err
			}
			tags, err := st.ListTags(ctx, 0)
			if err != nil {
				return err
			}

			p := newPrinter(cmd)
			if p.isJSON() {
				return p.json(map[string]any{"images": counts, "tags": len(tags)})
			}
			total := 0
			var rows [][]string
			for _, s := range []gallery.Status{gallery.StatusActive, gallery.StatusFeatured, gallery.StatusArchived} {
				total += counts[s]
				rows = append(rows, []string{string(s), strconv.Itoa(counts[s])})
			}
			rows = append(rows, []string{"Total", strconv.Itoa(total)}, []string{"Tags", strconv.Itoa(len(tags))})
			p.table([]string{"STATUS", "COUNT"}, rows)
			return nil
		},
	}
}
