package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

func newTemplateCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage job templates",
	}
	cmd.AddCommand(newTemplateLoadCmd(rt))
	cmd.AddCommand(newTemplateListCmd(rt))
	return cmd
}

func newTemplateLoadCmd(rt *runtime) *cobra.Command {
	var (
		dir   string
		prune bool
	)
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load job templates from a directory of YAML files",
		Long: `Upserts every JobTemplate document found below the directory. Active
requests keep their derived jobs until "isi resync" recompiles them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := rt.context(cmd)
			a, err := rt.openApp(ctx)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = rt.cfg.TemplateDir
			}
			res, err := a.Services.Templates.Sync(ctx, dir, prune)
			if res == nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				if perr := PrintJSON(cmd.OutOrStdout(), map[string]any{
					"upserted": res.Upserted,
					"pruned":   res.Pruned,
				}); perr != nil {
					return perr
				}
				return err
			}
			rows := make([][]string, 0, len(res.Upserted)+len(res.Pruned))
			for _, id := range res.Upserted {
				rows = append(rows, []string{id, "upserted"})
			}
			for _, id := range res.Pruned {
				rows = append(rows, []string{id, "pruned"})
			}
			PrintTable(cmd.OutOrStdout(), []string{"template", "action"}, rows)
			return err
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Template directory (default TEMPLATE_DIR)")
	cmd.Flags().BoolVar(&prune, "prune", false, "Delete templates that no longer exist on disk")
	return cmd
}

func newTemplateListCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List job templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := rt.context(cmd)
			a, err := rt.openApp(ctx)
			if err != nil {
				return err
			}
			tpls, err := a.TemplateRepo.List(ctx)
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), tpls)
			}
			rows := make([][]string, 0, len(tpls))
			for _, t := range tpls {
				rows = append(rows, []string{t.ID, t.Group, t.Label, t.DestinationPlugin(), strconv.Itoa(len(t.Process))})
			}
			PrintTable(cmd.OutOrStdout(), []string{"id", "group", "label", "destination", "fields"}, rows)
			return nil
		},
	}
}
