package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"isi-import/internal/domain"
	"isi-import/internal/service/deriver"
)

func newJobsCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect derived jobs",
	}
	cmd.AddCommand(newJobsListCmd(rt))
	return cmd
}

func newJobsListCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "list REQUEST",
		Short: "List the derived jobs of a request in execution order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := rt.context(cmd)
			a, err := rt.openApp(ctx)
			if err != nil {
				return err
			}
			req, err := a.Services.Requests.Get(ctx, args[0])
			if err != nil {
				return err
			}
			jobs, err := a.ListJobs(ctx, domain.GroupName(req))
			if err != nil {
				return err
			}
			levels, orderErr := deriver.ResolveExecutionOrder(jobs)
			if orderErr != nil {
				rt.logger.Warn("derived jobs have no execution order", "request", req.ID, "error", orderErr)
			}
			level := make(map[string]int, len(jobs))
			for i, ids := range levels {
				for _, id := range ids {
					level[id] = i
				}
			}
			sort.SliceStable(jobs, func(i, j int) bool {
				if level[jobs[i].ID] != level[jobs[j].ID] {
					return level[jobs[i].ID] < level[jobs[j].ID]
				}
				return jobs[i].ID < jobs[j].ID
			})

			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), map[string]any{"jobs": jobs, "order": levels})
			}
			rows := make([][]string, 0, len(jobs))
			for _, j := range jobs {
				stage := "-"
				if orderErr == nil {
					stage = strconv.Itoa(level[j.ID])
				}
				rows = append(rows, []string{
					stage, j.ID, j.Label, j.Source.Plugin,
					strings.Join(j.Source.Columns, ","),
					strings.Join(j.MigrationDependencies[deriver.RequiredDependencyKind], ","),
				})
			}
			PrintTable(cmd.OutOrStdout(), []string{"stage", "id", "label", "source", "columns", "requires"}, rows)
			return nil
		},
	}
}

func newResyncCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "resync",
		Short: "Re-derive the jobs of every active request",
		Long:  "Recompiles all active requests, e.g. after job templates were reloaded.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := rt.context(cmd)
			a, err := rt.openApp(ctx)
			if err != nil {
				return err
			}
			reports, err := a.Services.Requests.Resync(ctx)
			ids := make([]string, 0, len(reports))
			for id := range reports {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			if getOutputFormat(cmd) == "json" {
				out := make(map[string]any, len(reports))
				for _, id := range ids {
					r := reports[id]
					if r == nil {
						continue
					}
					out[id] = map[string]any{"jobs": r.Jobs, "failures": len(r.Failures)}
				}
				if perr := PrintJSON(cmd.OutOrStdout(), out); perr != nil {
					return perr
				}
				return err
			}
			rows := make([][]string, 0, len(ids))
			for _, id := range ids {
				r := reports[id]
				if r == nil {
					rows = append(rows, []string{id, "0", "-"})
					continue
				}
				rows = append(rows, []string{id, strconv.Itoa(len(r.Jobs)), strconv.Itoa(len(r.Failures))})
			}
			PrintTable(cmd.OutOrStdout(), []string{"request", "jobs", "failures"}, rows)
			if err != nil {
				return fmt.Errorf("resync: %w", err)
			}
			return nil
		},
	}
}
