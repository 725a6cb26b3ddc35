package cli

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"isi-import/internal/domain"
	"isi-import/internal/mapping"
	"isi-import/internal/service/deriver"
)

func newRequestCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Manage import requests",
	}
	cmd.AddCommand(newRequestCreateCmd(rt))
	cmd.AddCommand(newRequestListCmd(rt))
	cmd.AddCommand(newRequestShowCmd(rt))
	cmd.AddCommand(newRequestActivateCmd(rt))
	cmd.AddCommand(newRequestDeactivateCmd(rt))
	cmd.AddCommand(newRequestDeleteCmd(rt))
	cmd.AddCommand(newRequestMappingsCmd(rt))
	cmd.AddCommand(newRequestBindCmd(rt))
	cmd.AddCommand(newRequestUnbindCmd(rt))
	cmd.AddCommand(newRequestMapCmd(rt))
	return cmd
}

func requestRow(r *domain.ImportRequest) []string {
	return []string{
		r.ID, r.Label, r.FileRef, r.Sheet, strconv.Itoa(r.HeaderRow),
		strconv.FormatBool(r.Active), strconv.FormatBool(r.Enabled), r.Owner,
		strings.Join(r.TemplateIDs, ","),
	}
}

var requestColumns = []string{"id", "label", "file", "sheet", "header_row", "active", "enabled", "owner", "templates"}

func printRequest(cmd *cobra.Command, r *domain.ImportRequest) error {
	if getOutputFormat(cmd) == "json" {
		return PrintJSON(cmd.OutOrStdout(), r)
	}
	PrintDetail(cmd.OutOrStdout(), map[string]any{
		"id":         r.ID,
		"label":      r.Label,
		"file":       r.FileRef,
		"sheet":      r.Sheet,
		"header_row": r.HeaderRow,
		"active":     r.Active,
		"enabled":    r.Enabled,
		"owner":      r.Owner,
		"templates":  r.TemplateIDs,
		"group":      domain.GroupName(r),
	})
	return nil
}

func newRequestCreateCmd(rt *runtime) *cobra.Command {
	var (
		in domain.CreateImportRequest
		f  sheetFlags
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an inactive import request",
		Example: `  isi request create --label "Spring catalogue" --file items.xlsx --sheet Products \
    --template isi_node --template isi_media_image`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := rt.context(cmd)
			a, err := rt.openApp(ctx)
			if err != nil {
				return err
			}
			in.Sheet, in.HeaderRow = f.sheet, f.headerRow
			req, err := a.Services.Requests.Create(ctx, in)
			if err != nil {
				return err
			}
			return printRequest(cmd, req)
		},
	}
	cmd.Flags().StringVar(&in.Label, "label", "", "Human-readable label")
	cmd.Flags().StringVar(&in.FileRef, "file", "", "File reference (path or s3://, gs://, az:// URL)")
	cmd.Flags().StringSliceVar(&in.TemplateIDs, "template", nil, "Job template ID (repeatable)")
	f.register(cmd)
	_ = cmd.MarkFlagRequired("label")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}

func newRequestListCmd(rt *runtime) *cobra.Command {
	var (
		owner    string
		active   bool
		inactive bool
		size     int
		token    string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List import requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if active && inactive {
				return fmt.Errorf("--active and --inactive are mutually exclusive")
			}
			ctx := rt.context(cmd)
			a, err := rt.openApp(ctx)
			if err != nil {
				return err
			}
			filter := domain.ImportRequestFilter{Page: domain.PageRequest{Size: size, Token: token}}
			if owner != "" {
				filter.Owner = &owner
			}
			if active || inactive {
				filter.Active = &active
			}
			reqs, total, err := a.Services.Requests.List(ctx, filter)
			if err != nil {
				return err
			}
			next := domain.NextPageToken(filter.Page.Offset(), filter.Page.Limit(), total)
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), map[string]any{
					"requests":        reqs,
					"total":           total,
					"next_page_token": next,
				})
			}
			rows := make([][]string, 0, len(reqs))
			for i := range reqs {
				rows = append(rows, requestRow(&reqs[i]))
			}
			PrintTable(cmd.OutOrStdout(), requestColumns, rows)
			if next != "" {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "more results: --page-token %s\n", next)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Only requests owned by this operator")
	cmd.Flags().BoolVar(&active, "active", false, "Only active requests")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "Only inactive requests")
	cmd.Flags().IntVar(&size, "page-size", domain.DefaultPageSize, "Results per page")
	cmd.Flags().StringVar(&token, "page-token", "", "Token of the page to fetch")
	return cmd
}

func newRequestShowCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one import request",
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
			return printRequest(cmd, req)
		},
	}
}

func printReport(cmd *cobra.Command, report *deriver.DeriveReport) error {
	if getOutputFormat(cmd) == "json" {
		failures := make(map[string]string, len(report.Failures))
		for _, f := range report.Failures {
			failures[f.TemplateID] = f.Err.Error()
		}
		return PrintJSON(cmd.OutOrStdout(), map[string]any{
			"group":    report.Group,
			"skipped":  report.Skipped,
			"jobs":     report.Jobs,
			"failures": failures,
			"order":    report.Order,
		})
	}
	if report.Skipped {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: skipped (request inactive or disabled)\n", report.Group)
		return nil
	}
	rows := make([][]string, 0, len(report.Jobs)+len(report.Failures))
	for _, id := range report.Jobs {
		rows = append(rows, []string{id, "derived", ""})
	}
	for _, f := range report.Failures {
		rows = append(rows, []string{domain.ScopedID(report.Group, f.TemplateID), "failed", f.Err.Error()})
	}
	PrintTable(cmd.OutOrStdout(), []string{"job", "status", "error"}, rows)
	return nil
}

func newRequestActivateCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "activate ID",
		Short: "Activate a request and derive its jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := rt.context(cmd)
			a, err := rt.openApp(ctx)
			if err != nil {
				return err
			}
			report, err := a.Services.Requests.Activate(ctx, args[0])
			if report != nil {
				if perr := printReport(cmd, report); perr != nil {
					return perr
				}
			}
			return err
		},
	}
}

func newRequestDeactivateCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate ID",
		Short: "Deactivate a request and delete its derived jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := rt.context(cmd)
			a, err := rt.openApp(ctx)
			if err != nil {
				return err
			}
			return a.Services.Requests.Deactivate(ctx, args[0])
		},
	}
}

func newRequestDeleteCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a request together with its derived jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := rt.context(cmd)
			a, err := rt.openApp(ctx)
			if err != nil {
				return err
			}
			return a.Services.Requests.Delete(ctx, args[0])
		},
	}
}

func printPipelines(cmd *cobra.Command, editor *mapping.Editor) error {
	if getOutputFormat(cmd) == "json" {
		process, err := editor.Process()
		if err != nil {
			return err
		}
		return PrintJSON(cmd.OutOrStdout(), process)
	}
	pipelines := editor.Pipelines()
	rows := make([][]string, 0, len(pipelines))
	for _, p := range pipelines {
		rows = append(rows, []string{p.Destination, p.Source.Name(), p.Source.Category(), strconv.Itoa(len(p.Steps))})
	}
	PrintTable(cmd.OutOrStdout(), []string{"field", "source", "category", "steps"}, rows)
	return nil
}

func newRequestMappingsCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "mappings ID TEMPLATE",
		Short: "Show the field mappings of one template of a request",
		Args:  cobra.ExactArgs(2),
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
			editor, err := a.Services.Requests.Editor(ctx, req, args[1])
			if err != nil {
				return err
			}
			return printPipelines(cmd, editor)
		},
	}
}

// editAndSave applies edit to the request's editor and stores the result.
func editAndSave(cmd *cobra.Command, rt *runtime, id, templateID string, edit func(*mapping.Editor) error) error {
	ctx := rt.context(cmd)
	a, err := rt.openApp(ctx)
	if err != nil {
		return err
	}
	req, err := a.Services.Requests.Get(ctx, id)
	if err != nil {
		return err
	}
	editor, err := a.Services.Requests.Editor(ctx, req, templateID)
	if err != nil {
		return err
	}
	if err := edit(editor); err != nil {
		return err
	}
	process, err := editor.Process()
	if err != nil {
		return err
	}
	if _, err := a.Services.Requests.UpdateMappings(ctx, id, templateID, process); err != nil {
		return err
	}
	return printPipelines(cmd, editor)
}

func newRequestBindCmd(rt *runtime) *cobra.Command {
	var constant string
	cmd := &cobra.Command{
		Use:   "bind ID TEMPLATE FIELD [SOURCE]",
		Short: "Map a source to a destination field",
		Long: `Binds a column, the output of another field (@field) or, with --constant,
a fixed value to FIELD. Run "isi sources" to list the available sources.`,
		Example: `  isi request bind 0192... isi_node title Title
  isi request bind 0192... isi_node subtitle @title
  isi request bind 0192... isi_node langcode --constant en`,
		Args: cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			constantSet := cmd.Flags().Changed("constant")
			if constantSet == (len(args) == 4) {
				return fmt.Errorf("give either SOURCE or --constant")
			}
			id, templateID, field := args[0], args[1], args[2]
			return editAndSave(cmd, rt, id, templateID, func(editor *mapping.Editor) error {
				var src mapping.Source
				if constantSet {
					src = mapping.NewConstantSource(constant)
				} else {
					name := args[3]
					if p, ok := editor.Pipeline(strings.TrimPrefix(name, mapping.ReferencePrefix)); ok && strings.HasPrefix(name, mapping.ReferencePrefix) {
						src = p
					} else {
						col, err := mapping.NewColumnSource(name)
						if err != nil {
							return err
						}
						src = col
					}
				}
				_, err := editor.AddMapping(src, field)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&constant, "constant", "", "Bind a fixed value instead of a source")
	return cmd
}

func newRequestUnbindCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "unbind ID TEMPLATE FIELD...",
		Short: "Remove field mappings; fails if another field still reads them",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editAndSave(cmd, rt, args[0], args[1], func(editor *mapping.Editor) error {
				return editor.RemoveMappings(args[2:]...)
			})
		},
	}
}

func newRequestMapCmd(rt *runtime) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "map ID TEMPLATE",
		Short: "Replace the field mappings of a template from a YAML process file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file) //nolint:gosec // operator-provided file
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}
			var process []domain.FieldProcess
			dec := yaml.NewDecoder(bytes.NewReader(data))
			dec.KnownFields(true)
			if err := dec.Decode(&process); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}
			ctx := rt.context(cmd)
			a, err := rt.openApp(ctx)
			if err != nil {
				return err
			}
			req, err := a.Services.Requests.UpdateMappings(ctx, args[0], args[1], process)
			if err != nil {
				return err
			}
			editor, err := a.Services.Requests.Editor(ctx, req, args[1])
			if err != nil {
				return err
			}
			return printPipelines(cmd, editor)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML list of {field, weight, steps}")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newSourcesCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "sources REQUEST TEMPLATE",
		Short: "List the sources a new mapping can read",
		Long: `Lists the request file's columns, the outputs of the template's current
fields (@field) and the constant placeholder, in that order.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := rt.context(cmd)
			a, err := rt.openApp(ctx)
			if err != nil {
				return err
			}
			set, err := a.Services.Requests.Sources(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				type entry struct {
					Name     string `json:"name"`
					Category string `json:"category"`
				}
				out := make([]entry, 0, set.Len())
				for _, name := range set.Names() {
					src, _ := set.Get(name)
					out = append(out, entry{Name: name, Category: src.Category()})
				}
				return PrintJSON(cmd.OutOrStdout(), map[string]any{"sources": out, "rejected": set.Rejected})
			}
			rows := make([][]string, 0, set.Len())
			for _, name := range set.Names() {
				src, _ := set.Get(name)
				rows = append(rows, []string{name, src.Category()})
			}
			PrintTable(cmd.OutOrStdout(), []string{"source", "category"}, rows)
			for _, r := range set.Rejected {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "ignored header cell %q: column names cannot start with %q\n", r, mapping.ReferencePrefix)
			}
			return nil
		},
	}
}
