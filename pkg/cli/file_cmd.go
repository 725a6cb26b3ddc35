package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// sheetFlags are shared by the commands that read one table of a file.
type sheetFlags struct {
	sheet     string
	headerRow int
}

func (f *sheetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.sheet, "sheet", "", "Worksheet name (workbooks only)")
	cmd.Flags().IntVar(&f.headerRow, "header-row", 0, "0-based index of the header row")
}

func newSheetsCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "sheets FILE",
		Short: "List the worksheets of a workbook",
		Long:  "Lists worksheet names in workbook order. Delimited files have no sheets.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := rt.context(cmd)
			cat, err := rt.catalog(ctx)
			if err != nil {
				return err
			}
			sheets, err := cat.Sheets(ctx, args[0])
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				if sheets == nil {
					sheets = []string{}
				}
				return PrintJSON(cmd.OutOrStdout(), sheets)
			}
			rows := make([][]string, 0, len(sheets))
			for i, s := range sheets {
				rows = append(rows, []string{strconv.Itoa(i), s})
			}
			PrintTable(cmd.OutOrStdout(), []string{"index", "sheet"}, rows)
			return nil
		},
	}
}

func newHeaderCmd(rt *runtime) *cobra.Command {
	var f sheetFlags
	cmd := &cobra.Command{
		Use:   "header FILE",
		Short: "Print the column names of a file",
		Example: `  isi header items.csv
  isi header catalogue.xlsx --sheet Products --header-row 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := rt.context(cmd)
			cat, err := rt.catalog(ctx)
			if err != nil {
				return err
			}
			cols, err := cat.Columns(ctx, args[0], f.sheet, f.headerRow)
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), cols)
			}
			rows := make([][]string, 0, len(cols))
			for i, c := range cols {
				rows = append(rows, []string{strconv.Itoa(i), c})
			}
			PrintTable(cmd.OutOrStdout(), []string{"position", "column"}, rows)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newPreviewCmd(rt *runtime) *cobra.Command {
	var (
		f     sheetFlags
		limit int
	)
	cmd := &cobra.Command{
		Use:   "preview FILE",
		Short: "Show the first data rows of a file keyed by column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := rt.context(cmd)
			if limit <= 0 {
				limit = rt.cfg.PreviewRows
			}
			cat, err := rt.catalog(ctx)
			if err != nil {
				return err
			}
			cols, err := cat.Columns(ctx, args[0], f.sheet, f.headerRow)
			if err != nil {
				return err
			}
			records, err := cat.Preview(ctx, args[0], f.sheet, f.headerRow, limit)
			if err != nil {
				return fmt.Errorf("preview %s: %w", args[0], err)
			}
			if getOutputFormat(cmd) == "json" {
				out := make([]map[string]string, 0, len(records))
				for _, r := range records {
					out = append(out, r)
				}
				return PrintJSON(cmd.OutOrStdout(), out)
			}
			rows := make([][]string, 0, len(records))
			for _, r := range records {
				row := make([]string, len(cols))
				for i, c := range cols {
					row[i] = r[c]
				}
				rows = append(rows, row)
			}
			PrintTable(cmd.OutOrStdout(), cols, rows)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows to show (default PREVIEW_ROWS)")
	return cmd
}
