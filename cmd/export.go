package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tiagojmoraes/projeto-duimp/internal/export"
	"github.com/tiagojmoraes/projeto-duimp/pkg/utils"
)

var (
	exportFormat string
	exportOut    string
)

// exportCmd dumps a table to CSV or XLSX.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a table to CSV or XLSX",
	Long: `Dump every row of a table to a CSV file or an XLSX workbook. The snapshot
column is left out. Without --out the file is written to the output directory,
named after the table.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		name := tableFlag(cmd)

		formatName := exportFormat
		if !cmd.Flags().Changed("format") && exportOut != "" {
			formatName = filepath.Ext(exportOut)
		}
		format, err := export.ParseFormat(formatName)
		if err != nil {
			return err
		}

		out := exportOut
		if out == "" {
			out = filepath.Join(appConfig.OutputDir,
				utils.GenerateOutputFileName("{table}_{timestamp}", map[string]string{"table": name}, "."+string(format)))
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		table, err := store.OpenTable(ctx, name)
		if err != nil {
			return err
		}

		n, err := export.ToFile(ctx, table, format, out, appConfig.SnapshotColumn)
		if err != nil {
			return err
		}

		log.Info("table exported",
			zap.String("table", name),
			zap.String("format", string(format)),
			zap.String("file", out),
			zap.Int("rows", n),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d row(s) of %s to %s\n", n, name, out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("table", "", "Table to export (default: the items table)")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "Export format: csv or xlsx")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file")
}
