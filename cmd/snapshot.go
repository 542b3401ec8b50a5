package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tiagojmoraes/projeto-duimp/internal/snapshot"
)

var (
	snapshotOut     string
	snapshotStored  bool
	snapshotRefresh bool
)

// snapshotCmd prints the JSON snapshot of a table.
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Print the JSON snapshot of a table",
	Long: `Serialize a table to the snapshot document
{"metadata":{"table_name":...},"data":[...]}.

By default the snapshot is recomputed from the current rows. With --stored the
document kept in the snapshot column is printed instead, after checking that
it parses. With --refresh the recomputed document is also written back to the
snapshot column.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		name := tableFlag(cmd)

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		table, err := store.OpenTable(ctx, name)
		if err != nil {
			return err
		}

		var doc []byte
		if snapshotStored {
			rows, err := table.SelectAll(ctx)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				return fmt.Errorf("table %s is empty", name)
			}
			doc = []byte(rows[0].Get(appConfig.SnapshotColumn).String())
			parsed, err := snapshot.Parse(doc)
			if err != nil {
				return err
			}
			log.Debug("stored snapshot", zap.String("table", parsed.Metadata.TableName), zap.Int("rows", len(parsed.Data)))
		} else {
			doc, err = snapshot.New(appConfig.SnapshotColumn).Snapshot(ctx, table)
			if err != nil {
				return err
			}
		}

		if snapshotRefresh && !snapshotStored {
			if _, err := table.SetSnapshot(ctx, appConfig.SnapshotColumn, doc); err != nil {
				return err
			}
		}

		if snapshotOut == "" || snapshotOut == "-" {
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(doc))
			return err
		}
		if err := os.WriteFile(snapshotOut, doc, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", snapshotOut, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Snapshot of %s written to %s\n", name, snapshotOut)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(snapshotCmd)

	snapshotCmd.Flags().String("table", "", "Table to serialize (default: the items table)")
	snapshotCmd.Flags().StringVarP(&snapshotOut, "out", "o", "", "Output file (default: stdout)")
	snapshotCmd.Flags().BoolVar(&snapshotStored, "stored", false, "Print the stored document instead of recomputing it")
	snapshotCmd.Flags().BoolVar(&snapshotRefresh, "refresh", false, "Write the recomputed document back to the table")
}
