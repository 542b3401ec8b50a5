package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// statsCmd prints the summary of an items table.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the summary of an items table",
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
		st, err := table.Stats(ctx)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Table:                 %s\n", name)
		fmt.Fprintf(w, "Rows:                  %d\n", st.Rows)
		fmt.Fprintf(w, "Additions:             %d\n", st.Additions)
		fmt.Fprintf(w, "Max items/addition:    %d\n", st.MaxItemsPerAddition)
		fmt.Fprintf(w, "Total value (BRL):     %.2f\n", st.TotalValueBRL)
		fmt.Fprintf(w, "Customs value (BRL):   %.2f\n", st.TotalCustomsValueBRL)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().String("table", "", "Items table (default: the configured items table)")
}
