// =============================================================================
// DUIMP Flattener - Main Entry Point
// =============================================================================
//
// USAGE:
//   duimp process       - Load declaration documents into the database
//   duimp snapshot      - Print the JSON snapshot of a table
//   duimp export        - Export a table to CSV or XLSX
//   duimp stats         - Show the summary of an items table
//   duimp version       - Display the application version
//
// ARCHITECTURE:
//   - cmd/       : CLI command definitions (Cobra)
//   - internal/  : Flattening, storage, aggregation and snapshot logic
//   - pkg/       : File management utilities
//
// =============================================================================

package main

import (
	"github.com/tiagojmoraes/projeto-duimp/cmd"
)

func main() {
	cmd.Execute()
}
