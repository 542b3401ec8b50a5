// =============================================================================
// DUIMP Flattener - Process Command
// =============================================================================
//
// This file defines the 'process' command, which loads declaration documents
// into the database. Each file is one batch.
//
// COMMAND USAGE:
//   duimp process [files...] [flags]
//
// FLAGS:
//   --kind        : items (default) or header
//   --quiet       : Hide the progress bar
//   --archive     : Move inputs to the archive directory after success
//   --data-lib    : Release date stored with a header (header only)
//   --peso-bruto  : Gross weight stored with a header (header only)
//
// PROCESSING PIPELINE:
//   1. Resolve input files (arguments, or *.json in the input directory)
//   2. For each file, sequentially:
//      a. Decode the document
//      b. Run the batch pipeline
//      c. Write the snapshot file to the output directory
//      d. Archive the input file
//   3. Write the error log and the run summary
//
// =============================================================================

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tiagojmoraes/projeto-duimp/internal/converter"
	"github.com/tiagojmoraes/projeto-duimp/internal/declaration"
	"github.com/tiagojmoraes/projeto-duimp/internal/types"
	"github.com/tiagojmoraes/projeto-duimp/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

const (
	kindItems  = "items"
	kindHeader = "header"
)

var (
	inputKind   string
	quiet       bool
	archive     bool
	releaseDate string
	grossWeight float64
)

// =============================================================================
// PROCESS COMMAND DEFINITION
// =============================================================================

var processCmd = &cobra.Command{
	Use:   "process [files...]",
	Short: "Load declaration documents into the database",
	Long: `The process command loads each input file as one batch.

Item files hold a JSON array of declaration items and go to the items table.
Header files hold the declaration header object and go to the header table
(use --kind header).

Files are processed one after the other. A file that cannot be decoded is
reported and skipped. Rows that fail to insert are written to the error log
while the rest of the batch is kept.

On success:
  - The table snapshot is written to the output directory
  - The input is moved to the archive directory (with --archive)
  - A summary is written to the output directory`,

	RunE: func(cmd *cobra.Command, args []string) error {
		if inputKind != kindItems && inputKind != kindHeader {
			return fmt.Errorf("invalid --kind %q: use %s or %s", inputKind, kindItems, kindHeader)
		}
		manual := types.Record{}
		if cmd.Flags().Changed("data-lib") {
			manual["dataLibDuimp"] = types.Text(releaseDate)
		}
		if cmd.Flags().Changed("peso-bruto") {
			manual["pesoBruto"] = types.Real(grossWeight)
		}
		if cmd.Flags().Changed("archive") {
			appConfig.ArchiveProcessed = archive
		}
		return runProcess(cmd.Context(), args, manual)
	},
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringVar(&inputKind, "kind", kindItems, "Input kind: items or header")
	processCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide the progress bar")
	processCmd.Flags().BoolVar(&archive, "archive", false, "Move processed inputs to the archive directory")
	processCmd.Flags().StringVar(&releaseDate, "data-lib", "", "Release date stored with the header")
	processCmd.Flags().Float64Var(&grossWeight, "peso-bruto", 0, "Gross weight stored with the header")
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

func runProcess(ctx context.Context, args []string, manual types.Record) error {
	summary := utils.RunSummary{StartTime: time.Now()}

	fm := utils.NewFileManager(appConfig.InputDir, appConfig.OutputDir, appConfig.InputArchiveDir)
	fm.ArchiveOnSuccess = appConfig.ArchiveProcessed
	if err := fm.EnsureDirectories(); err != nil {
		return err
	}

	// =========================================================================
	// STEP 1: RESOLVE INPUT FILES
	// =========================================================================

	files := args
	if len(files) == 0 {
		var err error
		files, err = fm.DiscoverInputFiles("*.json")
		if err != nil {
			return fmt.Errorf("failed to discover input files: %w", err)
		}
	}
	if len(files) == 0 {
		fmt.Println("No input files found.")
		return nil
	}
	summary.TotalFiles = len(files)

	pipeline, store, err := openPipeline()
	if err != nil {
		return err
	}
	defer store.Close()

	// =========================================================================
	// STEP 2: PROCESS FILES
	// =========================================================================

	var errorEntries []utils.ErrorLogEntry
	for _, file := range files {
		name := filepath.Base(file)

		report, err := processFile(ctx, pipeline, file, manual)
		if report != nil {
			summary.TotalItems += report.ItemsRead
			summary.TotalInserted += report.Inserted
			summary.TotalRowErrors += report.Failed()
			errorEntries = append(errorEntries, rowErrorEntries(name, report)...)
		}

		if err != nil {
			summary.FailedFiles++
			summary.FailedFilesList = append(summary.FailedFilesList, utils.FailedFileInfo{
				InputFile:    file,
				ErrorMessage: err.Error(),
			})
			errorEntries = append(errorEntries, utils.ErrorLogEntry{
				Timestamp:    time.Now(),
				FileName:     name,
				ErrorType:    "ERR_BATCH",
				ErrorMessage: err.Error(),
			})
			log.Error("batch failed", zap.String("file", file), zap.Error(err))
			fmt.Printf("  ✗ %s: %v\n", name, err)
			continue
		}

		info := batchInfo(file, report)

		if len(report.Snapshot) > 0 {
			snapshotName := utils.GenerateOutputFileName(appConfig.OutputNameFormat, map[string]string{
				"table": report.Table,
				"uuid":  report.BatchID.String(),
			}, ".json")
			if info.SnapshotFile, err = fm.WriteOutputFile(snapshotName, report.Snapshot); err != nil {
				log.Warn("failed to write snapshot file", zap.String("file", file), zap.Error(err))
			}
		}
		if info.ArchivePath, err = fm.ArchiveInputFile(file); err != nil {
			log.Warn("failed to archive input", zap.String("file", file), zap.Error(err))
		}

		summary.SuccessfulFiles++
		summary.Batches = append(summary.Batches, info)
		fmt.Printf("  ✓ %s -> %s (%d/%d rows)\n", name, report.Table, report.Inserted, report.ItemsRead)
	}

	// =========================================================================
	// STEP 3: LOGS AND SUMMARY
	// =========================================================================

	summary.EndTime = time.Now()
	if path, err := utils.WriteErrorLog(errorEntries, appConfig.OutputDir); err != nil {
		log.Warn("failed to write error log", zap.Error(err))
	} else if path != "" {
		fmt.Printf("Errors have been logged to %s\n", path)
	}
	if _, err := utils.WriteSummaryLog(summary, appConfig.OutputDir); err != nil {
		log.Warn("failed to write summary", zap.Error(err))
	}

	fmt.Println("\n=== Processing Complete ===")
	fmt.Printf("Total files:     %d\n", summary.TotalFiles)
	fmt.Printf("Successful:      %d\n", summary.SuccessfulFiles)
	fmt.Printf("Failed:          %d\n", summary.FailedFiles)
	fmt.Printf("Rows inserted:   %d\n", summary.TotalInserted)
	fmt.Printf("Row errors:      %d\n", summary.TotalRowErrors)
	fmt.Printf("Time elapsed:    %s\n", summary.EndTime.Sub(summary.StartTime))

	if summary.FailedFiles > 0 {
		return fmt.Errorf("%d of %d file(s) failed", summary.FailedFiles, summary.TotalFiles)
	}
	return nil
}

// processFile decodes one file and runs it through the pipeline.
func processFile(ctx context.Context, pipeline *converter.Pipeline, file string, manual types.Record) (*converter.BatchReport, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	if inputKind == kindHeader {
		header, err := declaration.DecodeHeader(f)
		if err != nil {
			return nil, err
		}
		return pipeline.RunHeader(ctx, header, manual)
	}

	items, err := declaration.DecodeItems(f)
	if err != nil {
		return nil, err
	}

	pipeline.OnProgress(nil)
	if !quiet && len(items) > 0 {
		bar := progressbar.NewOptions(len(items),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription(filepath.Base(file)),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionClearOnFinish(),
		)
		pipeline.OnProgress(func(done, total int) { _ = bar.Set(done) })
		defer func() { _ = bar.Finish() }()
	}

	report, err := pipeline.RunItems(ctx, items)
	if errors.Is(err, converter.ErrNoRowsInserted) {
		return report, fmt.Errorf("%w: %d row error(s)", err, report.Failed())
	}
	return report, err
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func batchInfo(file string, report *converter.BatchReport) utils.BatchInfo {
	return utils.BatchInfo{
		BatchID:     report.BatchID.String(),
		InputFile:   file,
		Table:       report.Table,
		ItemsRead:   report.ItemsRead,
		Inserted:    report.Inserted,
		Failed:      report.Failed(),
		Additions:   report.Additions,
		TaxTypes:    report.TaxTypes,
		TotalWeight: report.Aggregation.Total,
		Skipped:     report.Aggregation.Skipped,
		ProcessTime: report.Duration,
	}
}

func rowErrorEntries(name string, report *converter.BatchReport) []utils.ErrorLogEntry {
	entries := make([]utils.ErrorLogEntry, 0, report.Errors.Count())
	for _, e := range report.Errors.Errors() {
		entries = append(entries, utils.ErrorLogEntry{
			Timestamp:    time.Now(),
			FileName:     name,
			Table:        report.Table,
			ErrorType:    e.Code,
			ErrorMessage: e.Message,
			RowNumber:    e.Row,
			Column:       e.Column,
		})
	}
	if report.Errors.IsTruncated() {
		entries = append(entries, utils.ErrorLogEntry{
			Timestamp:    time.Now(),
			FileName:     name,
			Table:        report.Table,
			ErrorType:    "ERR_TRUNCATED",
			ErrorMessage: fmt.Sprintf("%d more row error(s) not listed", report.Errors.TotalCount()-report.Errors.Count()),
		})
	}
	return entries
}
