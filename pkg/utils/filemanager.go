// =============================================================================
// DUIMP Flattener - File Manager Utility
// =============================================================================
//
// This module provides the file handling around a batch run:
//   - Directory management
//   - Input discovery (*.json documents)
//   - Input archival after a successful batch
//   - Output naming and writing (snapshots, exports)
//   - Row error logs and run summaries
//
// ARCHIVAL STRATEGY:
//   - Input files are moved to the archive directory after a successful batch
//   - Failed files remain in their original location
//   - Error logs and summaries are created in the output directory
//
// =============================================================================

package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles file operations around batch runs.
type FileManager struct {
	// InputDir is scanned for input documents.
	InputDir string

	// OutputDir receives snapshots, exports and logs.
	OutputDir string

	// InputArchiveDir receives processed input documents.
	InputArchiveDir string

	// UseTimestampSubdirs creates date-based subdirectories in the archive.
	// Example: input_archive/2024/01/15/itens.json
	UseTimestampSubdirs bool

	// ArchiveOnSuccess moves inputs to the archive after a successful batch.
	ArchiveOnSuccess bool
}

// NewFileManager creates a new FileManager with the specified directories.
func NewFileManager(inputDir, outputDir, inputArchiveDir string) *FileManager {
	return &FileManager{
		InputDir:         inputDir,
		OutputDir:        outputDir,
		InputArchiveDir:  inputArchiveDir,
		ArchiveOnSuccess: true,
	}
}

// =============================================================================
// DIRECTORY MANAGEMENT
// =============================================================================

// EnsureDirectories creates the input and output directories, plus the
// archive directory when archival is enabled.
func (fm *FileManager) EnsureDirectories() error {
	dirs := []string{fm.InputDir, fm.OutputDir}
	if fm.ArchiveOnSuccess {
		dirs = append(dirs, fm.InputArchiveDir)
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// =============================================================================
// FILE DISCOVERY
// =============================================================================

// DiscoverInputFiles scans the input directory for files matching the
// pattern, sorted by name.
//
// PARAMETERS:
//   - pattern: A glob pattern to match files. Defaults to "*.json".
//
// RETURNS:
//   - The matching regular files.
//   - An error if the pattern is malformed.
func (fm *FileManager) DiscoverInputFiles(pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*.json"
	}

	files, err := filepath.Glob(filepath.Join(fm.InputDir, pattern))
	if err != nil {
		return nil, fmt.Errorf("failed to scan input directory: %w", err)
	}

	var result []string
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil || info.IsDir() {
			continue
		}
		result = append(result, file)
	}
	sort.Strings(result)

	return result, nil
}

// =============================================================================
// FILE ARCHIVAL
// =============================================================================

// ArchiveInputFile moves an input file to the archive directory and returns
// its new path. With archival disabled the original path is returned.
func (fm *FileManager) ArchiveInputFile(filePath string) (string, error) {
	if !fm.ArchiveOnSuccess {
		return filePath, nil
	}

	archivePath := fm.getArchivePath(filePath, time.Now())
	if err := os.MkdirAll(filepath.Dir(archivePath), 0o750); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	if err := os.Rename(filePath, archivePath); err != nil {
		// cross-device moves fall back to copy and delete
		if err := copyFile(filePath, archivePath); err != nil {
			return "", fmt.Errorf("failed to copy file to archive: %w", err)
		}
		if err := os.Remove(filePath); err != nil {
			return "", fmt.Errorf("failed to remove original file: %w", err)
		}
	}

	return archivePath, nil
}

func (fm *FileManager) getArchivePath(filePath string, now time.Time) string {
	fileName := filepath.Base(filePath)
	if !fm.UseTimestampSubdirs {
		return filepath.Join(fm.InputArchiveDir, fileName)
	}
	return filepath.Join(
		fm.InputArchiveDir,
		fmt.Sprintf("%d", now.Year()),
		fmt.Sprintf("%02d", now.Month()),
		fmt.Sprintf("%02d", now.Day()),
		fileName,
	)
}

// =============================================================================
// OUTPUT FILES
// =============================================================================

// WriteOutputFile writes data under the output directory and returns the
// full path.
func (fm *FileManager) WriteOutputFile(name string, data []byte) (string, error) {
	if err := os.MkdirAll(fm.OutputDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(fm.OutputDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// GenerateOutputFileName fills the placeholders of an output name format.
//
// PARAMETERS:
//   - format: The format string for the file name.
//     Placeholders:
//     {uuid}      - A random UUID, unless params supplies one
//     {timestamp} - Current timestamp (YYYYMMDD_HHMMSS)
//     {date}      - Current date (YYYYMMDD)
//     {table}     - Table name, from params
//   - params: Placeholder values, keys without braces.
//   - ext: The extension the name must end with (".json", ".csv", ...).
//
// EXAMPLE:
//
//	format: "{table}_{timestamp}.json"
//	params: {"table": "itens_data"}
//	output: "itens_data_20240115_143022.json"
func GenerateOutputFileName(format string, params map[string]string, ext string) string {
	now := time.Now()

	replacements := map[string]string{
		"{uuid}":      uuid.New().String(),
		"{timestamp}": now.Format("20060102_150405"),
		"{date}":      now.Format("20060102"),
	}
	for key, value := range params {
		replacements["{"+key+"}"] = value
	}

	result := format
	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}

	if ext != "" {
		if cur := filepath.Ext(result); !strings.EqualFold(cur, ext) {
			result = strings.TrimSuffix(result, cur) + ext
		}
	}
	return result
}

// =============================================================================
// ERROR LOG GENERATION
// =============================================================================

// ErrorLogEntry is one failure written to the error log.
type ErrorLogEntry struct {
	Timestamp    time.Time
	FileName     string
	Table        string
	ErrorType    string
	ErrorMessage string
	RowNumber    int
	Column       string
}

// WriteErrorLog writes error entries to a log file in outputDir. Nothing is
// written when entries is empty.
func WriteErrorLog(entries []ErrorLogEntry, outputDir string) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}

	logPath := filepath.Join(outputDir, fmt.Sprintf("error_log_%s.txt", time.Now().Format("20060102_150405")))
	file, err := os.Create(logPath)
	if err != nil {
		return "", fmt.Errorf("failed to create error log: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	fmt.Fprintf(w, "DUIMP Flattener - Error Log\n"+
		"Generated: %s\n"+
		"Total Errors: %d\n"+
		"================================================================================\n\n",
		time.Now().Format("2006-01-02 15:04:05"),
		len(entries))

	for i, entry := range entries {
		fmt.Fprintf(w, "Error #%d\n", i+1)
		fmt.Fprintf(w, "  Timestamp:  %s\n", entry.Timestamp.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "  File:       %s\n", entry.FileName)
		if entry.Table != "" {
			fmt.Fprintf(w, "  Table:      %s\n", entry.Table)
		}
		fmt.Fprintf(w, "  Error Type: %s\n", entry.ErrorType)
		fmt.Fprintf(w, "  Message:    %s\n", entry.ErrorMessage)
		if entry.RowNumber > 0 {
			fmt.Fprintf(w, "  Row Number: %d\n", entry.RowNumber)
		}
		if entry.Column != "" {
			fmt.Fprintf(w, "  Column:     %s\n", entry.Column)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprint(w, "================================================================================\n"+
		"End of Error Log\n")

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush error log: %w", err)
	}
	return logPath, nil
}

// =============================================================================
// PROCESSING SUMMARY
// =============================================================================

// RunSummary describes one invocation of the process command.
type RunSummary struct {
	StartTime       time.Time
	EndTime         time.Time
	TotalFiles      int
	SuccessfulFiles int
	FailedFiles     int
	TotalItems      int
	TotalInserted   int
	TotalRowErrors  int
	Batches         []BatchInfo
	FailedFilesList []FailedFileInfo
}

// BatchInfo contains information about a successfully processed file.
type BatchInfo struct {
	BatchID      string
	InputFile    string
	Table        string
	SnapshotFile string
	ArchivePath  string
	ItemsRead    int
	Inserted     int
	Failed       int
	Additions    int
	TaxTypes     []string
	TotalWeight  float64
	Skipped      bool
	ProcessTime  time.Duration
}

// FailedFileInfo contains information about a failed file.
type FailedFileInfo struct {
	InputFile    string
	ErrorMessage string
}

// WriteSummaryLog writes a run summary to a file in outputDir.
func WriteSummaryLog(summary RunSummary, outputDir string) (string, error) {
	summaryPath := filepath.Join(outputDir, fmt.Sprintf("processing_summary_%s.txt", time.Now().Format("20060102_150405")))
	file, err := os.Create(summaryPath)
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	fmt.Fprintf(w, "DUIMP Flattener - Processing Summary\n"+
		"================================================================================\n\n"+
		"Run Information:\n"+
		"  Start Time:     %s\n"+
		"  End Time:       %s\n"+
		"  Duration:       %s\n\n"+
		"Statistics:\n"+
		"  Total Files:    %d\n"+
		"  Successful:     %d\n"+
		"  Failed:         %d\n"+
		"  Items Read:     %d\n"+
		"  Rows Inserted:  %d\n"+
		"  Row Errors:     %d\n\n",
		summary.StartTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Sub(summary.StartTime).String(),
		summary.TotalFiles,
		summary.SuccessfulFiles,
		summary.FailedFiles,
		summary.TotalItems,
		summary.TotalInserted,
		summary.TotalRowErrors)

	if len(summary.Batches) > 0 {
		fmt.Fprint(w, "Successful Files:\n")
		fmt.Fprint(w, "--------------------------------------------------------------------------------\n")
		for _, b := range summary.Batches {
			fmt.Fprintf(w, "  Input:        %s\n", b.InputFile)
			fmt.Fprintf(w, "  Batch:        %s\n", b.BatchID)
			fmt.Fprintf(w, "  Table:        %s\n", b.Table)
			if b.SnapshotFile != "" {
				fmt.Fprintf(w, "  Snapshot:     %s\n", b.SnapshotFile)
			}
			fmt.Fprintf(w, "  Rows:         %d of %d (%d failed)\n", b.Inserted, b.ItemsRead, b.Failed)
			if b.Additions > 0 {
				fmt.Fprintf(w, "  Additions:    %d\n", b.Additions)
			}
			if len(b.TaxTypes) > 0 {
				fmt.Fprintf(w, "  Tax Types:    %s\n", strings.Join(b.TaxTypes, ", "))
			}
			if b.Skipped {
				fmt.Fprint(w, "  Net Weight:   zero, percentages skipped\n")
			} else if b.TotalWeight > 0 {
				fmt.Fprintf(w, "  Net Weight:   %g\n", b.TotalWeight)
			}
			fmt.Fprintf(w, "  Process Time: %s\n\n", b.ProcessTime.String())
		}
	}

	if len(summary.FailedFilesList) > 0 {
		fmt.Fprint(w, "Failed Files:\n")
		fmt.Fprint(w, "--------------------------------------------------------------------------------\n")
		for _, ff := range summary.FailedFilesList {
			fmt.Fprintf(w, "  File:  %s\n", ff.InputFile)
			fmt.Fprintf(w, "  Error: %s\n\n", ff.ErrorMessage)
		}
	}

	fmt.Fprint(w, "================================================================================\n"+
		"End of Summary\n")

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush summary file: %w", err)
	}
	return summaryPath, nil
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}
	return destFile.Sync()
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
