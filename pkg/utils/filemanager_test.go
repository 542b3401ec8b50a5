package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileManager(t *testing.T) *FileManager {
	t.Helper()
	root := t.TempDir()
	fm := NewFileManager(filepath.Join(root, "input"), filepath.Join(root, "output"), filepath.Join(root, "archive"))
	require.NoError(t, fm.EnsureDirectories())
	return fm
}

func TestDiscoverInputFiles(t *testing.T) {
	fm := newTestFileManager(t)
	for _, name := range []string{"b.json", "a.json", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(fm.InputDir, name), []byte("[]"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(fm.InputDir, "dir.json"), 0o750))

	files, err := fm.DiscoverInputFiles("")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(fm.InputDir, "a.json"),
		filepath.Join(fm.InputDir, "b.json"),
	}, files)
}

func TestArchiveInputFile(t *testing.T) {
	fm := newTestFileManager(t)
	src := filepath.Join(fm.InputDir, "itens.json")
	require.NoError(t, os.WriteFile(src, []byte("[]"), 0o600))

	dst, err := fm.ArchiveInputFile(src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fm.InputArchiveDir, "itens.json"), dst)
	assert.False(t, FileExists(src))
	assert.True(t, FileExists(dst))
}

func TestArchiveInputFile_Disabled(t *testing.T) {
	fm := newTestFileManager(t)
	fm.ArchiveOnSuccess = false
	src := filepath.Join(fm.InputDir, "itens.json")
	require.NoError(t, os.WriteFile(src, []byte("[]"), 0o600))

	dst, err := fm.ArchiveInputFile(src)
	require.NoError(t, err)
	assert.Equal(t, src, dst)
	assert.True(t, FileExists(src))
}

func TestGetArchivePath_TimestampSubdirs(t *testing.T) {
	fm := NewFileManager("in", "out", "arch")
	fm.UseTimestampSubdirs = true
	got := fm.getArchivePath("in/x.json", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, filepath.Join("arch", "2024", "01", "05", "x.json"), got)
}

func TestGenerateOutputFileName(t *testing.T) {
	name := GenerateOutputFileName("{table}_{uuid}.json", map[string]string{"table": "itens_data", "uuid": "abc"}, ".json")
	assert.Equal(t, "itens_data_abc.json", name)

	name = GenerateOutputFileName("{table}_{date}", map[string]string{"table": "t"}, ".csv")
	assert.True(t, strings.HasPrefix(name, "t_"))
	assert.True(t, strings.HasSuffix(name, ".csv"))

	name = GenerateOutputFileName("{table}.json", map[string]string{"table": "t"}, ".xlsx")
	assert.Equal(t, "t.xlsx", name)
}

func TestWriteOutputFile(t *testing.T) {
	fm := newTestFileManager(t)
	path, err := fm.WriteOutputFile("snap.json", []byte(`{"a":1}`))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))
}

func TestWriteErrorLog(t *testing.T) {
	dir := t.TempDir()

	path, err := WriteErrorLog(nil, dir)
	require.NoError(t, err)
	assert.Empty(t, path)

	path, err = WriteErrorLog([]ErrorLogEntry{{
		Timestamp:    time.Now(),
		FileName:     "itens.json",
		Table:        "itens_data",
		ErrorType:    "ERR_ROW_INSERT",
		ErrorMessage: "rejected",
		RowNumber:    2,
	}}, dir)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Total Errors: 1")
	assert.Contains(t, string(data), "Row Number: 2")
	assert.Contains(t, string(data), "Table:      itens_data")
}

func TestWriteSummaryLog(t *testing.T) {
	dir := t.TempDir()
	start := time.Now()

	path, err := WriteSummaryLog(RunSummary{
		StartTime:       start,
		EndTime:         start.Add(time.Second),
		TotalFiles:      2,
		SuccessfulFiles: 1,
		FailedFiles:     1,
		TotalItems:      3,
		TotalInserted:   3,
		Batches: []BatchInfo{{
			BatchID:   "b1",
			InputFile: "itens.json",
			Table:     "itens_data",
			ItemsRead: 3,
			Inserted:  3,
			Additions: 2,
			TaxTypes:  []string{"II", "IPI"},
			Skipped:   true,
		}},
		FailedFilesList: []FailedFileInfo{{InputFile: "bad.json", ErrorMessage: "not a list"}},
	}, dir)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "Rows:         3 of 3 (0 failed)")
	assert.Contains(t, out, "Tax Types:    II, IPI")
	assert.Contains(t, out, "percentages skipped")
	assert.Contains(t, out, "Error: not a list")
}
