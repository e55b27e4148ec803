package extract

import (
	"archive/zip"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/velostat/velostat_core/internal/models"
)

// ListMonths returns the sorted distinct YYYYMM prefixes of the zip archives
// in dataDir.
func ListMonths(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list data dir: %w", err)
	}

	seen := make(map[string]struct{})
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".zip") || len(name) < 6 {
			continue
		}
		seen[name[:6]] = struct{}{}
	}

	months := make([]string, 0, len(seen))
	for m := range seen {
		months = append(months, m)
	}
	sort.Strings(months)
	return months, nil
}

// ArchivesForMonth returns the sorted paths of the daily archives belonging
// to one YYYYMM month.
func ArchivesForMonth(dataDir, month string) ([]string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list data dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".zip") || !strings.HasPrefix(name, month) {
			continue
		}
		files = append(files, filepath.Join(dataDir, name))
	}
	sort.Strings(files)
	return files, nil
}

// ProcessArchive reads one daily archive of snapshot pages and processes
// every snapshot in it. Per-snapshot failures land in the returned log
// entries; only failing to open the archive itself is an error. Entries are
// processed in name order so output is stable across runs.
func ProcessArchive(path, region string) ([]models.StationRecord, []models.ProcessingError, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	defer reader.Close()

	files := make([]*zip.File, 0, len(reader.File))
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	var rows []models.StationRecord
	var errLog []models.ProcessingError
	for _, f := range files {
		content, err := readZipEntry(f)
		if err != nil {
			errLog = append(errLog, models.ProcessingError{
				Unit:    f.Name,
				Stage:   models.StageRead,
				Message: err.Error(),
			})
			continue
		}

		res := ProcessSnapshot(f.Name, content, region)
		if !res.OK() {
			errLog = append(errLog, *res.Failure)
			continue
		}
		rows = append(rows, res.Records...)
	}

	return rows, errLog, nil
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// MonthResult is the merged output of one month of daily archives.
type MonthResult struct {
	Month string
	Rows  []models.StationRecord
	Log   []models.ProcessingError
}

// ProcessMonth runs every daily archive of a month through a bounded worker
// pool and merges the outputs in archive-name order, so the merged tables do
// not depend on worker scheduling. An archive that cannot be read at all
// becomes a log entry and is skipped; its siblings are unaffected.
func ProcessMonth(dataDir, month, region string, workers int) (MonthResult, error) {
	files, err := ArchivesForMonth(dataDir, month)
	if err != nil {
		return MonthResult{}, err
	}
	if len(files) == 0 {
		return MonthResult{}, fmt.Errorf("no archives found for month %s", month)
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(files) {
		workers = len(files)
	}

	type archiveOutput struct {
		rows   []models.StationRecord
		errLog []models.ProcessingError
	}

	outputs := make([]archiveOutput, len(files))
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rows, errLog, err := ProcessArchive(files[i], region)
				if err != nil {
					log.Printf("Warning: skipping archive %s: %v", files[i], err)
					errLog = append(errLog, models.ProcessingError{
						Unit:    filepath.Base(files[i]),
						Stage:   models.StageRead,
						Message: err.Error(),
					})
				}
				outputs[i] = archiveOutput{rows: rows, errLog: errLog}
			}
		}()
	}

	for i := range files {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	result := MonthResult{Month: month, Log: []models.ProcessingError{}}
	for _, out := range outputs {
		result.Rows = append(result.Rows, out.rows...)
		result.Log = append(result.Log, out.errLog...)
	}

	return result, nil
}
