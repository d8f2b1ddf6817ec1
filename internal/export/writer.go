package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/tripsync/internal/domain"
	"github.com/rpattn/tripsync/internal/transform"
)

// writeCSV streams table into a temp file in dir and renames it to
// finalPath once complete.
func writeCSV(dir, finalPath string, table transform.Table) (int64, error) {
	tempFile, err := os.CreateTemp(dir, "."+filepath.Base(finalPath)+"-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp export file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = tempFile.Close()
			_ = os.Remove(tempPath)
		}
	}()

	buffered := bufio.NewWriterSize(tempFile, 1<<16)
	counter := &countingWriter{writer: buffered}
	csvWriter := csv.NewWriter(counter)

	if err := csvWriter.Write(table.Columns); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i, cell := range row {
			record[i] = formatValue(cell)
		}
		if err := csvWriter.Write(record); err != nil {
			return 0, fmt.Errorf("write row: %w", err)
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return 0, fmt.Errorf("final flush: %w", err)
	}
	if err := buffered.Flush(); err != nil {
		return 0, fmt.Errorf("final buffered flush: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return 0, fmt.Errorf("sync export file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return 0, fmt.Errorf("close export file: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		return 0, fmt.Errorf("promote export file: %w", err)
	}
	cleanup = false
	return counter.count, nil
}

// writeXLSX renders table into a single worksheet named after the kind.
func writeXLSX(dir, finalPath, sheet string, table transform.Table) (int64, error) {
	book := excelize.NewFile()
	defer book.Close()

	if err := book.SetSheetName(book.GetSheetName(0), sheetName(sheet)); err != nil {
		return 0, fmt.Errorf("name worksheet: %w", err)
	}
	sheet = sheetName(sheet)

	header := make([]any, len(table.Columns))
	for i, column := range table.Columns {
		header[i] = column
	}
	if err := book.SetSheetRow(sheet, "A1", &header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	for r, row := range table.Rows {
		values := make([]any, len(row))
		for i, cell := range row {
			values[i] = formatValue(cell)
		}
		cellRef, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return 0, fmt.Errorf("resolve row %d: %w", r+2, err)
		}
		if err := book.SetSheetRow(sheet, cellRef, &values); err != nil {
			return 0, fmt.Errorf("write row %d: %w", r+2, err)
		}
	}

	tempPath := filepath.Join(dir, "."+filepath.Base(finalPath)+".tmp.xlsx")
	if err := book.SaveAs(tempPath); err != nil {
		_ = os.Remove(tempPath)
		return 0, fmt.Errorf("save workbook: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		_ = os.Remove(tempPath)
		return 0, fmt.Errorf("promote export file: %w", err)
	}
	info, err := os.Stat(finalPath)
	if err != nil {
		return 0, fmt.Errorf("stat export file: %w", err)
	}
	return info.Size(), nil
}

// sheetName trims a name to the 31 characters a worksheet title allows.
func sheetName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Sheet1"
	}
	if len(name) > 31 {
		return name[:31]
	}
	return name
}

type countingWriter struct {
	writer *bufio.Writer
	count  int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.writer.Write(p)
	c.count += int64(n)
	return n, err
}

// formatValue renders a cell. Null cells are blank.
func formatValue(value domain.Value) string {
	if value.IsNull() {
		return ""
	}
	return value.Text()
}
