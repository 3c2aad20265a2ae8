package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/KyPython/offline-media-sync/internal/queue"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// Exporter writes an Excel snapshot of the queue for offline review:
// one sheet of records, one of queue items with their transfer state.
type Exporter struct {
	manager *queue.Manager
	dir     string
	logger  *zerolog.Logger
}

func NewExporter(manager *queue.Manager, dir string, logger *zerolog.Logger) *Exporter {
	return &Exporter{manager: manager, dir: dir, logger: logger}
}

func (e *Exporter) ExportQueue(ctx context.Context) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	records, err := e.manager.ListRecords(ctx)
	if err != nil {
		return "", fmt.Errorf("error getting records: %w", err)
	}
	items, err := e.manager.ListAll(ctx)
	if err != nil {
		return "", fmt.Errorf("error getting queue items: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const recordsSheet = "Records"
	index, err := f.NewSheet(recordsSheet)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	recordHeaders := []string{"ID", "Title", "Description", "Files", "Synced", "Created"}
	for col, header := range recordHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(recordsSheet, cell, header)
	}
	for row, record := range records {
		values := []any{
			record.ID,
			record.Title,
			record.Description,
			len(record.Media),
			record.Synced,
			record.CreatedAt.Format(time.RFC3339),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(recordsSheet, cell, value)
		}
	}

	const itemsSheet = "Queue Items"
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}

	itemHeaders := []string{"ID", "Record", "File", "Size", "Status", "Attempts", "Progress", "Chunked", "Last Error"}
	for col, header := range itemHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(itemsSheet, cell, header)
	}
	for row, item := range items {
		lastError := ""
		if item.LastError != nil {
			lastError = *item.LastError
		}
		values := []any{
			item.ID,
			item.RecordID,
			item.FileName,
			item.Size,
			item.Status,
			fmt.Sprintf("%d/%d", item.Attempts, item.MaxAttempts),
			fmt.Sprintf("%d%%", item.Progress),
			item.Chunked,
			lastError,
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(itemsSheet, cell, value)
		}
	}

	_ = f.SetColWidth(recordsSheet, "A", "B", 30)
	_ = f.SetColWidth(itemsSheet, "A", "C", 30)
	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("queue_report_%s.xlsx", time.Now().Format("20060102_150405"))
	path := filepath.Join(e.dir, fileName)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving export: %w", err)
	}

	e.logger.Info().Str("path", path).Int("records", len(records)).Int("items", len(items)).Msg("Queue exported")
	return path, nil
}
