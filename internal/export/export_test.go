package export

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/KyPython/offline-media-sync/internal/database"
	"github.com/KyPython/offline-media-sync/internal/queue"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func setupExporter(t *testing.T) (*Exporter, *queue.Manager) {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zerolog.Nop()
	manager := queue.NewManager(db, 0, 5, &logger)
	return NewExporter(manager, filepath.Join(t.TempDir(), "exports"), &logger), manager
}

func TestExportQueue(t *testing.T) {
	exporter, manager := setupExporter(t)
	ctx := context.Background()

	recordID, err := manager.Enqueue(ctx, "field trip", "two shots", []queue.FileInput{
		{Name: "a.jpg", MimeType: "image/jpeg", Data: []byte("aaaa")},
		{Name: "b.jpg", MimeType: "image/jpeg", Data: []byte("bb")},
	})
	require.NoError(t, err)

	path, err := exporter.ExportQueue(ctx)
	require.NoError(t, err)
	assert.FileExists(t, path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := f.GetRows("Records")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"ID", "Title", "Description", "Files", "Synced", "Created"}, records[0][:6])
	assert.Equal(t, recordID, records[1][0])
	assert.Equal(t, "field trip", records[1][1])
	assert.Equal(t, "2", records[1][3])

	items, err := f.GetRows("Queue Items")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "a.jpg", items[1][2])
	assert.Equal(t, "pending", items[1][4])
	assert.Equal(t, "0/5", items[1][5])

	// scratch sheet from excelize must be gone
	assert.NotContains(t, f.GetSheetList(), "Sheet1")
}

func TestExportEmptyQueue(t *testing.T) {
	exporter, _ := setupExporter(t)

	path, err := exporter.ExportQueue(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := f.GetRows("Records")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
