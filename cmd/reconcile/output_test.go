package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"spatial-hub-go/internal/consistency"
	"spatial-hub-go/internal/model"
)

func TestPrintReport(t *testing.T) {
	report := &consistency.Report{
		ID:                   "r-1",
		CheckType:            model.CheckTypeFull,
		OrphanedDbRecords:    []consistency.OrphanedRecord{{ID: "id-1", Name: "a.tif", StoragePath: "maps/a.tif"}},
		OrphanedStorageFiles: []string{"tiles/x.b3dm"},
		Partial:              true,
		SkippedPrefixes:      []string{"tiles/deep"},
		CheckedAt:            time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	var buf bytes.Buffer
	require.NoError(t, printReport(&buf, report))
	out := buf.String()
	assert.Contains(t, out, "r-1")
	assert.Contains(t, out, "maps/a.tif")
	assert.Contains(t, out, "tiles/x.b3dm")
	assert.Contains(t, out, "tiles/deep")
	assert.NotContains(t, out, "No orphans found.")

	buf.Reset()
	require.NoError(t, printReport(&buf, &consistency.Report{ID: "r-2"}))
	assert.Contains(t, buf.String(), "No orphans found.")
}

func TestPrintRepair(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printRepair(&buf, consistency.RepairResult{
		Success: []string{"a"},
		Failed:  []consistency.RepairFailure{{Path: "b/c.png", Error: "access denied"}},
	}))
	assert.Contains(t, buf.String(), "Repaired: 1, failed: 1")
	assert.Contains(t, buf.String(), "b/c.png")
	assert.Contains(t, buf.String(), "access denied")
}

func TestPrintLogsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printLogs(&buf, nil))
	assert.Equal(t, "No log entries.\n", buf.String())
}

func TestRenderJSON(t *testing.T) {
	jsonOutput = true
	t.Cleanup(func() { jsonOutput = false })

	var buf bytes.Buffer
	require.NoError(t, render(&buf, &consistency.FileCheck{FileID: "f-1", DbRecordExists: true}, printFileCheck))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "f-1", got["fileId"])
	assert.Equal(t, true, got["dbRecordExists"])
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{{"check"}, {"report"}, {"repair", "records"}, {"repair", "objects"}, {"logs"}, {"inspect"}, {"token"}} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}
