package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"lumir-wiki/internal/domain"
)

var permissionLogExportHeader = []string{
	"Log ID",
	"Node ID",
	"Action",
	"Invalid Kind",
	"Invalid ID",
	"Snapshot Departments",
	"Snapshot Ranks",
	"Snapshot Positions",
	"Detected At",
	"Resolved At",
	"Resolved By",
	"Note",
}

// ExportLogs streams the full audit trail as an xlsx download.
func (h *PermissionLogsHandler) ExportLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	logs, err := h.logs.ListLogs(ctx, nil)
	if err != nil {
		h.logger.Error("ExportLogs failed", zap.Error(err))
		writeError(w, err)
		return
	}
	data, err := generatePermissionLogExport(logs)
	if err != nil {
		h.logger.Error("ExportLogs excel generation failed", zap.Error(err))
		writeError(w, err)
		return
	}

	filename := fmt.Sprintf("wiki-permission-logs-%s.xlsx", time.Now().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	_, _ = w.Write(data)
}

func generatePermissionLogExport(logs []*domain.WikiPermissionLog) ([]byte, error) {
	f := excelize.NewFile()
	// WriteTo needs the file open; Close only after the buffer is written.

	sheetName := "Permission Logs"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range permissionLogExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	for rowIdx, log := range logs {
		row := rowIdx + 2
		values := []any{
			log.LogID,
			log.NodeID,
			string(log.Action),
			string(log.InvalidKind),
			log.InvalidID,
			joinIDs(log.Snapshot.DepartmentIDs),
			joinIDs(log.Snapshot.RankIDs),
			joinIDs(log.Snapshot.PositionIDs),
			formatLogTime(&log.DetectedAt),
			formatLogTime(log.ResolvedAt),
			stringOrEmpty(log.ResolvedBy),
			stringOrEmpty(log.Note),
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

// joinIDs renders a stored id set; NULL (unclassified) and empty
// (nobody) read differently in the export.
func joinIDs(ids []string) string {
	if ids == nil {
		return "(unclassified)"
	}
	if len(ids) == 0 {
		return "(none)"
	}
	return strings.Join(ids, ", ")
}

func formatLogTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
