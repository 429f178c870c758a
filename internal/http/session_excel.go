package httpapi

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"wisefido-insight/internal/models"
	"wisefido-insight/internal/timeseries"
)

// SessionTranscriptHeader 审计导出 Transcript 页表头
var SessionTranscriptHeader = []string{
	"Time",
	"Role",
	"Content",
	"Reasoning Trace",
	"Forwarded",
	"Watermark After",
}

// GenerateSessionAuditExport 生成会话审计 Excel 文件
// Session 页记录配置与运行状态，Transcript 页逐条回放消息历史
func GenerateSessionAuditExport(state *models.SessionState) ([]byte, error) {
	f := excelize.NewFile()
	// Note: Don't defer Close() here, because WriteTo needs the file to be open

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
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

	if err := writeSessionSheet(f, state, headerStyle); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeTranscriptSheet(f, state, headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	// 删除默认的 Sheet1
	f.DeleteSheet("Sheet1")

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

// writeSessionSheet 写入会话概览页（键值两列）
func writeSessionSheet(f *excelize.File, state *models.SessionState, headerStyle int) error {
	sheetName := "Session"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	cfg := state.Config
	rows := [][2]string{
		{"Session ID", state.SessionID},
		{"Tenant ID", state.TenantID},
		{"Provider", cfg.Provider},
		{"Model", cfg.Model},
		{"Auto Update", boolLabel(cfg.AutoUpdate)},
		{"Include Panel Data", boolLabel(cfg.IncludePanelData)},
		{"Selected Fields", strings.Join(cfg.SelectedFields, ", ")},
		{"Watermark", watermarkLabel(state.Watermark)},
		{"Pending Prompt", state.PendingPrompt},
		{"Last Error", state.LastError},
		{"Created At", timeseries.FormatTimestamp(state.CreatedAt)},
		{"Updated At", timeseries.FormatTimestamp(state.UpdatedAt)},
	}

	if err := f.SetColWidth(sheetName, "A", "A", 22); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	if err := f.SetColWidth(sheetName, "B", "B", 60); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}

	for i, row := range rows {
		keyCell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, keyCell, row[0]); err != nil {
			return fmt.Errorf("failed to set cell %s: %w", keyCell, err)
		}
		if err := f.SetCellStyle(sheetName, keyCell, keyCell, headerStyle); err != nil {
			return fmt.Errorf("failed to set cell style: %w", err)
		}

		valCell, err := excelize.CoordinatesToCellName(2, i+1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, valCell, row[1]); err != nil {
			return fmt.Errorf("failed to set cell %s: %w", valCell, err)
		}
	}

	return nil
}

// writeTranscriptSheet 写入消息历史页
func writeTranscriptSheet(f *excelize.File, state *models.SessionState, headerStyle int) error {
	sheetName := "Transcript"
	if _, err := f.NewSheet(sheetName); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	for col, header := range SessionTranscriptHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}

	columnWidths := []float64{
		24, // Time
		12, // Role
		80, // Content
		40, // Reasoning Trace
		12, // Forwarded
		24, // Watermark After
	}
	for i := range SessionTranscriptHeader {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(sheetName, col, col, columnWidths[i]); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for rowIdx, msg := range state.Transcript {
		row := rowIdx + 2 // 从第2行开始（第1行是表头）
		values := []any{
			timeseries.FormatTimestamp(msg.Timestamp),
			msg.Role,
			msg.Content,
			msg.Trace,
			boolLabel(msg.Forwarded),
			watermarkLabel(msg.WatermarkAfter),
		}
		for colIdx, value := range values {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, row)
			if err != nil {
				return fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return fmt.Errorf("failed to set cell value at row %d, col %d: %w", row, colIdx+1, err)
			}
		}
	}

	// 冻结表头
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		Split:       false,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}

	return nil
}

func boolLabel(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func watermarkLabel(ts *int64) string {
	if ts == nil {
		return ""
	}
	return timeseries.FormatTimestamp(*ts)
}
