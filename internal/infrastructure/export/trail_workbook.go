// Package export renders workflow trails as downloadable documents.
package export

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Sheet names of the trail workbook
const (
	SheetInstance = "Instance"
	SheetActions  = "Actions"
	SheetAudit    = "Audit"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var (
	actionHeader = []any{"ID", "Step ID", "Actor", "Role", "Action", "Remarks", "Payload", "Recorded At"}
	auditHeader  = []any{"ID", "User", "Action", "Entity", "Entity ID", "Metadata", "Recorded At"}
)

// TrailWorkbook exports an instance trail as an xlsx workbook
type TrailWorkbook struct {
	fontName string
	logger   *zap.Logger
}

// NewTrailWorkbook creates a new TrailWorkbook. fontName optionally names the
// default font for CJK remarks.
func NewTrailWorkbook(fontName string, logger *zap.Logger) *TrailWorkbook {
	return &TrailWorkbook{fontName: fontName, logger: logger}
}

// ContentType returns the MIME type of Export's output
func (w *TrailWorkbook) ContentType() string {
	return xlsxContentType
}

// Export writes one sheet each for the instance summary, actions and audit entries
func (w *TrailWorkbook) Export(trail *port.InstanceTrail) ([]byte, error) {
	if trail == nil || trail.Instance == nil {
		return nil, fmt.Errorf("trail has no instance")
	}

	file := excelize.NewFile()
	defer file.Close()

	if w.fontName != "" {
		if err := file.SetDefaultFont(w.fontName); err != nil {
			w.logger.Warn("Failed to set default font for trail export",
				zap.String("font_name", w.fontName),
				zap.Error(err))
		}
	}

	if err := file.SetSheetName("Sheet1", SheetInstance); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{SheetActions, SheetAudit} {
		if _, err := file.NewSheet(name); err != nil {
			return nil, fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	bold, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := w.fillInstance(file, trail, bold); err != nil {
		return nil, fmt.Errorf("failed to fill instance sheet: %w", err)
	}
	if err := w.fillActions(file, trail, bold); err != nil {
		return nil, fmt.Errorf("failed to fill actions sheet: %w", err)
	}
	if err := w.fillAudit(file, trail, bold); err != nil {
		return nil, fmt.Errorf("failed to fill audit sheet: %w", err)
	}

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	w.logger.Debug("Trail exported",
		zap.Int64("instance_id", trail.Instance.ID),
		zap.Int("actions", len(trail.Actions)),
		zap.Int("audit_entries", len(trail.Audit)))
	return buf.Bytes(), nil
}

// fillInstance writes label/value pairs in columns A and B
func (w *TrailWorkbook) fillInstance(file *excelize.File, trail *port.InstanceTrail, bold int) error {
	inst := trail.Instance
	rows := [][]any{
		{"Instance ID", inst.ID},
		{"Entity Type", inst.EntityType},
		{"Entity ID", inst.EntityID},
		{"Status", inst.Status.String()},
		{"Current Step", inst.CurrentStep},
		{"Initiated By", inst.InitiatedBy},
		{"Created At", formatTime(inst.CreatedAt)},
		{"Completed At", formatTimePtr(inst.CompletedAt)},
	}
	if def := trail.Definition; def != nil {
		rows = append(rows,
			[]any{"Definition", fmt.Sprintf("%s (v%d)", def.Name, def.Version)},
			[]any{"Steps", stepSummary(trail)},
		)
	}

	for i, row := range rows {
		if err := setRow(file, SheetInstance, i+1, row); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(1, len(rows))
	if err := file.SetCellStyle(SheetInstance, "A1", last, bold); err != nil {
		return err
	}
	return file.SetColWidth(SheetInstance, "A", "B", 24)
}

func (w *TrailWorkbook) fillActions(file *excelize.File, trail *port.InstanceTrail, bold int) error {
	if err := writeHeader(file, SheetActions, actionHeader, bold); err != nil {
		return err
	}
	for i, a := range trail.Actions {
		row := []any{a.ID, a.StepID, a.ActorID, a.ActorRole, a.Action.String(), a.Remarks, encode(a.Payload), formatTime(a.CreatedAt)}
		if err := setRow(file, SheetActions, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func (w *TrailWorkbook) fillAudit(file *excelize.File, trail *port.InstanceTrail, bold int) error {
	if err := writeHeader(file, SheetAudit, auditHeader, bold); err != nil {
		return err
	}
	for i, a := range trail.Audit {
		row := []any{a.ID, a.UserID, a.Action, a.Entity, a.EntityID, encode(a.Metadata), formatTime(a.CreatedAt)}
		if err := setRow(file, SheetAudit, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeHeader(file *excelize.File, sheet string, header []any, bold int) error {
	if err := setRow(file, sheet, 1, header); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	return file.SetCellStyle(sheet, "A1", last, bold)
}

func setRow(file *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return file.SetSheetRow(sheet, cell, &values)
}

func stepSummary(trail *port.InstanceTrail) string {
	names := make([]string, 0, len(trail.Definition.Steps))
	for _, s := range trail.Definition.Steps {
		names = append(names, fmt.Sprintf("%d. %s [%s]", s.StepOrder, s.Name, strings.Join(s.ApproverRoles, ", ")))
	}
	return strings.Join(names, "; ")
}

func encode(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Sprint(m)
	}
	return string(data)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

var _ port.TrailExporter = (*TrailWorkbook)(nil)
