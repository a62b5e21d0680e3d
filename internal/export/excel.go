package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"terminbuch/internal/database"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// LedgerExporter writes the salon's appointment audit trail to an xlsx file
// for the back office.
type LedgerExporter struct {
	db     *database.DB
	path   string
	logger *zerolog.Logger
}

func NewLedgerExporter(db *database.DB, path string, logger *zerolog.Logger) *LedgerExporter {
	return &LedgerExporter{
		db:     db,
		path:   path,
		logger: logger,
	}
}

// ExportTransitions создает Excel файл с журналом переходов статусов
func (e *LedgerExporter) ExportTransitions(ctx context.Context, salonID string, from, to time.Time) (string, error) {
	// Создаем папку для экспорта, если не существует
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	transitions, err := e.db.TransitionsBySalon(ctx, salonID, from, to)
	if err != nil {
		return "", fmt.Errorf("error getting transitions: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Ledger"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Period: %s - %s",
		from.Format("02.01.2006"), to.Format("02.01.2006")))
	_ = f.MergeCell(sheetName, "A1", "G1")

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headers := []string{"Appointment", "From", "To", "Actor", "Actor ID", "Reason", "At"}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, header)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, t := range transitions {
		row := i + 3
		_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), t.AppointmentID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), string(t.FromStatus))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), string(t.ToStatus))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), string(t.ActorRole))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), t.ActorID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), t.Reason)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), t.CreatedAt.Format("02.01.2006 15:04"))
	}

	_ = f.SetColWidth(sheetName, "A", "A", 38)
	_ = f.SetColWidth(sheetName, "B", "D", 12)
	_ = f.SetColWidth(sheetName, "E", "F", 24)
	_ = f.SetColWidth(sheetName, "G", "G", 18)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("ledger_%s_%s_to_%s.xlsx", salonID,
		from.Format("2006-01-02"), to.Format("2006-01-02"))
	filePath := filepath.Join(e.path, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("Ledger export created")
	return filePath, nil
}
