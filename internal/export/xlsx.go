package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/veranda-labs/canvass/internal/store"
)

const summarySheet = "Shift Summaries"

// WriteSummariesXLSX writes the shift-summary report workbook.
func WriteSummariesXLSX(w io.Writer, records []store.ShiftSummaryRecord) error {
	file := excelize.NewFile()
	defer file.Close()

	sheet, err := file.NewSheet(summarySheet)
	if err != nil {
		return err
	}
	file.SetActiveSheet(sheet)
	if err := file.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	for column, title := range summaryHeader {
		cell, err := excelize.CoordinatesToCellName(column+1, 1)
		if err != nil {
			return err
		}
		if err := file.SetCellValue(summarySheet, cell, title); err != nil {
			return err
		}
	}

	for rowIndex, record := range records {
		row := summaryCells(record)
		for column, value := range row {
			cell, err := excelize.CoordinatesToCellName(column+1, rowIndex+2)
			if err != nil {
				return err
			}
			if err := file.SetCellValue(summarySheet, cell, value); err != nil {
				return err
			}
		}
	}

	if _, err := file.WriteTo(w); err != nil {
		return fmt.Errorf("export: writing workbook: %w", err)
	}
	return nil
}

func summaryCells(record store.ShiftSummaryRecord) []interface{} {
	endTime := ""
	if record.EndTimeSeconds != nil {
		endTime = time.Unix(*record.EndTimeSeconds, 0).UTC().Format(time.RFC3339)
	}
	return []interface{}{
		record.CalendarDate,
		record.RepID,
		record.Doors,
		record.NoAnswer,
		record.NoSale,
		record.Sales,
		record.ConversionPercent,
		record.Miles,
		record.ActiveMinutes,
		record.ManualPausedMinutes,
		record.InactivityDeductedMinutes,
		record.Pay,
		record.MileageExpense,
		record.TotalOwed,
		time.Unix(record.StartTimeSeconds, 0).UTC().Format(time.RFC3339),
		endTime,
	}
}
