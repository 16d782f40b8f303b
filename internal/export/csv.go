// Package export renders door events and shift summaries for the back
// office: CSV for the fixed interchange contract, XLSX for the report
// workbook.
package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/veranda-labs/canvass/internal/store"
)

var eventHeader = []string{
	"timestamp", "status", "latitude", "longitude", "houseNumber", "roadName", "note",
}

var summaryHeader = []string{
	"date", "repId", "doors", "x", "o", "sales", "conversionPercent", "miles",
	"activeMinutes", "manualPausedMinutes", "inactivityDeductedMinutes",
	"pay", "mileageExpense", "totalOwed", "startTime", "endTime",
}

// WriteEventsCSV writes the per-event export for one shift.
func WriteEventsCSV(w io.Writer, records []store.DoorEventRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(eventHeader); err != nil {
		return err
	}
	for _, record := range records {
		row := []string{
			time.UnixMilli(record.TimestampMillis).UTC().Format(time.RFC3339),
			record.Status,
			strconv.FormatFloat(record.Latitude, 'f', 6, 64),
			strconv.FormatFloat(record.Longitude, 'f', 6, 64),
			record.HouseNumber,
			record.RoadName,
			record.Note,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteSummariesCSV writes the shift-summary export.
func WriteSummariesCSV(w io.Writer, records []store.ShiftSummaryRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(summaryHeader); err != nil {
		return err
	}
	for _, record := range records {
		if err := writer.Write(summaryRow(record)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func summaryRow(record store.ShiftSummaryRecord) []string {
	endTime := ""
	if record.EndTimeSeconds != nil {
		endTime = time.Unix(*record.EndTimeSeconds, 0).UTC().Format(time.RFC3339)
	}
	return []string{
		record.CalendarDate,
		record.RepID,
		strconv.Itoa(record.Doors),
		strconv.Itoa(record.NoAnswer),
		strconv.Itoa(record.NoSale),
		strconv.Itoa(record.Sales),
		strconv.FormatFloat(record.ConversionPercent, 'f', 1, 64),
		strconv.FormatFloat(record.Miles, 'f', 2, 64),
		strconv.Itoa(record.ActiveMinutes),
		strconv.Itoa(record.ManualPausedMinutes),
		strconv.Itoa(record.InactivityDeductedMinutes),
		strconv.FormatFloat(record.Pay, 'f', 2, 64),
		strconv.FormatFloat(record.MileageExpense, 'f', 2, 64),
		strconv.FormatFloat(record.TotalOwed, 'f', 2, 64),
		time.Unix(record.StartTimeSeconds, 0).UTC().Format(time.RFC3339),
		endTime,
	}
}
