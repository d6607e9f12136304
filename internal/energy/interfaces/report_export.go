package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	detection "homeclimate/internal/detection/domain"
	energy "homeclimate/internal/energy/application"
)

// BuildEnergyReportPDF renders a minimal PDF for an energy report.
func BuildEnergyReportPDF(report energy.Report, events []detection.Event, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Dehumidifier Energy Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Window: last %d days", report.WindowDays))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generatedAt.UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Events: %d", report.EventCount))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Runtime (h): %.2f", report.RuntimeHours))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Energy (kWh): %.3f", report.KWh))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Cost (EUR): %.2f", report.CostEUR))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Savings vs always-on: %.1f%%", report.SavingsPercent))
	pdf.Ln(8)

	// Events table
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(50, 6, "Start", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Duration (min)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Peak (%RH)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Runtime (min)", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, event := range events {
		runtime := "n/a"
		if event.DehumidifierRuntimeMinutes != nil {
			runtime = fmt.Sprintf("%.1f", *event.DehumidifierRuntimeMinutes)
		}
		pdf.CellFormat(50, 6, event.StartTime.UTC().Format("2006-01-02 15:04"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%.1f", event.DurationMinutes), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%.1f", event.PeakHumidity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, runtime, "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildEnergyReportXLSX renders a minimal XLSX for an energy report.
func BuildEnergyReportXLSX(report energy.Report, events []detection.Event) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	eventsSheet := "events"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(eventsSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Dehumidifier Energy Report")
	_ = f.SetCellValue(summarySheet, "A3", "Window (days)")
	_ = f.SetCellValue(summarySheet, "B3", report.WindowDays)
	_ = f.SetCellValue(summarySheet, "A4", "Events")
	_ = f.SetCellValue(summarySheet, "B4", report.EventCount)
	_ = f.SetCellValue(summarySheet, "A5", "Runtime (h)")
	_ = f.SetCellValue(summarySheet, "B5", report.RuntimeHours)
	_ = f.SetCellValue(summarySheet, "A6", "Energy (kWh)")
	_ = f.SetCellValue(summarySheet, "B6", report.KWh)
	_ = f.SetCellValue(summarySheet, "A7", "Cost (EUR)")
	_ = f.SetCellValue(summarySheet, "B7", report.CostEUR)
	_ = f.SetCellValue(summarySheet, "A8", "Savings vs always-on (%)")
	_ = f.SetCellValue(summarySheet, "B8", report.SavingsPercent)

	_ = f.SetCellValue(eventsSheet, "A1", "Start")
	_ = f.SetCellValue(eventsSheet, "B1", "End")
	_ = f.SetCellValue(eventsSheet, "C1", "Duration (min)")
	_ = f.SetCellValue(eventsSheet, "D1", "Peak (%RH)")
	_ = f.SetCellValue(eventsSheet, "E1", "Runtime (min)")
	for i, event := range events {
		row := i + 2
		_ = f.SetCellValue(eventsSheet, fmt.Sprintf("A%d", row), event.StartTime.UTC().Format(time.RFC3339))
		_ = f.SetCellValue(eventsSheet, fmt.Sprintf("B%d", row), event.EndTime.UTC().Format(time.RFC3339))
		_ = f.SetCellValue(eventsSheet, fmt.Sprintf("C%d", row), event.DurationMinutes)
		_ = f.SetCellValue(eventsSheet, fmt.Sprintf("D%d", row), event.PeakHumidity)
		if event.DehumidifierRuntimeMinutes != nil {
			_ = f.SetCellValue(eventsSheet, fmt.Sprintf("E%d", row), *event.DehumidifierRuntimeMinutes)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
