package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	history "plantwatch/internal/history/domain"
)

const missingValue = "--"

// BuildSamplesPDF renders an instrument history table as PDF.
func BuildSamplesPDF(instrument string, samples []history.Sample, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Instrument History")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Instrument: %s", instrument))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Samples: %d", len(samples)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generatedAt.Format(time.RFC3339)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(25, 6, "Date", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Time", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Reading", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Origin", "1", 0, "C", false, 0, "")
	pdf.CellFormat(80, 6, "Source", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, sample := range samples {
		pdf.CellFormat(25, 6, sample.Date, "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, sample.Time, "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, formatReading(sample), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, string(sample.Origin), "1", 0, "C", false, 0, "")
		pdf.CellFormat(80, 6, sample.SourceLabel, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildSamplesXLSX renders an instrument history as a workbook with a summary and a samples sheet.
func BuildSamplesXLSX(instrument string, samples []history.Sample, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	samplesSheet := "samples"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(samplesSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Instrument History")
	_ = f.SetCellValue(summarySheet, "A3", "Instrument")
	_ = f.SetCellValue(summarySheet, "B3", instrument)
	_ = f.SetCellValue(summarySheet, "A4", "Samples")
	_ = f.SetCellValue(summarySheet, "B4", len(samples))
	_ = f.SetCellValue(summarySheet, "A5", "Generated")
	_ = f.SetCellValue(summarySheet, "B5", generatedAt.Format(time.RFC3339))

	_ = f.SetCellValue(samplesSheet, "A1", "Date")
	_ = f.SetCellValue(samplesSheet, "B1", "Time")
	_ = f.SetCellValue(samplesSheet, "C1", "Reading")
	_ = f.SetCellValue(samplesSheet, "D1", "Origin")
	_ = f.SetCellValue(samplesSheet, "E1", "Source")
	for i, sample := range samples {
		row := i + 2
		_ = f.SetCellValue(samplesSheet, fmt.Sprintf("A%d", row), sample.Date)
		_ = f.SetCellValue(samplesSheet, fmt.Sprintf("B%d", row), sample.Time)
		if value, ok := sample.Reading.Value(); ok {
			_ = f.SetCellValue(samplesSheet, fmt.Sprintf("C%d", row), value)
		} else {
			_ = f.SetCellValue(samplesSheet, fmt.Sprintf("C%d", row), missingValue)
		}
		_ = f.SetCellValue(samplesSheet, fmt.Sprintf("D%d", row), string(sample.Origin))
		_ = f.SetCellValue(samplesSheet, fmt.Sprintf("E%d", row), sample.SourceLabel)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatReading(sample history.Sample) string {
	value, ok := sample.Reading.Value()
	if !ok {
		return missingValue
	}
	return fmt.Sprintf("%.1f", value)
}
