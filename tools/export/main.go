// Command export converts a collection session CSV into an XLSX workbook
// and/or a PDF summary for reporting.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/TV-RI/ThermalDAQ/internal/daq/infrastructure/csvlog"
)

type channelSummary struct {
	column string
	count  int
	min    float64
	max    float64
	sum    float64
}

func (s *channelSummary) add(v float64) {
	if s.count == 0 || v < s.min {
		s.min = v
	}
	if s.count == 0 || v > s.max {
		s.max = v
	}
	s.sum += v
	s.count++
}

func (s *channelSummary) mean() float64 {
	if s.count == 0 {
		return math.NaN()
	}
	return s.sum / float64(s.count)
}

type session struct {
	header     []string
	rows       [][]string
	start, end time.Time
	channels   []*channelSummary
	// status column index -> non-fresh row count, keyed by device name
	staleTicks map[string]int
}

func main() {
	in := flag.String("in", "", "session CSV file to export")
	xlsxOut := flag.String("xlsx", "", "write an XLSX workbook to this path")
	pdfOut := flag.String("pdf", "", "write a PDF summary to this path")
	flag.Parse()

	if *in == "" {
		fmt.Fprintln(os.Stderr, "usage: export -in session.csv [-xlsx out.xlsx] [-pdf out.pdf]")
		os.Exit(2)
	}
	if *xlsxOut == "" && *pdfOut == "" {
		fmt.Fprintln(os.Stderr, "nothing to do: pass -xlsx and/or -pdf")
		os.Exit(2)
	}

	s, err := readSession(*in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read session: %v\n", err)
		os.Exit(1)
	}

	if *xlsxOut != "" {
		if err := writeXLSX(*xlsxOut, s); err != nil {
			fmt.Fprintf(os.Stderr, "write xlsx: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s (%d records)\n", *xlsxOut, len(s.rows))
	}
	if *pdfOut != "" {
		if err := writePDF(*pdfOut, s); err != nil {
			fmt.Fprintf(os.Stderr, "write pdf: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", *pdfOut)
	}
}

func readSession(path string) (*session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	all, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(all) < 2 {
		return nil, fmt.Errorf("%s: no records", path)
	}

	s := &session{
		header:     all[0],
		rows:       all[1:],
		staleTicks: make(map[string]int),
	}
	for _, col := range s.header[1:] {
		if !strings.HasSuffix(col, "_status") {
			s.channels = append(s.channels, &channelSummary{column: col})
		}
	}

	for _, row := range s.rows {
		if len(row) != len(s.header) {
			return nil, fmt.Errorf("%s: ragged row with %d cells, want %d", path, len(row), len(s.header))
		}
		ts, err := csvlog.ParseTime(row[0])
		if err != nil {
			return nil, err
		}
		if s.start.IsZero() || ts.Before(s.start) {
			s.start = ts
		}
		if ts.After(s.end) {
			s.end = ts
		}

		ci := 0
		for i, col := range s.header[1:] {
			cell := row[i+1]
			if strings.HasSuffix(col, "_status") {
				if cell != "fresh" {
					s.staleTicks[strings.TrimSuffix(col, "_status")]++
				}
				continue
			}
			if cell != "" {
				v, err := strconv.ParseFloat(cell, 64)
				if err != nil {
					return nil, fmt.Errorf("%s: column %s: parse %q: %w", path, col, cell, err)
				}
				s.channels[ci].add(v)
			}
			ci++
		}
	}
	return s, nil
}

func writeXLSX(path string, s *session) error {
	f := excelize.NewFile()
	summarySheet := "summary"
	recordsSheet := "records"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(recordsSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Collection Session")
	_ = f.SetCellValue(summarySheet, "A3", "Start")
	_ = f.SetCellValue(summarySheet, "B3", s.start.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A4", "End")
	_ = f.SetCellValue(summarySheet, "B4", s.end.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A5", "Records")
	_ = f.SetCellValue(summarySheet, "B5", len(s.rows))

	_ = f.SetCellValue(summarySheet, "A7", "Channel")
	_ = f.SetCellValue(summarySheet, "B7", "Min")
	_ = f.SetCellValue(summarySheet, "C7", "Mean")
	_ = f.SetCellValue(summarySheet, "D7", "Max")
	_ = f.SetCellValue(summarySheet, "E7", "Samples")
	for i, ch := range s.channels {
		row := i + 8
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), ch.column)
		if ch.count > 0 {
			_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), ch.min)
			_ = f.SetCellValue(summarySheet, fmt.Sprintf("C%d", row), ch.mean())
			_ = f.SetCellValue(summarySheet, fmt.Sprintf("D%d", row), ch.max)
		}
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("E%d", row), ch.count)
	}

	base := 9 + len(s.channels)
	_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", base), "Device")
	_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", base), "Non-fresh ticks")
	for i, dev := range sortedDevices(s.staleTicks) {
		row := base + 1 + i
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), dev)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), s.staleTicks[dev])
	}

	for i, col := range s.header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		_ = f.SetCellValue(recordsSheet, cell, col)
	}
	for r, row := range s.rows {
		for c, cell := range row {
			name, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if c > 0 && cell != "" && !strings.HasSuffix(s.header[c], "_status") {
				if v, err := strconv.ParseFloat(cell, 64); err == nil {
					_ = f.SetCellValue(recordsSheet, name, v)
					continue
				}
			}
			_ = f.SetCellValue(recordsSheet, name, cell)
		}
	}

	return f.SaveAs(path)
}

func writePDF(path string, s *session) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Collection Session Summary")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Start: %s", s.start.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("End: %s", s.end.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Records: %d", len(s.rows)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 6, "Channel", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Min", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Mean", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Max", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Samples", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, ch := range s.channels {
		pdf.CellFormat(60, 6, ch.column, "1", 0, "L", false, 0, "")
		if ch.count > 0 {
			pdf.CellFormat(30, 6, fmt.Sprintf("%.3f", ch.min), "1", 0, "R", false, 0, "")
			pdf.CellFormat(30, 6, fmt.Sprintf("%.3f", ch.mean()), "1", 0, "R", false, 0, "")
			pdf.CellFormat(30, 6, fmt.Sprintf("%.3f", ch.max), "1", 0, "R", false, 0, "")
		} else {
			pdf.CellFormat(30, 6, "-", "1", 0, "C", false, 0, "")
			pdf.CellFormat(30, 6, "-", "1", 0, "C", false, 0, "")
			pdf.CellFormat(30, 6, "-", "1", 0, "C", false, 0, "")
		}
		pdf.CellFormat(25, 6, strconv.Itoa(ch.count), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	if len(s.staleTicks) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(60, 6, "Device", "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, "Non-fresh ticks", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 10)
		for _, dev := range sortedDevices(s.staleTicks) {
			pdf.CellFormat(60, 6, dev, "1", 0, "L", false, 0, "")
			pdf.CellFormat(40, 6, strconv.Itoa(s.staleTicks[dev]), "1", 0, "R", false, 0, "")
			pdf.Ln(-1)
		}
	}

	return pdf.OutputFileAndClose(path)
}

func sortedDevices(m map[string]int) []string {
	devices := make([]string, 0, len(m))
	for dev := range m {
		devices = append(devices, dev)
	}
	sort.Strings(devices)
	return devices
}
