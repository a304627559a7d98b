// Package export renders bookings as an Excel workbook.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"roombook/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	ScheduleSheet = "Schedule"
	BookingsSheet = "Bookings"
)

var bookingHeaders = []string{"ID", "Room", "Title", "Date", "Start", "End", "Status", "Created by", "Approved by", "Series"}

// Exporter builds workbooks with dates rendered in its location.
type Exporter struct {
	loc *time.Location
}

func New(loc *time.Location) *Exporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Exporter{loc: loc}
}

// Build creates a workbook with a room-by-day schedule grid and a flat list
// of every booking in [from, to]. Cancelled bookings appear only in the list.
func (e *Exporter) Build(from, to time.Time, rooms []*models.Room, bookings []*models.Booking) (*excelize.File, error) {
	from = e.day(from)
	to = e.day(to)
	if to.Before(from) {
		return nil, fmt.Errorf("export range ends before it starts")
	}

	sorted := make([]*models.Booking, len(bookings))
	copy(sorted, bookings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime.Before(sorted[j].StartTime)
	})

	f := excelize.NewFile()
	index, err := f.NewSheet(ScheduleSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if _, err := f.NewSheet(BookingsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	_ = f.DeleteSheet("Sheet1")

	if err := e.writeSchedule(f, from, to, rooms, sorted); err != nil {
		f.Close()
		return nil, err
	}
	if err := e.writeList(f, sorted); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// Write streams the workbook to w.
func (e *Exporter) Write(w io.Writer, from, to time.Time, rooms []*models.Room, bookings []*models.Booking) error {
	f, err := e.Build(from, to, rooms, bookings)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

// SaveToDir writes the workbook under dir and returns its path.
func (e *Exporter) SaveToDir(dir string, from, to time.Time, rooms []*models.Room, bookings []*models.Booking) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}
	f, err := e.Build(from, to, rooms, bookings)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(dir, FileName(e.day(from), e.day(to)))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	return path, nil
}

func FileName(from, to time.Time) string {
	return fmt.Sprintf("bookings_%s_to_%s.xlsx", from.Format(time.DateOnly), to.Format(time.DateOnly))
}

func (e *Exporter) day(t time.Time) time.Time {
	t = t.In(e.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, e.loc)
}

func (e *Exporter) writeSchedule(f *excelize.File, from, to time.Time, rooms []*models.Room, bookings []*models.Booking) error {
	sheet := ScheduleSheet
	_ = f.SetCellValue(sheet, "A1", fmt.Sprintf("Period: %s - %s", from.Format("02.01.2006"), to.Format("02.01.2006")))

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}
	roomStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}
	busyStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#FCE4D6"}, Pattern: 1},
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}

	columns := make(map[string]int)
	col := 2
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		cell, _ := excelize.CoordinatesToCellName(col, 2)
		_ = f.SetCellValue(sheet, cell, d.Format("02.01"))
		_ = f.SetCellStyle(sheet, cell, cell, headerStyle)
		columns[d.Format(time.DateOnly)] = col
		col++
	}

	rows := make(map[int64]int, len(rooms))
	for i, r := range rooms {
		row := 3 + i
		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetCellValue(sheet, cell, fmt.Sprintf("%s (%d)", r.Name, r.Capacity))
		_ = f.SetCellStyle(sheet, cell, cell, roomStyle)
		rows[r.ID] = row
	}

	cells := make(map[string][]string)
	for _, b := range bookings {
		if b.Status == models.StatusCancelled {
			continue
		}
		row, ok := rows[b.RoomID]
		if !ok {
			continue
		}
		start := b.StartTime.In(e.loc)
		c, ok := columns[start.Format(time.DateOnly)]
		if !ok {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(c, row)
		cells[cell] = append(cells[cell], fmt.Sprintf("%s %s-%s %s",
			statusIcon(b.Status), start.Format("15:04"), b.EndTime.In(e.loc).Format("15:04"), b.Title))
	}
	for cell, lines := range cells {
		_ = f.SetCellValue(sheet, cell, strings.Join(lines, "\n"))
		_ = f.SetCellStyle(sheet, cell, cell, busyStyle)
	}

	_ = f.SetColWidth(sheet, "A", "A", 25)
	if col > 2 {
		last, _ := excelize.ColumnNumberToName(col - 1)
		_ = f.SetColWidth(sheet, "B", last, 22)
		_ = f.MergeCell(sheet, "A1", last+"1")
	}
	titleStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err == nil {
		_ = f.SetCellStyle(sheet, "A1", "A1", titleStyle)
	}
	return nil
}

func (e *Exporter) writeList(f *excelize.File, bookings []*models.Booking) error {
	sheet := BookingsSheet
	header := make([]any, len(bookingHeaders))
	for i, h := range bookingHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}

	for i, b := range bookings {
		start := b.StartTime.In(e.loc)
		var approvedBy any
		if b.ApprovedBy != nil {
			approvedBy = *b.ApprovedBy
		}
		row := []any{
			b.ID,
			b.RoomName,
			b.Title,
			start.Format(time.DateOnly),
			start.Format("15:04"),
			b.EndTime.In(e.loc).Format("15:04"),
			b.Status,
			b.CreatedBy,
			approvedBy,
			b.RecurrenceID,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("error writing booking %d: %w", b.ID, err)
		}
	}

	_ = f.SetColWidth(sheet, "B", "C", 24)
	_ = f.SetColWidth(sheet, "J", "J", 38)
	_ = f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	return nil
}

func statusIcon(status string) string {
	switch status {
	case models.StatusConfirmed, models.StatusCompleted:
		return "✅"
	case models.StatusPending:
		return "⏳"
	default:
		return "❓"
	}
}
