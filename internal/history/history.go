// Package history filters the local attendance list by day and exports it
// as CSV or XLSX for spreadsheet users.
package history

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"officeclock/internal/records"
)

// DayLayout is the YYYY-MM-DD form used by the range filter.
const DayLayout = "2006-01-02"

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"

	sheetName = "Attendance"
)

var (
	ErrInvalidRange  = errors.New("from must not be after to")
	ErrUnknownFormat = errors.New("unknown export format")
)

// Header is the localized export header row.
var Header = []string{"Mã NV", "Họ tên", "Ngày", "Giờ", "Loại", "Trạng thái", "Độ chính xác"}

// Range is an inclusive span of local calendar days.
type Range struct {
	From string
	To   string
}

// Today returns a single-day range for now in loc.
func Today(now time.Time, loc *time.Location) Range {
	d := now.In(loc).Format(DayLayout)
	return Range{From: d, To: d}
}

// ParseRange validates from and to. Empty bounds default to today.
func ParseRange(from, to string, now time.Time, loc *time.Location) (Range, error) {
	r := Today(now, loc)
	if from != "" {
		r.From = from
	}
	if to != "" {
		r.To = to
	}
	for _, d := range []string{r.From, r.To} {
		if _, err := time.ParseInLocation(DayLayout, d, loc); err != nil {
			return Range{}, fmt.Errorf("invalid day %q: %w", d, err)
		}
	}
	if r.From > r.To {
		return Range{}, ErrInvalidRange
	}
	return r, nil
}

// Filter keeps records whose local day falls in r, newest first.
func Filter(recs []records.AttendanceRecord, r Range, loc *time.Location) []records.AttendanceRecord {
	out := make([]records.AttendanceRecord, 0, len(recs))
	for _, rec := range recs {
		day := rec.Timestamp.In(loc).Format(DayLayout)
		if day >= r.From && day <= r.To {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// Filename is the download name for an export of r.
func Filename(r Range, format string) string {
	return fmt.Sprintf("attendance_%s_to_%s.%s", r.From, r.To, format)
}

// Row renders one record as export cells.
func Row(rec records.AttendanceRecord, loc *time.Location) []string {
	t := rec.Timestamp.In(loc)
	direction := "Ra ca"
	if rec.Type == records.CheckIn {
		direction = "Vào ca"
	}
	status := "Thất bại"
	if rec.Status == records.StatusSuccess {
		status = "Thành công"
	}
	return []string{
		rec.EmployeeID,
		rec.EmployeeName,
		t.Format("02/01/2006"),
		t.Format("15:04:05"),
		direction,
		status,
		fmt.Sprintf("%d%%", int(math.Round(rec.Confidence*100))),
	}
}

// WriteCSV writes a UTF-8 BOM, the header and one line per record.
func WriteCSV(w io.Writer, recs []records.AttendanceRecord, loc *time.Location) error {
	if _, err := io.WriteString(w, "\ufeff"); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, rec := range recs {
		if err := cw.Write(Row(rec, loc)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes a single-sheet workbook with the same columns as WriteCSV.
func WriteXLSX(w io.Writer, recs []records.AttendanceRecord, loc *time.Location) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}
	if err := setRow(f, 1, Header); err != nil {
		return err
	}
	for i, rec := range recs {
		if err := setRow(f, i+2, Row(rec, loc)); err != nil {
			return err
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, n int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	row := make([]interface{}, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return f.SetSheetRow(sheetName, cell, &row)
}

// Write dispatches on format.
func Write(w io.Writer, format string, recs []records.AttendanceRecord, loc *time.Location) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, recs, loc)
	case FormatXLSX:
		return WriteXLSX(w, recs, loc)
	default:
		return ErrUnknownFormat
	}
}

// ContentType returns the MIME type for format.
func ContentType(format string) string {
	if format == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}
