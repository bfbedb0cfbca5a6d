package sheets

import (
	"fmt"
	"strconv"
	"strings"
)

// ColumnLetters converts a 1-based column number to A1 letters (1 → A,
// 27 → AA).
func ColumnLetters(col int) string {
	if col < 1 {
		return ""
	}
	var b []byte
	for col > 0 {
		col--
		b = append([]byte{byte('A' + col%26)}, b...)
		col /= 26
	}
	return string(b)
}

// QuoteSheet quotes a sheet title for use in an A1 range.
func QuoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// CellRange is the A1 range of one cell.
func CellRange(sheet string, row, col int) string {
	return fmt.Sprintf("%s!%s%d", QuoteSheet(sheet), ColumnLetters(col), row)
}

// RowRange is the A1 range of a whole row.
func RowRange(sheet string, row int) string {
	return fmt.Sprintf("%s!%d:%d", QuoteSheet(sheet), row, row)
}

// RowFromRange extracts the first row number of an A1 range such as
// "'RAW_DEALS'!A5:C5".
func RowFromRange(r string) (int, error) {
	if i := strings.LastIndex(r, "!"); i >= 0 {
		r = r[i+1:]
	}
	r = strings.TrimLeft(r, "ABCDEFGHIJKLMNOPQRSTUVWXYZ$")
	end := 0
	for end < len(r) && r[end] >= '0' && r[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(r[:end])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("no row number in range %q", r)
	}
	return n, nil
}
