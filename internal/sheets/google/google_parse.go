package google

import (
	"fmt"
	"strings"
)

// a1 converts a 1-based row and column into A1 notation on sheet title.
func a1(title string, row, col int) (string, error) {
	if row < 1 || col < 1 {
		return "", fmt.Errorf("invalid cell position row=%d col=%d", row, col)
	}
	return fmt.Sprintf("%s!%s%d", quoteSheet(title), columnLetters(col), row), nil
}

// columnLetters maps 1 -> A, 26 -> Z, 27 -> AA.
func columnLetters(col int) string {
	var b []byte
	for col > 0 {
		col--
		b = append([]byte{byte('A' + col%26)}, b...)
		col /= 26
	}
	return string(b)
}

// quoteSheet wraps a sheet title in single quotes, doubling embedded quotes.
func quoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}
