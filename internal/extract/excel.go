package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractExcel renders each sheet as a header line followed by one line per data row:
//
//	Columns: Name, Age
//
//	Row 1: Alice, 30
//
// Every line is its own paragraph so large sheets chunk on row boundaries.
func extractExcel(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	var sheets []string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		lines := []string{"Columns: " + strings.Join(rows[0], ", ")}
		for i, row := range rows[1:] {
			lines = append(lines, fmt.Sprintf("Row %d: %s", i+1, strings.Join(row, ", ")))
		}
		sheets = append(sheets, strings.Join(lines, "\n\n"))
	}
	return strings.Join(sheets, "\n\n"), nil
}
