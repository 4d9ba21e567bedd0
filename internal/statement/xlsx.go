package statement

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/tallysync/internal/domain"
)

// ParseXLSX reads the first worksheet of a workbook. The first non-empty row
// is the header; every following non-empty row becomes one statement line.
func ParseXLSX(r io.Reader) (*Records, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("ParseXLSX: %w: %v", ErrMalformed, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("ParseXLSX: %w: workbook has no sheets", ErrMalformed)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("ParseXLSX: reading rows: %w", err)
	}

	var header []string
	records := &Records{}
	for _, row := range rows {
		if isBlank(row) {
			continue
		}
		if header == nil {
			header = make([]string, len(row))
			for i, cell := range row {
				header[i] = strings.TrimSpace(cell)
			}
			continue
		}

		fields := make(domain.Fields, len(header))
		for i, name := range header {
			if name == "" {
				continue
			}
			if i < len(row) {
				fields[name] = strings.TrimSpace(row[i])
			} else {
				fields[name] = ""
			}
		}
		records.Transactions = append(records.Transactions, fields)
	}

	if header == nil {
		return nil, fmt.Errorf("ParseXLSX: %w: no header row", ErrMalformed)
	}

	return records, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
