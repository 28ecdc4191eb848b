package docparse

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

var errNoSheets = errors.New("workbook has no sheets")

// parseXLSX reads the first sheet of an Office Open XML workbook
func parseXLSX(data []byte) (Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Result{}, errNoSheets
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Result{}, err
	}
	return tableResult(rows), nil
}

// parseXLS reads the first sheet of a legacy BIFF workbook
func parseXLS(data []byte) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed xls: %v", r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return Result{}, err
	}
	if wb.NumSheets() == 0 {
		return Result{}, errNoSheets
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return Result{}, errNoSheets
	}

	var rows [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheetRow(sheet, i)
		if row == nil {
			continue
		}
		// LastCol is one past the last used column
		cells := make([]string, 0, row.LastCol())
		for c := 0; c < row.LastCol(); c++ {
			cells = append(cells, row.Col(c))
		}
		rows = append(rows, cells)
	}
	return tableResult(rows), nil
}

// sheetRow returns nil for rows the sheet does not contain
func sheetRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}
