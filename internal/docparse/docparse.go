// Package docparse turns uploaded book lists into plain text for the import assistant.
package docparse

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Kind tells whether Text is free prose or table rows
type Kind string

const (
	KindText  Kind = "text"
	KindTable Kind = "table"
)

// CellSeparator joins the cells of one table row
const CellSeparator = " | "

// Extensions lists the accepted file extensions
var Extensions = []string{".docx", ".pdf", ".xlsx", ".xls"}

var (
	ErrUnsupportedFormat = errors.New("unsupported file format, use .docx, .pdf, .xlsx or .xls")
	ErrEmpty             = errors.New("file contains no text")
)

// Result is the extracted content of one file
type Result struct {
	Kind Kind
	Text string
	// Rows holds the cells of the first sheet for spreadsheets
	Rows [][]string
}

// IsTable reports whether the text came from a spreadsheet
func (r Result) IsTable() bool {
	return r.Kind == KindTable
}

// Supported reports whether name has an extension Parse accepts
func Supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Parse extracts text from data, choosing the reader by the extension of name
func Parse(name string, data []byte) (Result, error) {
	var (
		res Result
		err error
	)

	switch strings.ToLower(filepath.Ext(name)) {
	case ".docx":
		res, err = parseDocx(data)
		if err != nil {
			return Result{}, fmt.Errorf("failed to read word file: %w", err)
		}
	case ".pdf":
		res, err = parsePDF(data)
		if err != nil {
			return Result{}, fmt.Errorf("failed to read pdf file: %w", err)
		}
	case ".xlsx":
		res, err = parseXLSX(data)
		if err != nil {
			return Result{}, fmt.Errorf("failed to read excel file: %w", err)
		}
	case ".xls":
		res, err = parseXLS(data)
		if err != nil {
			return Result{}, fmt.Errorf("failed to read excel file: %w", err)
		}
	default:
		return Result{}, fmt.Errorf("%s: %w", name, ErrUnsupportedFormat)
	}

	if strings.TrimSpace(res.Text) == "" {
		return Result{}, fmt.Errorf("%s: %w", name, ErrEmpty)
	}
	return res, nil
}

func tableResult(rows [][]string) Result {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, strings.Join(row, CellSeparator))
	}
	return Result{
		Kind: KindTable,
		Text: strings.Join(lines, "\n"),
		Rows: rows,
	}
}
