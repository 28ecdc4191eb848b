package docparse

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body +
		`</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func buildXLSX(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParseDocx(t *testing.T) {
	data := buildDocx(t,
		`<w:p><w:r><w:t>Danh sách sách</w:t></w:r></w:p>`+
			`<w:p><w:r><w:t>Truyện Kiều</w:t></w:r><w:r><w:tab/><w:t xml:space="preserve"> Nguyễn Du</w:t></w:r></w:p>`+
			`<w:p><w:r><w:t>Số đỏ</w:t><w:br/><w:t>Vũ Trọng Phụng</w:t></w:r></w:p>`)

	res, err := Parse("Danh-sach.DOCX", data)
	require.NoError(t, err)

	assert.Equal(t, KindText, res.Kind)
	assert.False(t, res.IsTable())
	assert.Equal(t, "Danh sách sách\nTruyện Kiều\t Nguyễn Du\nSố đỏ\nVũ Trọng Phụng", res.Text)
}

func TestParseXLSX(t *testing.T) {
	data := buildXLSX(t, [][]any{
		{"Tên sách", "Tác giả", "Số lượng"},
		{"Truyện Kiều", "Nguyễn Du", 3},
		{"Nhà giả kim", "Paulo Coelho", 8},
	})

	res, err := Parse("books.xlsx", data)
	require.NoError(t, err)

	assert.True(t, res.IsTable())
	assert.Equal(t, "Tên sách | Tác giả | Số lượng\nTruyện Kiều | Nguyễn Du | 3\nNhà giả kim | Paulo Coelho | 8", res.Text)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, []string{"Truyện Kiều", "Nguyễn Du", "3"}, res.Rows[1])
}

func TestParseErrors(t *testing.T) {
	testCases := []struct {
		name     string
		filename string
		data     []byte
		wantErr  error
	}{
		{name: "unsupported extension", filename: "books.txt", data: []byte("Truyện Kiều"), wantErr: ErrUnsupportedFormat},
		{name: "no extension", filename: "books", data: []byte("x"), wantErr: ErrUnsupportedFormat},
		{name: "empty docx", filename: "a.docx", data: buildDocx(t, `<w:p></w:p>`), wantErr: ErrEmpty},
		{name: "empty sheet", filename: "a.xlsx", data: buildXLSX(t, nil), wantErr: ErrEmpty},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.filename, tc.data)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestParseCorruptFiles(t *testing.T) {
	for _, name := range []string{"a.docx", "a.pdf", "a.xlsx", "a.xls"} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(name, []byte("definitely not a document"))
			require.Error(t, err)
			assert.NotErrorIs(t, err, ErrUnsupportedFormat)
		})
	}
}

func TestParseDocxWithoutBody(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("word/styles.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = Parse("a.docx", buf.Bytes())
	assert.ErrorContains(t, err, "word/document.xml not found")
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("a.PDF"))
	assert.True(t, Supported("dir/list.xls"))
	assert.False(t, Supported("a.doc"))
	assert.False(t, Supported("xlsx"))
}
