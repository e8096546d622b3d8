package sheet_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/splitledger/internal/importer/sheet"
)

func TestRead_SemicolonSeparated(t *testing.T) {
	s, err := sheet.Read(strings.NewReader("Date;Cost\n2024-03-01;12,50\n"))
	require.NoError(t, err)

	assert.Equal(t, "UTF-8", s.Charset)
	assert.Equal(t, [][]string{{"Date", "Cost"}, {"2024-03-01", "12,50"}}, s.Rows)
}

func TestHeaderColumns(t *testing.T) {
	cols := sheet.HeaderColumns([]string{" Date ", "COST", "", "cost"})

	assert.True(t, cols.Has("date", "cost"))
	assert.False(t, cols.Has("payer"))
	assert.Equal(t, 1, cols.Index("cost"))
	assert.Equal(t, -1, cols.Index("payer"))
}

func TestFindHeader(t *testing.T) {
	rows := [][]string{{"Exported by someone"}, {}, {"Date", "Cost"}, {"2024-03-01", "1"}}

	idx := sheet.FindHeader(rows, func(c sheet.Columns) bool { return c.Has("date", "cost") })
	assert.Equal(t, 2, idx)

	idx = sheet.FindHeader(rows, func(c sheet.Columns) bool { return c.Has("payer") })
	assert.Equal(t, -1, idx)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "12.50", want: 1250},
		{in: "-588,74", want: -58874},
		{in: "1.234,56", want: 123456},
		{in: "1,234.56", want: 123456},
		{in: "+3", want: 300},
		{in: "0.001", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := sheet.ParseAmount(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for _, in := range []string{"2024-03-01", "01/03/2024", "01-03-2024", "Mar 1, 2024"} {
		got, err := sheet.ParseDate(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), in)
	}

	_, err := sheet.ParseDate("yesterday")
	assert.Error(t, err)
}

func TestCellAndBlank(t *testing.T) {
	row := []string{" a ", ""}

	assert.Equal(t, "a", sheet.Cell(row, 0))
	assert.Equal(t, "", sheet.Cell(row, 5))
	assert.Equal(t, "", sheet.Cell(row, -1))
	assert.False(t, sheet.Blank(row))
	assert.True(t, sheet.Blank([]string{" ", ""}))
}
