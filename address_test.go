package focus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		input        string
		defaultSheet string
		want         Address
		str          string
	}{
		{"Sheet1!A1", "", CellAddress("Sheet1", 0, 0), "Sheet1!A1"},
		{"A1", "Data", CellAddress("Data", 0, 0), "Data!A1"},
		{"Sheet1!$B$3", "", CellAddress("Sheet1", 2, 1), "Sheet1!B3"},
		{"Sheet1!A1:B2", "", RangeAddress("Sheet1", 0, 0, 1, 1), "Sheet1!A1:B2"},
		{"Sheet1!B2:A1", "", RangeAddress("Sheet1", 0, 0, 1, 1), "Sheet1!A1:B2"},
		{"'My Sheet'!AA10", "", CellAddress("My Sheet", 9, 26), "My Sheet!AA10"},
		{"'It''s'!C1", "", CellAddress("It's", 0, 2), "It's!C1"},
		{" trim-range!D5 ", "", CellAddress("trim-range", 4, 3), "trim-range!D5"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAddress(tt.input, tt.defaultSheet)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.str, got.String())
		})
	}
}

func TestParseAddressErrors(t *testing.T) {
	for _, input := range []string{"A1", "Sheet1!", "Sheet1!1A", "Sheet1!A1:B2:C3", "Sheet1!A0"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseAddress(input, "")
			require.Error(t, err)
			var appErr *AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, InvalidArgument, appErr.Code)
		})
	}
}

func TestAddressGeometry(t *testing.T) {
	r := MustParseAddress("Sheet1!B2:C4")
	assert.True(t, r.IsRange())
	assert.Equal(t, 6, r.Size())
	assert.Equal(t, MustParseAddress("Sheet1!B2"), r.Start())
	assert.True(t, r.Contains(MustParseAddress("Sheet1!C3")))
	assert.False(t, r.Contains(MustParseAddress("Sheet1!D3")))
	assert.False(t, r.Contains(MustParseAddress("Other!C3")))

	var names []string
	for _, cell := range r.Cells() {
		names = append(names, cell.CellName())
	}
	assert.Equal(t, []string{"B2", "C2", "B3", "C3", "B4", "C4"}, names)

	single := MustParseAddress("Sheet1!A1")
	assert.False(t, single.IsRange())
	assert.Equal(t, []Address{single}, single.Cells())
}

func TestAddressCompare(t *testing.T) {
	assert.Negative(t, MustParseAddress("A!Z1").Compare(MustParseAddress("B!A1")))
	assert.Negative(t, MustParseAddress("Sheet1!Z1").Compare(MustParseAddress("Sheet1!A2")))
	assert.Positive(t, MustParseAddress("Sheet1!B10").Compare(MustParseAddress("Sheet1!B9")))
	assert.Zero(t, MustParseAddress("Sheet1!C3").Compare(MustParseAddress("Sheet1!$C$3")))
}

func TestQuoteSheet(t *testing.T) {
	assert.Equal(t, "Sheet1", quoteSheet("Sheet1"))
	assert.Equal(t, "'My Sheet'", quoteSheet("My Sheet"))
	assert.Equal(t, "'It''s'", quoteSheet("It's"))
	assert.Equal(t, "'trim-range'", quoteSheet("trim-range"))
}
