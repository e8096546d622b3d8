package money_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/splitledger/internal/money"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "12.50", want: 1250},
		{in: "1,234.56", want: 123456},
		{in: "-3", want: -300},
		{in: " 0.07 ", want: 7},
		{in: "300.00", want: 30000},
		{in: "0.001", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := money.Parse(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, money.ErrInvalidAmount)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "12.50", money.Format(1250))
	assert.Equal(t, "-0.05", money.Format(-5))
	assert.Equal(t, "0.00", money.Format(0))
	assert.Equal(t, "1000.00", money.Format(100000))
}
