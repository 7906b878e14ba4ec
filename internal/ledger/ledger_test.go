package ledger

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/indranil/pokerledger/internal/models"
)

func day(s string) decimal.NullDecimal {
	return models.ParseDay(s)
}

func TestCompute(t *testing.T) {
	twenty := decimal.NewFromInt(20)

	tests := []struct {
		name       string
		start      decimal.Decimal
		buyIns     int
		days       []decimal.NullDecimal
		wantPL     string
		wantPlayed int
	}{
		{
			name:       "three winning days",
			start:      twenty,
			buyIns:     0,
			days:       []decimal.NullDecimal{day("35"), day("42"), day("50")},
			wantPL:     "67",
			wantPlayed: 3,
		},
		{
			name:       "no days played ignores buy-ins",
			start:      twenty,
			buyIns:     3,
			days:       []decimal.NullDecimal{day(""), day(""), day("")},
			wantPL:     "0",
			wantPlayed: 0,
		},
		{
			name:       "day equal to start contributes zero",
			start:      twenty,
			buyIns:     0,
			days:       []decimal.NullDecimal{day("20")},
			wantPL:     "0",
			wantPlayed: 1,
		},
		{
			name:       "busted day counts as played",
			start:      twenty,
			buyIns:     0,
			days:       []decimal.NullDecimal{day("0")},
			wantPL:     "-20",
			wantPlayed: 1,
		},
		{
			name:       "buy-ins subtracted once",
			start:      twenty,
			buyIns:     2,
			days:       []decimal.NullDecimal{day("60"), day("25")},
			wantPL:     "5", // (60-20)+(25-20) - 2*20
			wantPlayed: 2,
		},
		{
			name:       "non-numeric day treated as absent",
			start:      twenty,
			buyIns:     0,
			days:       []decimal.NullDecimal{day("abc"), day("30")},
			wantPL:     "10",
			wantPlayed: 1,
		},
		{
			name:       "gaps between played days",
			start:      twenty,
			buyIns:     1,
			days:       []decimal.NullDecimal{day("50"), day(""), day("10"), day(""), day("40")},
			wantPL:     "20", // 30 - 10 + 20 - 20
			wantPlayed: 3,
		},
		{
			name:       "decimal chip counts accumulate exactly",
			start:      decimal.RequireFromString("20.50"),
			buyIns:     0,
			days:       []decimal.NullDecimal{day("20.60"), day("20.60"), day("20.60")},
			wantPL:     "0.3",
			wantPlayed: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pl, played := Compute(tt.start, tt.buyIns, models.BuyInValue, tt.days)
			if want := decimal.RequireFromString(tt.wantPL); !pl.Equal(want) {
				t.Errorf("Compute() pl = %s, want %s", pl, want)
			}
			if played != tt.wantPlayed {
				t.Errorf("Compute() daysPlayed = %d, want %d", played, tt.wantPlayed)
			}
		})
	}
}

func TestComputeDeterministic(t *testing.T) {
	days := []decimal.NullDecimal{day("35.25"), day("42.75"), day("0")}
	first, _ := Compute(models.DefaultStake, 2, models.BuyInValue, days)
	for i := 0; i < 10; i++ {
		pl, _ := Compute(models.DefaultStake, 2, models.BuyInValue, days)
		if !pl.Equal(first) {
			t.Fatalf("run %d: pl = %s, want %s", i, pl, first)
		}
	}
}
