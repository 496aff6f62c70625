package wealth

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/mizanhq/mizan/internal/domain"
)

func asset(value string, zakatable bool) domain.Asset {
	return domain.Asset{
		Name:        "test asset",
		Category:    "CASH",
		Value:       decimal.RequireFromString(value),
		IsZakatable: zakatable,
	}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name          string
		assets        []domain.Asset
		wantTotal     string
		wantZakatable string
	}{
		{
			name:          "empty",
			assets:        nil,
			wantTotal:     "0",
			wantZakatable: "0",
		},
		{
			name: "all zakatable",
			assets: []domain.Asset{
				asset("5000", true),
				asset("1500", true),
			},
			wantTotal:     "6500",
			wantZakatable: "6500",
		},
		{
			name: "mixed",
			assets: []domain.Asset{
				asset("5000", true),
				asset("20000", false),
				asset("250.75", true),
			},
			wantTotal:     "25250.75",
			wantZakatable: "5250.75",
		},
		{
			name: "exact decimal sums",
			assets: []domain.Asset{
				asset("0.1", true),
				asset("0.2", true),
			},
			wantTotal:     "0.3",
			wantZakatable: "0.3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			totals := Aggregate(tt.assets)
			assert.True(t, totals.TotalWealth.Equal(decimal.RequireFromString(tt.wantTotal)),
				"total: got %s want %s", totals.TotalWealth, tt.wantTotal)
			assert.True(t, totals.ZakatableWealth.Equal(decimal.RequireFromString(tt.wantZakatable)),
				"zakatable: got %s want %s", totals.ZakatableWealth, tt.wantZakatable)
		})
	}
}

func TestZakatDue(t *testing.T) {
	tests := []struct {
		zakatable string
		want      string
	}{
		{"6500", "162.5"},
		{"10000", "250"},
		{"0", "0"},
		{"0.01", "0.00025"},
	}

	for _, tt := range tests {
		got := ZakatDue(decimal.RequireFromString(tt.zakatable))
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
			"zakat(%s): got %s want %s", tt.zakatable, got, tt.want)
	}
}
