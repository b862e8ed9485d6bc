package duty

import (
	"math"
	"testing"

	"htsfinder/internal/domain"
)

func TestParseRate(t *testing.T) {
	tests := []struct {
		in   string
		kind RateKind
		pct  float64
	}{
		{"Free", KindFree, 0},
		{"free ", KindFree, 0},
		{"5%", KindPercentage, 5},
		{"2.5%", KindPercentage, 2.5},
		{"  6.8%  ", KindPercentage, 6.8},
		{"20", KindPercentage, 20},
		{"", KindUnsupported, 0},
		{"See 9903.88.15", KindUnsupported, 0},
	}
	for _, tt := range tests {
		got := ParseRate(tt.in)
		if got.Kind != tt.kind {
			t.Errorf("ParseRate(%q).Kind = %v, want %v", tt.in, got.Kind, tt.kind)
		}
		if got.Kind == KindPercentage && got.Percent != tt.pct {
			t.Errorf("ParseRate(%q).Percent = %v, want %v", tt.in, got.Percent, tt.pct)
		}
	}
}

func TestParseRateUnitBased(t *testing.T) {
	r := ParseRate("2.2¢/kg")
	if r.Kind != KindUnitBased {
		t.Fatalf("Kind = %v, want unit-based", r.Kind)
	}
	if r.Cents != 2.2 || r.Unit != "kg" {
		t.Errorf("Cents/Unit = %v/%q", r.Cents, r.Unit)
	}
}

func testRow() domain.HtsRow {
	return domain.HtsRow{
		HtsCode:     "0101.29.00.10",
		Digits:      "0101290010",
		RateGeneral: "5%",
		RateSpecial: "Free (AU, CL, CO)",
		RateCol2:    "20%",
	}
}

func TestApplicableRate(t *testing.T) {
	row := testRow()
	tests := []struct {
		iso      string
		category string
		kind     RateKind
	}{
		{"DE", "General", KindPercentage},
		{"AU", "Special", KindFree},
		{"cl", "Special", KindFree},
		{"CU", "Column 2", KindPercentage},
		{"RU", "Column 2", KindPercentage},
	}
	for _, tt := range tests {
		category, rate := ApplicableRate(row, tt.iso)
		if category != tt.category {
			t.Errorf("ApplicableRate(%q) category = %q, want %q", tt.iso, category, tt.category)
		}
		if rate.Kind != tt.kind {
			t.Errorf("ApplicableRate(%q) kind = %v, want %v", tt.iso, rate.Kind, tt.kind)
		}
	}
}

func TestLandedCostGeneralOcean(t *testing.T) {
	b := LandedCost(testRow(), Input{BaseValue: 10000, CountryISO: "DE", TransportMode: "Ocean"})
	if b.RateCategory != "General" || b.DutyRatePct != 5 {
		t.Fatalf("breakdown = %+v", b)
	}
	if b.BaseDuty != 500 {
		t.Errorf("BaseDuty = %v, want 500", b.BaseDuty)
	}
	if b.Fees != 48 {
		t.Errorf("Fees = %v, want 48 for ocean", b.Fees)
	}
	if b.LandedCost != 10548 {
		t.Errorf("LandedCost = %v, want 10548", b.LandedCost)
	}
}

func TestLandedCostAdjustments(t *testing.T) {
	b := LandedCost(testRow(), Input{
		BaseValue:     10000,
		CountryISO:    "DE",
		TransportMode: "Air",
		MetalPercent:  40,
		HasExclusion:  true,
	})
	// surcharge: 10000 * 0.40 * 0.05 = 200; exclusion: (500+200)/2 = 350
	if math.Abs(b.MetalSurcharge-200) > 1e-9 {
		t.Errorf("MetalSurcharge = %v, want 200", b.MetalSurcharge)
	}
	if math.Abs(b.ExclusionReduction-350) > 1e-9 {
		t.Errorf("ExclusionReduction = %v, want 350", b.ExclusionReduction)
	}
	if b.Fees != 35 {
		t.Errorf("Fees = %v, want 35 for air", b.Fees)
	}
	if math.Abs(b.TotalDuties-350) > 1e-9 {
		t.Errorf("TotalDuties = %v, want 350", b.TotalDuties)
	}
	if len(b.Notes) != 2 {
		t.Errorf("Notes = %v", b.Notes)
	}
}

func TestLandedCostUnsupportedRateIsNoted(t *testing.T) {
	row := testRow()
	row.RateGeneral = "2.2¢/kg"
	b := LandedCost(row, Input{BaseValue: 1000, CountryISO: "DE"})
	if b.BaseDuty != 0 {
		t.Errorf("BaseDuty = %v, want 0 for unit-based rate", b.BaseDuty)
	}
	if len(b.Notes) == 0 {
		t.Error("expected a note for the unsupported rate")
	}
}
