// Package duty parses tariff rate strings and estimates landed cost for a
// classified row.
package duty

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"htsfinder/internal/domain"
)

// RateKind classifies a parsed duty-rate string.
type RateKind int

const (
	KindFree RateKind = iota
	KindPercentage
	KindUnitBased // e.g. "2.5¢/kg"; needs quantity data we do not carry
	KindUnsupported
)

// Rate is a parsed duty-rate string.
type Rate struct {
	Kind    RateKind
	Percent float64 // set for KindPercentage
	Cents   float64 // set for KindUnitBased
	Unit    string  // set for KindUnitBased
	Raw     string
}

var (
	percentRe = regexp.MustCompile(`(\d+\.?\d*)\s*%`)
	unitRe    = regexp.MustCompile(`(\d+\.?\d*)\s*¢\s*/\s*(\w+)`)
	isoRe     = regexp.MustCompile(`\(([A-Za-z]{2})\)`)
)

// ParseRate parses strings like "Free", "5%", "2.5¢/kg" or a bare number
// (treated as a percentage, common in Column 2 rates).
func ParseRate(s string) Rate {
	raw := strings.TrimSpace(s)
	if strings.Contains(strings.ToLower(raw), "free") {
		return Rate{Kind: KindFree, Raw: raw}
	}
	if m := percentRe.FindStringSubmatch(raw); m != nil {
		pct, _ := strconv.ParseFloat(m[1], 64)
		return Rate{Kind: KindPercentage, Percent: pct, Raw: raw}
	}
	if m := unitRe.FindStringSubmatch(raw); m != nil {
		cents, _ := strconv.ParseFloat(m[1], 64)
		return Rate{Kind: KindUnitBased, Cents: cents, Unit: m[2], Raw: raw}
	}
	if pct, err := strconv.ParseFloat(raw, 64); err == nil {
		return Rate{Kind: KindPercentage, Percent: pct, Raw: raw}
	}
	return Rate{Kind: KindUnsupported, Raw: raw}
}

// column2Countries are subject to the Column 2 statutory rates.
var column2Countries = map[string]struct{}{
	"CU": {},
	"KP": {},
	"BY": {},
	"RU": {},
}

// ApplicableRate picks which of the row's rates applies to imports from
// the given ISO country code: Column 2 countries first, then countries
// named in the Special rate, then the General rate.
func ApplicableRate(row domain.HtsRow, countryISO string) (category string, rate Rate) {
	iso := strings.ToUpper(strings.TrimSpace(countryISO))
	if _, ok := column2Countries[iso]; ok {
		return "Column 2", ParseRate(row.RateCol2)
	}
	for _, m := range isoRe.FindAllStringSubmatch(row.RateSpecial, -1) {
		if strings.ToUpper(m[1]) == iso {
			return "Special", ParseRate(row.RateSpecial)
		}
	}
	return "General", ParseRate(row.RateGeneral)
}

// Input describes one shipment for cost estimation.
type Input struct {
	BaseValue     float64
	CountryISO    string
	TransportMode string // "Ocean", "Air", "Rail", "Truck"
	HasExclusion  bool   // Chapter 99 exclusion applies
	MetalPercent  float64
}

// Breakdown is the itemized landed-cost estimate.
type Breakdown struct {
	BaseValue          float64
	RateCategory       string
	DutyRatePct        float64
	BaseDuty           float64
	MetalSurcharge     float64
	ExclusionReduction float64
	TotalDuties        float64
	Fees               float64 // MPF, plus HMF for ocean freight
	LandedCost         float64
	Notes              []string
}

// Fee constants: merchandise processing fee, plus harbor maintenance fee
// for ocean shipments.
const (
	mpfFee = 35.00
	hmfFee = 13.00
)

// LandedCost estimates the total cost of importing under the row's
// classification. Unit-based rates cannot be computed without quantity
// data and are flagged in Notes with a zero duty estimate.
func LandedCost(row domain.HtsRow, in Input) Breakdown {
	category, rate := ApplicableRate(row, in.CountryISO)
	b := Breakdown{BaseValue: in.BaseValue, RateCategory: category}

	switch rate.Kind {
	case KindPercentage:
		b.DutyRatePct = rate.Percent
		b.BaseDuty = in.BaseValue * rate.Percent / 100.0
	case KindFree:
		// zero duty
	default:
		b.Notes = append(b.Notes, fmt.Sprintf("automated duty calculation is not supported for rate %q; duty estimated as $0", rate.Raw))
	}

	if in.MetalPercent > 0 {
		b.MetalSurcharge = in.BaseValue * (in.MetalPercent / 100.0) * 0.05
		b.Notes = append(b.Notes, fmt.Sprintf("added $%.2f surcharge for %.0f%% metal content", b.MetalSurcharge, in.MetalPercent))
	}
	if in.HasExclusion {
		b.ExclusionReduction = (b.BaseDuty + b.MetalSurcharge) * 0.50
		b.Notes = append(b.Notes, fmt.Sprintf("applied $%.2f Chapter 99 exclusion reduction", b.ExclusionReduction))
	}
	b.TotalDuties = b.BaseDuty + b.MetalSurcharge - b.ExclusionReduction

	if strings.EqualFold(in.TransportMode, "Ocean") {
		b.Fees = mpfFee + hmfFee
	} else {
		b.Fees = mpfFee
	}
	b.LandedCost = in.BaseValue + b.TotalDuties + b.Fees
	return b
}
