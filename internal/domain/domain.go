package domain

// HtsRow is one normalized tariff-schedule entry. Created once during
// preprocessing and immutable afterwards; persisted as a vector payload.
type HtsRow struct {
	HtsCode     string   // original dotted code, e.g. "0101.21.00"
	Digits      string   // separators stripped, e.g. "01012100"
	Prefix4     string   // heading, first 4 digits
	Prefix6     string   // subheading, first 6 digits; empty for short codes
	Description string   // heading-level description
	SpecLevels  []string // hierarchy path below the heading, outermost first
	Unit        string
	RateGeneral string
	RateSpecial string
	RateCol2    string
	Text        string // embedding input
}

// SearchResult is a row matched by a similarity search.
type SearchResult struct {
	Row   HtsRow
	Score float64
}

// Filter restricts store lookups by payload equality. Empty fields are
// unset; set fields are ANDed.
type Filter struct {
	HtsCode string
	Prefix4 string
	Prefix6 string
}

// IsZero reports whether no condition is set.
func (f Filter) IsZero() bool {
	return f.HtsCode == "" && f.Prefix4 == "" && f.Prefix6 == ""
}

// Matches reports whether the row satisfies every set condition.
func (f Filter) Matches(row HtsRow) bool {
	if f.HtsCode != "" && f.HtsCode != row.Digits {
		return false
	}
	if f.Prefix4 != "" && f.Prefix4 != row.Prefix4 {
		return false
	}
	if f.Prefix6 != "" && f.Prefix6 != row.Prefix6 {
		return false
	}
	return true
}

// Option is one selectable answer to a clarifying question.
type Option struct {
	Label         string
	FilterValues  []string // values of the questioned attribute kept by this answer
	Negate        bool     // keep candidates NOT matching FilterValues
	ExpectedCount int
}

// Question asks the user to narrow a candidate set by one attribute.
type Question struct {
	Text      string
	SpecLevel int // -1 means the question is over prefix4 headings
	Options   []Option
}
