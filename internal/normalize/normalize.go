package normalize

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"htsfinder/internal/domain"
)

const (
	// Codes need at least a full heading to be classifiable.
	minDigits     = 4
	subheadingLen = 6
)

// RawRow carries the string fields of one schedule entry before
// normalization.
type RawRow struct {
	Code        string
	Description string
	SpecLevels  []string
	Unit        string
	RateGeneral string
	RateSpecial string
	RateCol2    string
}

// NormalizeRow converts a raw row into an HtsRow. The code is reduced to
// its digits; prefixes are derived by truncation. Prefix6 stays empty for
// codes shorter than six digits, they remain reachable via prefix4 and
// exact lookup.
func NormalizeRow(raw RawRow) (domain.HtsRow, error) {
	digits := Digits(raw.Code)
	if len(digits) < minDigits {
		return domain.HtsRow{}, &domain.ValidationError{Field: "hts_code", Reason: fmt.Sprintf("need at least %d digits, got %q", minDigits, raw.Code)}
	}
	prefix6 := ""
	if len(digits) >= subheadingLen {
		prefix6 = digits[:subheadingLen]
	}

	parts := make([]string, 0, 1+len(raw.SpecLevels))
	if d := collapseSpaces(raw.Description); d != "" {
		parts = append(parts, d)
	}
	for _, lvl := range raw.SpecLevels {
		if v := collapseSpaces(lvl); v != "" {
			parts = append(parts, v)
		}
	}
	text := strings.Join(parts, " ")
	if text == "" {
		return domain.HtsRow{}, &domain.ValidationError{Field: "description", Reason: "empty text after normalization"}
	}

	return domain.HtsRow{
		HtsCode:     strings.TrimSpace(raw.Code),
		Digits:      digits,
		Prefix4:     digits[:minDigits],
		Prefix6:     prefix6,
		Description: collapseSpaces(raw.Description),
		SpecLevels:  trimLevels(raw.SpecLevels),
		Unit:        strings.TrimSpace(raw.Unit),
		RateGeneral: strings.TrimSpace(raw.RateGeneral),
		RateSpecial: strings.TrimSpace(raw.RateSpecial),
		RateCol2:    strings.TrimSpace(raw.RateCol2),
		Text:        text,
	}, nil
}

// Columns maps schedule concepts to CSV header names.
type Columns struct {
	Code        string `yaml:"code"`
	Indent      string `yaml:"indent"`
	Description string `yaml:"description"`
	Unit        string `yaml:"unit"`
	RateGeneral string `yaml:"rate_general"`
	RateSpecial string `yaml:"rate_special"`
	RateCol2    string `yaml:"rate_col2"`
}

// DefaultColumns returns the header names of the USITC CSV export.
func DefaultColumns() Columns {
	return Columns{
		Code:        "HTS Number",
		Indent:      "Indent",
		Description: "Description",
		Unit:        "Unit of Quantity",
		RateGeneral: "General Rate of Duty",
		RateSpecial: "Special Rate of Duty",
		RateCol2:    "Column 2 Rate of Duty",
	}
}

// Flattener streams a raw schedule CSV and expands its indent hierarchy
// into self-contained rows. Duty rates and units inherit from the nearest
// ancestor that set them.
type Flattener struct {
	cols       Columns
	maxLevels  int
	leafDigits int
}

// Option configures a Flattener.
type Option func(*Flattener)

// WithLeafDigits sets the minimum digit count for a row to be emitted.
// The default of 10 emits only full statistical-suffix codes.
func WithLeafDigits(n int) Option {
	return func(f *Flattener) {
		if n >= minDigits {
			f.leafDigits = n
		}
	}
}

// WithMaxLevels caps the tracked hierarchy depth.
func WithMaxLevels(n int) Option {
	return func(f *Flattener) {
		if n > 0 {
			f.maxLevels = n
		}
	}
}

func NewFlattener(cols Columns, opts ...Option) *Flattener {
	f := &Flattener{cols: cols, maxLevels: 10, leafDigits: 10}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Result reports the outcome of one Flatten pass.
type Result struct {
	Rows    []domain.HtsRow
	Skipped int // leaf candidates that failed normalization
}

type inherited struct {
	unit, general, special, col2 string
}

// Flatten reads the CSV and returns the normalized leaf rows. The header
// row is required and must contain the code and description columns.
// Rows failing normalization are counted in Result.Skipped, not fatal.
func (f *Flattener) Flatten(r io.Reader) (Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return Result{}, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	codeIdx, ok := idx[f.cols.Code]
	if !ok {
		return Result{}, fmt.Errorf("missing required column %q", f.cols.Code)
	}
	descIdx, ok := idx[f.cols.Description]
	if !ok {
		return Result{}, fmt.Errorf("missing required column %q", f.cols.Description)
	}
	indentIdx, hasIndent := idx[f.cols.Indent]
	unitIdx, unitOK := idx[f.cols.Unit]
	genIdx, genOK := idx[f.cols.RateGeneral]
	specIdx, specOK := idx[f.cols.RateSpecial]
	col2Idx, col2OK := idx[f.cols.RateCol2]

	field := func(rec []string, i int, ok bool) string {
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	levels := make([]string, f.maxLevels+1)
	duties := make([]inherited, f.maxLevels+1)
	var res Result

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Skipped++
			continue
		}

		desc := field(rec, descIdx, true)
		indent := 0
		if hasIndent {
			if n, err := strconv.Atoi(field(rec, indentIdx, true)); err == nil {
				indent = n
			}
		}
		if indent < 0 {
			indent = 0
		}
		if indent > f.maxLevels {
			indent = f.maxLevels
		}

		if desc != "" {
			levels[indent] = desc
			for i := indent + 1; i <= f.maxLevels; i++ {
				levels[i] = ""
				duties[i] = inherited{}
			}
		}
		if v := field(rec, unitIdx, unitOK); v != "" {
			duties[indent].unit = v
		}
		if v := field(rec, genIdx, genOK); v != "" {
			duties[indent].general = v
		}
		if v := field(rec, specIdx, specOK); v != "" {
			duties[indent].special = v
		}
		if v := field(rec, col2Idx, col2OK); v != "" {
			duties[indent].col2 = v
		}

		code := field(rec, codeIdx, true)
		if len(Digits(code)) < f.leafDigits {
			continue
		}

		raw := RawRow{
			Code:        code,
			Description: levels[0],
			SpecLevels:  nonEmpty(levels[1 : indent+1]),
			Unit:        f.effective(duties, indent, func(d inherited) string { return d.unit }),
			RateGeneral: f.effective(duties, indent, func(d inherited) string { return d.general }),
			RateSpecial: f.effective(duties, indent, func(d inherited) string { return d.special }),
			RateCol2:    f.effective(duties, indent, func(d inherited) string { return d.col2 }),
		}
		row, err := NormalizeRow(raw)
		if err != nil {
			res.Skipped++
			continue
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

// effective walks from the row's indent up to the root and returns the
// first inherited value set on the path.
func (f *Flattener) effective(duties []inherited, indent int, get func(inherited) string) string {
	for i := indent; i >= 0; i-- {
		if v := get(duties[i]); v != "" {
			return v
		}
	}
	return ""
}

// Digits strips everything but ASCII digits from a code.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func nonEmpty(levels []string) []string {
	var out []string
	for _, l := range levels {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

func trimLevels(levels []string) []string {
	var out []string
	for _, l := range levels {
		if v := collapseSpaces(l); v != "" {
			out = append(out, v)
		}
	}
	return out
}
