package service

import (
	"fmt"
	"sort"
	"strings"

	"htsfinder/internal/domain"
)

// maxOptions caps how many answers one question offers; remaining values
// collapse into an "Other" option.
const maxOptions = 4

// GenerateQuestion builds a clarifying question that splits the candidate
// set. Candidates spanning several headings ask for the heading first;
// otherwise the first specification level with more than one distinct
// value is questioned. Returns nil when nothing can narrow the set.
func GenerateQuestion(candidates []domain.HtsRow) *domain.Question {
	if len(candidates) <= 1 {
		return nil
	}
	if q := headingQuestion(candidates); q != nil {
		return q
	}
	depth := 0
	for _, c := range candidates {
		if len(c.SpecLevels) > depth {
			depth = len(c.SpecLevels)
		}
	}
	for level := 0; level < depth; level++ {
		counts := map[string]int{}
		for _, c := range candidates {
			if v := specLevel(c, level); v != "" {
				counts[v]++
			}
		}
		if len(counts) <= 1 {
			continue
		}
		opts := buildOptions(counts)
		text := questionText(level, keys(counts))
		if len(opts) == 2 && opts[1].Negate {
			// A yes/no pair must name the value "Yes" stands for.
			text = fmt.Sprintf("Is it %s?", opts[0].FilterValues[0])
		}
		return &domain.Question{
			Text:      text,
			SpecLevel: level,
			Options:   opts,
		}
	}
	return nil
}

// ApplyAnswer filters candidates by the chosen option.
func ApplyAnswer(candidates []domain.HtsRow, q domain.Question, opt domain.Option) []domain.HtsRow {
	keep := make(map[string]struct{}, len(opt.FilterValues))
	for _, v := range opt.FilterValues {
		keep[v] = struct{}{}
	}
	var out []domain.HtsRow
	for _, c := range candidates {
		var v string
		if q.SpecLevel < 0 {
			v = c.Prefix4
		} else {
			v = specLevel(c, q.SpecLevel)
		}
		_, matched := keep[v]
		if matched != opt.Negate {
			out = append(out, c)
		}
	}
	return out
}

func headingQuestion(candidates []domain.HtsRow) *domain.Question {
	counts := map[string]int{}
	desc := map[string]string{}
	for _, c := range candidates {
		counts[c.Prefix4]++
		if _, ok := desc[c.Prefix4]; !ok {
			desc[c.Prefix4] = c.Description
		}
	}
	if len(counts) <= 1 {
		return nil
	}
	prefixes := keys(counts)
	sort.Strings(prefixes)
	opts := make([]domain.Option, 0, len(prefixes))
	for _, p := range prefixes {
		label := p
		if d := desc[p]; d != "" {
			label = fmt.Sprintf("%s — %s", p, truncate(d, 60))
		}
		opts = append(opts, domain.Option{
			Label:         label,
			FilterValues:  []string{p},
			ExpectedCount: counts[p],
		})
	}
	return &domain.Question{
		Text:      "Which heading does the product fall under?",
		SpecLevel: -1,
		Options:   opts,
	}
}

func buildOptions(counts map[string]int) []domain.Option {
	type vc struct {
		value string
		count int
	}
	sorted := make([]vc, 0, len(counts))
	for v, c := range counts {
		sorted = append(sorted, vc{v, c})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].count != sorted[j].count {
			return sorted[i].count > sorted[j].count
		}
		return sorted[i].value < sorted[j].value
	})

	if len(sorted) == 2 {
		main := sorted[0]
		rest := sorted[1]
		return []domain.Option{
			{Label: "Yes", FilterValues: []string{main.value}, ExpectedCount: main.count},
			{Label: "No", FilterValues: []string{main.value}, Negate: true, ExpectedCount: rest.count},
		}
	}

	var opts []domain.Option
	if len(sorted) > maxOptions {
		var otherValues []string
		otherCount := 0
		for _, s := range sorted[maxOptions-1:] {
			otherValues = append(otherValues, s.value)
			otherCount += s.count
		}
		for _, s := range sorted[:maxOptions-1] {
			opts = append(opts, domain.Option{Label: optionLabel(s.value), FilterValues: []string{s.value}, ExpectedCount: s.count})
		}
		opts = append(opts, domain.Option{Label: "Other", FilterValues: otherValues, ExpectedCount: otherCount})
		return opts
	}
	for _, s := range sorted {
		opts = append(opts, domain.Option{Label: optionLabel(s.value), FilterValues: []string{s.value}, ExpectedCount: s.count})
	}
	return opts
}

func questionText(level int, values []string) string {
	joined := strings.ToLower(strings.Join(values, " "))
	switch {
	case strings.Contains(joined, "male") || strings.Contains(joined, "female"):
		return "What is the gender?"
	case strings.Contains(joined, "purebred") || strings.Contains(joined, "breeding"):
		return "What is the breeding type?"
	case strings.Contains(joined, "fresh") || strings.Contains(joined, "frozen") || strings.Contains(joined, "dried"):
		return "What is the preservation method?"
	case strings.Contains(joined, "whole") || strings.Contains(joined, "cut") || strings.Contains(joined, "pieces"):
		return "What is the form?"
	case level == 0:
		return "What type of product is it?"
	case level == 1:
		return "What specific variety?"
	default:
		return "Select the specific characteristic:"
	}
}

func specLevel(row domain.HtsRow, level int) string {
	if level < 0 || level >= len(row.SpecLevels) {
		return ""
	}
	return row.SpecLevels[level]
}

func optionLabel(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "Not specified"
	}
	return strings.ToUpper(v[:1]) + v[1:]
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func keys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
