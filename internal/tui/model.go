package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"htsfinder/internal/domain"
	"htsfinder/internal/duty"
	"htsfinder/internal/normalize"
	"htsfinder/internal/service"
)

// NarrowPort is the TUI-facing subset of the narrowing service.
type NarrowPort interface {
	ExactLookup(ctx context.Context, code string) (domain.HtsRow, error)
	PrefixNarrow(ctx context.Context, prefix string) ([]domain.HtsRow, error)
	SemanticNarrow(ctx context.Context, query string, filter domain.Filter, topK int) ([]domain.SearchResult, error)
}

type mode int

const (
	modeQuery mode = iota
	modeCandidates
	modeQuestion
	modeDetail
	modeDuty
)

// Model is the Bubble Tea model for the interactive classifier.
type Model struct {
	service  NarrowPort
	sessions *service.SessionStore
	topK     int

	input    textinput.Model
	viewport viewport.Model
	ready    bool

	mode       mode
	session    *service.Session
	question   *domain.Question
	candidates []domain.HtsRow
	scores     map[string]float64 // digits -> similarity, semantic queries only
	cursor     int
	detail     *domain.HtsRow
	status     string
}

// New creates the TUI model. Sessions carry the accumulated filters of
// one narrowing conversation.
func New(svc NarrowPort, sessions *service.SessionStore, topK int) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "HTS code, 4/6-digit prefix, or product description"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		service:  svc,
		sessions: sessions,
		topK:     topK,
		input:    ti,
		viewport: vp,
		status:   "Ready. Type a query and press Enter.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, query box, spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderContent())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch m.mode {
		case modeQuery, modeDuty:
			if msg.String() == "enter" {
				return m.submitInput(), nil
			}
			if msg.String() == "esc" && m.mode == modeDuty {
				m.mode = modeDetail
				m.status = "Press d for a duty estimate, esc to go back."
				m.viewport.SetContent(m.renderContent())
				return m, nil
			}
		case modeCandidates:
			return m.updateCandidates(msg), nil
		case modeQuestion:
			return m.updateQuestion(msg), nil
		case modeDetail:
			switch msg.String() {
			case "d":
				m.mode = modeDuty
				m.input.SetValue("")
				m.input.Placeholder = "value countryISO transport, e.g. 12000 DE Ocean"
				m.status = "Enter shipment details for a landed-cost estimate."
				return m, nil
			case "esc":
				if len(m.candidates) > 0 {
					m.mode = modeCandidates
				} else {
					m = m.resetToQuery("Ready.")
				}
				m.viewport.SetContent(m.renderContent())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submitInput() Model {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m
	}
	if m.mode == modeDuty {
		return m.runDuty(text)
	}
	return m.runQuery(text)
}

// runQuery dispatches on input shape: full codes resolve exactly, 4- or
// 6-digit prefixes narrow by heading, anything else is semantic.
func (m Model) runQuery(text string) Model {
	ctx := context.Background()
	digits := normalize.Digits(text)
	stripped := strings.Map(dropSeparators, text)
	onlyCode := digits != "" && stripped == digits

	switch {
	case onlyCode && (len(digits) == 4 || len(digits) == 6):
		rows, err := m.service.PrefixNarrow(ctx, digits)
		if err != nil {
			return m.fail(err)
		}
		if len(rows) == 0 {
			m.status = fmt.Sprintf("No match under prefix %s.", digits)
			return m
		}
		var filter domain.Filter
		if len(digits) == 4 {
			filter.Prefix4 = digits
		} else {
			filter.Prefix6 = digits
		}
		return m.startSession(text, rows, nil, filter)
	case onlyCode && len(digits) > 6:
		row, err := m.service.ExactLookup(ctx, digits)
		if errors.Is(err, domain.ErrNotFound) {
			m.status = fmt.Sprintf("No match for code %s.", text)
			return m
		}
		if err != nil {
			return m.fail(err)
		}
		m.detail = &row
		m.mode = modeDetail
		m.status = "Press d for a duty estimate, esc to go back."
		m.viewport.SetContent(m.renderContent())
		return m
	default:
		var filter domain.Filter
		if m.session != nil {
			filter = m.session.Filter
		}
		results, err := m.service.SemanticNarrow(ctx, text, filter, m.topK)
		if err != nil {
			return m.fail(err)
		}
		if len(results) == 0 {
			m.status = "No match."
			return m
		}
		rows := make([]domain.HtsRow, len(results))
		scores := make(map[string]float64, len(results))
		for i, r := range results {
			rows[i] = r.Row
			scores[r.Row.Digits] = r.Score
		}
		return m.startSession(text, rows, scores, filter)
	}
}

// startSession opens a session over the result set. The filter carries
// over from the previous session, so refinements accumulate across turns.
func (m Model) startSession(query string, rows []domain.HtsRow, scores map[string]float64, filter domain.Filter) Model {
	if m.session != nil {
		m.sessions.Delete(m.session.ID)
	}
	m.session = m.sessions.Create(query, rows)
	m.session.Filter = filter
	m.candidates = rows
	m.scores = scores
	m.cursor = 0
	m.input.SetValue("")
	if q := m.session.NextQuestion(); q != nil {
		m.question = q
		m.mode = modeQuestion
		m.status = fmt.Sprintf("%d candidates. Answer to narrow, s to skip, / to refine.", len(rows))
	} else {
		m.question = nil
		m.mode = modeCandidates
		m.status = fmt.Sprintf("%d candidates.", len(rows))
	}
	m.viewport.SetContent(m.renderContent())
	return m
}

func (m Model) updateCandidates(msg tea.KeyMsg) Model {
	switch msg.String() {
	case "down", "j":
		if len(m.candidates) > 0 {
			m.cursor = (m.cursor + 1) % len(m.candidates)
		}
	case "up", "k":
		if len(m.candidates) > 0 {
			m.cursor = (m.cursor - 1 + len(m.candidates)) % len(m.candidates)
		}
	case "enter":
		if len(m.candidates) > 0 {
			row := m.candidates[m.cursor]
			m.detail = &row
			m.mode = modeDetail
			m.status = "Press d for a duty estimate, esc to go back."
		}
	case "/":
		return m.refineQuery()
	case "esc":
		return m.resetToQuery("Ready.")
	}
	m.viewport.SetContent(m.renderContent())
	return m
}

func (m Model) updateQuestion(msg tea.KeyMsg) Model {
	switch key := msg.String(); key {
	case "s", "esc":
		m.mode = modeCandidates
		m.status = fmt.Sprintf("%d candidates.", len(m.candidates))
	case "/":
		return m.refineQuery()
	default:
		idx, err := strconv.Atoi(key)
		if err != nil || m.question == nil || idx < 1 || idx > len(m.question.Options) {
			return m
		}
		opt := m.question.Options[idx-1]
		m.session.Answer(*m.question, opt)
		m.candidates = m.session.Candidates
		m.cursor = 0
		if m.session.Final != nil {
			m.detail = m.session.Final
			m.mode = modeDetail
			m.status = "Classified. Press d for a duty estimate."
		} else if q := m.session.NextQuestion(); q != nil {
			m.question = q
			m.status = fmt.Sprintf("%d candidates left. Answer to narrow, s to skip, / to refine.", len(m.candidates))
		} else {
			m.question = nil
			m.mode = modeCandidates
			m.status = fmt.Sprintf("%d candidates left.", len(m.candidates))
		}
	}
	m.viewport.SetContent(m.renderContent())
	return m
}

func (m Model) runDuty(text string) Model {
	if m.detail == nil {
		return m.resetToQuery("Ready.")
	}
	fields := strings.Fields(text)
	if len(fields) < 2 {
		m.status = "Need at least value and country, e.g. 12000 DE Ocean."
		return m
	}
	value, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		m.status = fmt.Sprintf("Bad value %q.", fields[0])
		return m
	}
	in := duty.Input{BaseValue: value, CountryISO: fields[1], TransportMode: "Ocean"}
	if len(fields) > 2 {
		in.TransportMode = fields[2]
	}
	b := duty.LandedCost(*m.detail, in)
	m.viewport.SetContent(renderBreakdown(*m.detail, b))
	m.mode = modeDetail
	m.input.SetValue("")
	m.status = "Press d for another estimate, esc to go back."
	return m
}

// fail maps collaborator failures to a distinct "service unavailable"
// status so they are never mistaken for an empty result.
func (m Model) fail(err error) Model {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		m.status = "Invalid input: " + ve.Reason
		return m
	}
	m.status = "Service unavailable: " + err.Error()
	return m
}

// refineQuery returns to the input while keeping the session, so the
// next description narrows within the filters accumulated so far.
func (m Model) refineQuery() Model {
	m.mode = modeQuery
	m.question = nil
	m.input.SetValue("")
	m.input.Placeholder = "Describe the product further"
	m.status = "Refining within current filters. Type a description and press Enter."
	m.viewport.SetContent(m.renderContent())
	return m
}

func (m Model) resetToQuery(status string) Model {
	if m.session != nil {
		m.sessions.Delete(m.session.ID)
	}
	m.session = nil
	m.question = nil
	m.candidates = nil
	m.scores = nil
	m.detail = nil
	m.cursor = 0
	m.mode = modeQuery
	m.input.SetValue("")
	m.input.Placeholder = "HTS code, 4/6-digit prefix, or product description"
	m.status = status
	m.viewport.SetContent(m.renderContent())
	return m
}

// View renders the TUI layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("HTS Finder")
	results := resultBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderContent() string {
	switch m.mode {
	case modeDetail:
		if m.detail != nil {
			return renderDetail(*m.detail)
		}
	case modeQuestion:
		if m.question != nil {
			var b strings.Builder
			b.WriteString(questionStyle.Render(m.question.Text))
			b.WriteString("\n\n")
			for i, opt := range m.question.Options {
				fmt.Fprintf(&b, "  %d. %s (%d)\n", i+1, opt.Label, opt.ExpectedCount)
			}
			b.WriteString("\n")
			b.WriteString(m.renderCandidateList())
			return b.String()
		}
	case modeCandidates:
		return m.renderCandidateList()
	}
	if len(m.candidates) > 0 {
		return m.renderCandidateList()
	}
	return "No results yet."
}

func (m Model) renderCandidateList() string {
	var b strings.Builder
	for i, row := range m.candidates {
		marker := "  "
		line := fmt.Sprintf("%-14s %s", row.HtsCode, rowSummary(row))
		if score, ok := m.scores[row.Digits]; ok {
			line = fmt.Sprintf("%s  score=%.3f", line, score)
		}
		if i == m.cursor && m.mode == modeCandidates {
			marker = "» "
			line = selectedStyle.Render(line)
		}
		b.WriteString(marker + line + "\n")
	}
	return b.String()
}

func rowSummary(row domain.HtsRow) string {
	if len(row.SpecLevels) > 0 {
		return row.SpecLevels[len(row.SpecLevels)-1]
	}
	return row.Description
}

func renderDetail(row domain.HtsRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", headerStyle.Render(row.HtsCode))
	fmt.Fprintf(&b, "Description:  %s\n", row.Description)
	if len(row.SpecLevels) > 0 {
		fmt.Fprintf(&b, "Specs:        %s\n", strings.Join(row.SpecLevels, " > "))
	}
	if row.Unit != "" {
		fmt.Fprintf(&b, "Unit:         %s\n", row.Unit)
	}
	fmt.Fprintf(&b, "General rate: %s\n", orDash(row.RateGeneral))
	fmt.Fprintf(&b, "Special rate: %s\n", orDash(row.RateSpecial))
	fmt.Fprintf(&b, "Column 2:     %s\n", orDash(row.RateCol2))
	return b.String()
}

func renderBreakdown(row domain.HtsRow, b duty.Breakdown) string {
	var s strings.Builder
	fmt.Fprintf(&s, "%s\n\n", headerStyle.Render("Landed cost for "+row.HtsCode))
	fmt.Fprintf(&s, "Base value:       $%.2f\n", b.BaseValue)
	fmt.Fprintf(&s, "Rate category:    %s (%.2f%%)\n", b.RateCategory, b.DutyRatePct)
	fmt.Fprintf(&s, "Base duty:        $%.2f\n", b.BaseDuty)
	if b.MetalSurcharge > 0 {
		fmt.Fprintf(&s, "Metal surcharge:  $%.2f\n", b.MetalSurcharge)
	}
	if b.ExclusionReduction > 0 {
		fmt.Fprintf(&s, "Exclusion:       -$%.2f\n", b.ExclusionReduction)
	}
	fmt.Fprintf(&s, "Fees (MPF/HMF):   $%.2f\n", b.Fees)
	fmt.Fprintf(&s, "Total:            $%.2f\n", b.LandedCost)
	for _, note := range b.Notes {
		fmt.Fprintf(&s, "\nNote: %s", note)
	}
	return s.String()
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

func dropSeparators(r rune) rune {
	if r == '.' || r == ' ' || r == '-' {
		return -1
	}
	return r
}

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	questionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	selectedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
