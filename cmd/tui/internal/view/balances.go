package view

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/splitledger/internal/balance"
	"github.com/MrJamesThe3rd/splitledger/internal/settlement"
	"github.com/MrJamesThe3rd/splitledger/internal/simplify"
)

type BalanceSource interface {
	Snapshot(ctx context.Context, groupID string) (*balance.Snapshot, error)
}

type SettlementCreator interface {
	Create(ctx context.Context, params settlement.CreateParams) (*settlement.Settlement, error)
}

type balancesState int

const (
	balancesStateBrowse balancesState = iota
	balancesStateConfirm
)

// BalancesModel shows who owes whom and the simplified payment plan. A
// suggestion can be turned into a settlement.
type BalancesModel struct {
	session     Session
	balances    BalanceSource
	settlements SettlementCreator

	state       balancesState
	pairs       table.Model
	suggestions table.Model
	snap        *balance.Snapshot
	form        *huh.Form
	accept      *bool

	loading bool
	err     error
	status  string
}

func NewBalancesModel(session Session, balances BalanceSource, settlements SettlementCreator) BalancesModel {
	pairs := newTable([]table.Column{
		{Title: "Owes", Width: 16},
		{Title: "To", Width: 16},
		{Title: "Amount", Width: 12},
	}, 8)
	pairs.Blur()

	suggestions := newTable([]table.Column{
		{Title: "From", Width: 16},
		{Title: "To", Width: 16},
		{Title: "Amount", Width: 12},
	}, 8)

	return BalancesModel{
		session:     session,
		balances:    balances,
		settlements: settlements,
		pairs:       pairs,
		suggestions: suggestions,
		loading:     true,
	}
}

func (m BalancesModel) Title() string { return "Balances" }

func (m BalancesModel) ShortHelp() string {
	if m.state == balancesStateConfirm {
		return "Navigate form | Esc: cancel"
	}

	return "Esc: back | Enter: settle suggestion | r: refresh"
}

func (m BalancesModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m BalancesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadBalancesMsg:
		m.loading = false
		m.err = msg.err

		if msg.err == nil {
			m.snap = msg.snap
			m.refreshTables()
		}

		return m, nil

	case settlementCreatedMsg:
		m.state = balancesStateBrowse
		m.form = nil
		m.suggestions.Focus()

		if msg.err != nil {
			m.status = errorStyle.Render(fmt.Sprintf("Could not create settlement: %v", msg.err))
			return m, nil
		}

		m.status = successStyle.Render(fmt.Sprintf("Settlement %s created for %s",
			shortID(msg.settlement.ID.String()), FormatAmount(msg.settlement.TotalAmount)))

		return m, nil

	case tea.WindowSizeMsg:
		m.suggestions.SetHeight(max(msg.Height/2-8, 3))
		return m, nil
	}

	if m.state == balancesStateConfirm {
		return m.updateConfirm(msg)
	}

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "r":
			m.loading = true
			m.status = ""

			return m, m.loadCmd()
		case "enter":
			return m.enterConfirm()
		}
	}

	var cmd tea.Cmd
	m.suggestions, cmd = m.suggestions.Update(msg)

	return m, cmd
}

func (m BalancesModel) selected() (simplify.Suggestion, bool) {
	if m.snap == nil {
		return simplify.Suggestion{}, false
	}

	idx := m.suggestions.Cursor()
	if idx < 0 || idx >= len(m.snap.Plan.Suggestions) {
		return simplify.Suggestion{}, false
	}

	return m.snap.Plan.Suggestions[idx], true
}

func (m BalancesModel) enterConfirm() (tea.Model, tea.Cmd) {
	s, ok := m.selected()
	if !ok {
		return m, nil
	}

	m.accept = new(true)
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Create a settlement: %s pays %s %s?", s.From, s.To, FormatAmount(s.Amount))).
				Affirmative("Create").
				Negative("Cancel").
				Value(m.accept),
		),
	).WithWidth(50).WithShowHelp(false)

	m.state = balancesStateConfirm
	m.suggestions.Blur()

	return m, m.form.Init()
}

func (m BalancesModel) updateConfirm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		m.state = balancesStateBrowse
		m.form = nil
		m.suggestions.Focus()

		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	if !*m.accept {
		m.state = balancesStateBrowse
		m.form = nil
		m.suggestions.Focus()

		return m, nil
	}

	s, ok := m.selected()
	if !ok {
		return m, nil
	}

	return m, m.createCmd(s)
}

func (m BalancesModel) View() string {
	if m.loading {
		return pageStyle.Render("Computing balances...")
	}

	if m.err != nil {
		return pageStyle.Render(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}

	plan := m.snap.Plan
	header := fmt.Sprintf("Group %s | %d payments instead of %d (%s saved)",
		activeStyle(m.session.GroupID),
		len(plan.Suggestions),
		plan.PairwiseCount,
		activeStyle(fmt.Sprintf("%d%%", plan.Reduction)),
	)

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		"Pairwise balances",
		boxed(m.pairs.View()),
		"",
		"Suggested payments",
		boxed(m.suggestions.View()),
	)

	if m.state == balancesStateConfirm && m.form != nil {
		panel := lipgloss.NewStyle().
			Padding(1, 2).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Width(54).
			Render(m.form.View())

		content = lipgloss.JoinHorizontal(lipgloss.Top, content, panel)
	}

	if m.status != "" {
		content = m.status + "\n\n" + content
	}

	return pageStyle.Render(content)
}

func (m *BalancesModel) refreshTables() {
	pairRows := make([]table.Row, 0, len(m.snap.Balances))
	for _, b := range m.snap.Balances {
		pairRows = append(pairRows, table.Row{b.Debtor(), b.Creditor(), FormatAmount(b.Abs())})
	}

	m.pairs.SetRows(pairRows)

	suggestionRows := make([]table.Row, 0, len(m.snap.Plan.Suggestions))
	for _, s := range m.snap.Plan.Suggestions {
		suggestionRows = append(suggestionRows, table.Row{s.From, s.To, FormatAmount(s.Amount)})
	}

	m.suggestions.SetRows(suggestionRows)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}

	return id
}

// Messages

type loadBalancesMsg struct {
	snap *balance.Snapshot
	err  error
}

func (m BalancesModel) loadCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		snap, err := m.balances.Snapshot(ctx, m.session.GroupID)

		return loadBalancesMsg{snap: snap, err: err}
	}
}

type settlementCreatedMsg struct {
	settlement *settlement.Settlement
	err        error
}

func (m BalancesModel) createCmd(s simplify.Suggestion) tea.Cmd {
	params := settlement.CreateParams{
		GroupID:    m.session.GroupID,
		FromUserID: s.From,
		ToUserID:   s.To,
		Amount:     s.Amount,
		CreatedBy:  m.session.UserID,
	}

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		st, err := m.settlements.Create(ctx, params)

		return settlementCreatedMsg{settlement: st, err: err}
	}
}
