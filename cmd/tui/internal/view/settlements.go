package view

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/splitledger/internal/money"
	"github.com/MrJamesThe3rd/splitledger/internal/settlement"
)

type SettlementTracker interface {
	List(ctx context.Context, filter settlement.ListFilter) ([]*settlement.Settlement, error)
	RecordPaymentClaim(ctx context.Context, params settlement.ClaimParams) (*settlement.Payment, error)
}

type settlementsState int

const (
	settlementsStateBrowse settlementsState = iota
	settlementsStateClaim
)

var statusFilters = []struct {
	label    string
	statuses []settlement.Status
	overdue  bool
}{
	{label: "Open", statuses: []settlement.Status{settlement.StatusPending, settlement.StatusPartial}},
	{label: "All"},
	{label: "Pending", statuses: []settlement.Status{settlement.StatusPending}},
	{label: "Partial", statuses: []settlement.Status{settlement.StatusPartial}},
	{label: "Completed", statuses: []settlement.Status{settlement.StatusCompleted}},
	{label: "Overdue", statuses: []settlement.Status{settlement.StatusPending, settlement.StatusPartial}, overdue: true},
}

// SettlementsModel lists the group's settlements and lets the debtor record
// a payment claim against one of them.
type SettlementsModel struct {
	session Session
	svc     SettlementTracker

	state       settlementsState
	table       table.Model
	settlements []*settlement.Settlement
	form        *huh.Form
	filterIdx   int
	mineOnly    bool

	loading bool
	err     error
	status  string

	claim *claimForm
}

// claimForm holds the form bindings; huh writes through these pointers, so
// they must outlive copies of the model.
type claimForm struct {
	amount    string
	method    settlement.Method
	reference string
	note      string
}

func NewSettlementsModel(session Session, svc SettlementTracker) SettlementsModel {
	t := newTable([]table.Column{
		{Title: "ID", Width: 10},
		{Title: "From", Width: 14},
		{Title: "To", Width: 14},
		{Title: "Total", Width: 11},
		{Title: "Remaining", Width: 11},
		{Title: "Status", Width: 10},
		{Title: "Due", Width: 12},
		{Title: "Claims", Width: 7},
	}, 15)

	return SettlementsModel{
		session: session,
		svc:     svc,
		table:   t,
		loading: true,
	}
}

func (m SettlementsModel) Title() string { return "Settlements" }

func (m SettlementsModel) ShortHelp() string {
	if m.state == settlementsStateClaim {
		return "Navigate form | Esc: cancel"
	}

	return "Esc: back | p: record payment | s: status filter | m: mine only | r: refresh"
}

func (m SettlementsModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m SettlementsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadSettlementsMsg:
		m.loading = false
		m.err = msg.err

		if msg.err == nil {
			m.settlements = msg.settlements
			m.refreshTable()
		}

		return m, nil

	case claimSavedMsg:
		m.state = settlementsStateBrowse
		m.form = nil
		m.table.Focus()

		if msg.err != nil {
			m.status = errorStyle.Render(fmt.Sprintf("Claim not recorded: %v", msg.err))
			return m, nil
		}

		m.status = successStyle.Render(fmt.Sprintf("Claim of %s recorded, waiting for confirmation", FormatAmount(msg.payment.Amount)))

		return m, m.loadCmd()

	case tea.WindowSizeMsg:
		m.table.SetHeight(max(msg.Height-10, 3))
		return m, nil
	}

	switch m.state {
	case settlementsStateBrowse:
		return m.updateBrowse(msg)
	case settlementsStateClaim:
		return m.updateClaim(msg)
	}

	return m, nil
}

func (m SettlementsModel) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "r":
			m.loading = true
			return m, m.loadCmd()
		case "s":
			m.filterIdx = (m.filterIdx + 1) % len(statusFilters)
			return m, m.loadCmd()
		case "m":
			m.mineOnly = !m.mineOnly
			return m, m.loadCmd()
		case "p":
			return m.enterClaim()
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m SettlementsModel) enterClaim() (tea.Model, tea.Cmd) {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.settlements) {
		return m, nil
	}

	st := m.settlements[idx]
	if st.Status == settlement.StatusCompleted {
		m.status = faintStyle.Render("Settlement is already completed")
		return m, nil
	}

	if st.FromUserID != m.session.UserID {
		m.status = faintStyle.Render("Only " + st.FromUserID + " can record payments on this settlement")
		return m, nil
	}

	m.claim = &claimForm{
		amount: money.Format(st.RemainingAmount),
		method: settlement.MethodBankTransfer,
	}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("amount").
				Title("Amount").
				Value(&m.claim.amount).
				Validate(func(s string) error {
					cents, err := money.Parse(s)
					if err != nil {
						return err
					}

					if cents <= 0 || cents > st.RemainingAmount {
						return fmt.Errorf("amount must be between 0.01 and %s", FormatAmount(st.RemainingAmount))
					}

					return nil
				}),

			huh.NewSelect[settlement.Method]().
				Key("method").
				Title("Method").
				Options(
					huh.NewOption("Bank transfer", settlement.MethodBankTransfer),
					huh.NewOption("Cash", settlement.MethodCash),
					huh.NewOption("UPI", settlement.MethodUPI),
					huh.NewOption("Card", settlement.MethodCard),
					huh.NewOption("Wallet", settlement.MethodWallet),
					huh.NewOption("Other", settlement.MethodOther),
				).
				Value(&m.claim.method),

			huh.NewInput().
				Key("reference").
				Title("Reference").
				Placeholder("transaction id, optional").
				Value(&m.claim.reference),

			huh.NewInput().
				Key("note").
				Title("Note").
				Value(&m.claim.note),
		),
	).WithWidth(45).WithShowHelp(false)

	m.state = settlementsStateClaim
	m.table.Blur()

	return m, m.form.Init()
}

func (m SettlementsModel) updateClaim(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		m.state = settlementsStateBrowse
		m.form = nil
		m.table.Focus()

		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	return m, m.claimCmd()
}

func (m SettlementsModel) View() string {
	if m.loading {
		return pageStyle.Render("Loading settlements...")
	}

	if m.err != nil {
		return pageStyle.Render(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}

	scope := "Everyone"
	if m.mineOnly {
		scope = "Mine"
	}

	header := fmt.Sprintf(
		"Filter: [s] Status: %s | [m] Scope: %s",
		activeStyle(statusFilters[m.filterIdx].label),
		activeStyle(scope),
	)

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		boxed(m.table.View()),
	)

	if m.state == settlementsStateClaim && m.form != nil {
		st := m.settlements[m.table.Cursor()]

		panel := lipgloss.NewStyle().
			Padding(1, 2).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Width(48).
			Render(fmt.Sprintf("Record payment to %s\n\nRemaining: %s\n\n%s",
				st.ToUserID, FormatAmount(st.RemainingAmount), m.form.View()))

		content = lipgloss.JoinHorizontal(lipgloss.Top, content, panel)
	}

	if m.status != "" {
		content = m.status + "\n" + content
	}

	return pageStyle.Render(content)
}

func (m SettlementsModel) filter() settlement.ListFilter {
	f := statusFilters[m.filterIdx]

	filter := settlement.ListFilter{
		GroupID:  m.session.GroupID,
		Statuses: f.statuses,
	}

	if f.overdue {
		filter.DueBefore = new(time.Now())
	}

	if m.mineOnly {
		filter.UserID = m.session.UserID
	}

	return filter
}

func (m *SettlementsModel) refreshTable() {
	now := time.Now()

	rows := make([]table.Row, 0, len(m.settlements))
	for _, st := range m.settlements {
		due := ""
		if st.DueDate != nil {
			due = FormatDate(*st.DueDate)
		}

		claims := ""
		if n := len(st.PendingPayments()); n > 0 {
			claims = strings.Repeat("*", min(n, 5))
		}

		rows = append(rows, table.Row{
			shortID(st.ID.String()),
			st.FromUserID,
			st.ToUserID,
			FormatAmount(st.TotalAmount),
			FormatAmount(st.RemainingAmount),
			string(st.EffectiveStatus(now)),
			due,
			claims,
		})
	}

	m.table.SetRows(rows)
}

// Messages

type loadSettlementsMsg struct {
	settlements []*settlement.Settlement
	err         error
}

func (m SettlementsModel) loadCmd() tea.Cmd {
	filter := m.filter()

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		list, err := m.svc.List(ctx, filter)

		return loadSettlementsMsg{settlements: list, err: err}
	}
}

type claimSavedMsg struct {
	payment *settlement.Payment
	err     error
}

func (m SettlementsModel) claimCmd() tea.Cmd {
	st := m.settlements[m.table.Cursor()]

	amount, err := money.Parse(m.claim.amount)
	if err != nil {
		return func() tea.Msg { return claimSavedMsg{err: err} }
	}

	params := settlement.ClaimParams{
		SettlementID: st.ID,
		Amount:       amount,
		Method:       m.claim.method,
		Reference:    strings.TrimSpace(m.claim.reference),
		Note:         strings.TrimSpace(m.claim.note),
		SubmittedBy:  m.session.UserID,
	}

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		p, err := m.svc.RecordPaymentClaim(ctx, params)

		return claimSavedMsg{payment: p, err: err}
	}
}
