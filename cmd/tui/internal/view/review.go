package view

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitledger/internal/settlement"
)

type SettlementLister interface {
	List(ctx context.Context, filter settlement.ListFilter) ([]*settlement.Settlement, error)
}

type Confirmer interface {
	Confirm(ctx context.Context, paymentID uuid.UUID, byUser, message string) (*settlement.Settlement, error)
	Reject(ctx context.Context, paymentID uuid.UUID, byUser, reason string) (*settlement.Settlement, error)
}

type reviewState int

const (
	reviewStateBrowse reviewState = iota
	reviewStateReason
)

// claim is a pending payment shown for review. Status is updated locally as
// soon as the creditor acts and reconciled when the gateway answers.
type claim struct {
	payment    settlement.Payment
	settlement *settlement.Settlement
	inFlight   bool
}

// ReviewModel lists payment claims awaiting the current user as creditor.
type ReviewModel struct {
	session     Session
	settlements SettlementLister
	gateway     Confirmer

	state       reviewState
	table       table.Model
	claims      []*claim
	reasonInput textinput.Model

	loading bool
	err     error
	status  string
}

func NewReviewModel(session Session, settlements SettlementLister, gateway Confirmer) ReviewModel {
	t := newTable([]table.Column{
		{Title: "Date", Width: 12},
		{Title: "From", Width: 14},
		{Title: "Amount", Width: 11},
		{Title: "Method", Width: 14},
		{Title: "Reference", Width: 18},
		{Title: "Note", Width: 24},
		{Title: "Status", Width: 12},
	}, 15)

	ti := textinput.New()
	ti.Placeholder = "Why are you rejecting this claim?"
	ti.Prompt = "Reason: "
	ti.CharLimit = 200
	ti.Width = 50

	return ReviewModel{
		session:     session,
		settlements: settlements,
		gateway:     gateway,
		table:       t,
		reasonInput: ti,
		loading:     true,
	}
}

func (m ReviewModel) Title() string { return "Review Payment Claims" }

func (m ReviewModel) ShortHelp() string {
	if m.state == reviewStateReason {
		return "Enter: reject | Esc: cancel"
	}

	return "Esc: back | y: confirm | n: reject | r: refresh"
}

func (m ReviewModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m ReviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadClaimsMsg:
		m.loading = false
		m.err = msg.err

		if msg.err == nil {
			m.claims = msg.claims
			m.refreshTable()
		}

		return m, nil

	case resolvedMsg:
		return m.reconcile(msg)

	case tea.WindowSizeMsg:
		m.table.SetHeight(max(msg.Height-12, 3))
		return m, nil
	}

	if m.state == reviewStateReason {
		return m.updateReason(msg)
	}

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "r":
			m.loading = true
			m.status = ""

			return m, m.loadCmd()
		case "y":
			return m.resolve(settlement.PaymentVerified, "")
		case "n":
			if m.current() == nil {
				return m, nil
			}

			m.state = reviewStateReason
			m.reasonInput.SetValue("")
			m.table.Blur()

			return m, m.reasonInput.Focus()
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m ReviewModel) updateReason(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.Type {
		case tea.KeyEsc:
			m.state = reviewStateBrowse
			m.reasonInput.Blur()
			m.table.Focus()

			return m, nil
		case tea.KeyEnter:
			reason := strings.TrimSpace(m.reasonInput.Value())
			if reason == "" {
				m.status = errorStyle.Render("A reason is required to reject a claim")
				return m, nil
			}

			m.state = reviewStateBrowse
			m.reasonInput.Blur()
			m.table.Focus()

			return m.resolve(settlement.PaymentDisputed, reason)
		}
	}

	var cmd tea.Cmd
	m.reasonInput, cmd = m.reasonInput.Update(msg)

	return m, cmd
}

// current returns the selected claim if it can still be acted on.
func (m ReviewModel) current() *claim {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.claims) {
		return nil
	}

	c := m.claims[idx]
	if c.inFlight || c.payment.Status != settlement.PaymentPending {
		return nil
	}

	return c
}

// resolve shows the outcome immediately and asks the gateway to make it so.
func (m ReviewModel) resolve(to settlement.PaymentStatus, reason string) (tea.Model, tea.Cmd) {
	c := m.current()
	if c == nil {
		return m, nil
	}

	prev := c.payment.Status
	c.payment.Status = to
	c.inFlight = true
	m.status = ""
	m.refreshTable()

	return m, m.resolveCmd(c.payment.ID, prev, to, reason)
}

// reconcile replaces the optimistic state with what the gateway stored, or
// puts the claim back if the call failed.
func (m ReviewModel) reconcile(msg resolvedMsg) (tea.Model, tea.Cmd) {
	c := m.find(msg.paymentID)
	if c == nil {
		return m, nil
	}

	c.inFlight = false

	if msg.err != nil {
		c.payment.Status = msg.prev
		m.status = errorStyle.Render(describeResolveError(msg.err))
		m.refreshTable()

		if errors.Is(msg.err, settlement.ErrAlreadyResolved) || errors.Is(msg.err, settlement.ErrSettlementTerminal) {
			return m, m.loadCmd()
		}

		return m, nil
	}

	c.settlement = msg.settlement

	for _, p := range msg.settlement.Payments {
		if p.ID == c.payment.ID {
			c.payment = *p
		}
	}

	switch {
	case c.payment.Status == settlement.PaymentDisputed:
		m.status = successStyle.Render(fmt.Sprintf("Claim of %s from %s rejected", FormatAmount(c.payment.Amount), c.payment.SubmittedBy))
	case msg.settlement.Status == settlement.StatusCompleted:
		m.status = successStyle.Render(fmt.Sprintf("Confirmed; settlement with %s is now complete", msg.settlement.FromUserID))
	default:
		m.status = successStyle.Render(fmt.Sprintf("Confirmed; %s still remaining", FormatAmount(msg.settlement.RemainingAmount)))
	}

	m.refreshTable()

	return m, nil
}

func (m ReviewModel) find(id uuid.UUID) *claim {
	for _, c := range m.claims {
		if c.payment.ID == id {
			return c
		}
	}

	return nil
}

func describeResolveError(err error) string {
	switch {
	case errors.Is(err, settlement.ErrAlreadyResolved):
		return "Claim was already resolved elsewhere; refreshing"
	case errors.Is(err, settlement.ErrSettlementTerminal):
		return "Settlement is already complete; refreshing"
	case errors.Is(err, settlement.ErrConflict):
		return "Settlement is busy, try again"
	case errors.Is(err, settlement.ErrUnauthorized):
		return "Only the creditor can resolve this claim"
	}

	return fmt.Sprintf("Error: %v", err)
}

func (m ReviewModel) View() string {
	if m.loading {
		return pageStyle.Render("Loading claims...")
	}

	if m.err != nil {
		return pageStyle.Render(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}

	if len(m.claims) == 0 {
		return pageStyle.Render(successStyle.Render("No payment claims are waiting for you."))
	}

	var pending int

	for _, c := range m.claims {
		if c.payment.Status == settlement.PaymentPending {
			pending++
		}
	}

	header := fmt.Sprintf("%s claims waiting for confirmation", activeStyle(fmt.Sprint(pending)))

	sections := []string{
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		boxed(m.table.View()),
	}

	if m.state == reviewStateReason {
		sections = append(sections, "", m.reasonInput.View())
	}

	if m.status != "" {
		sections = append([]string{m.status, ""}, sections...)
	}

	return pageStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m *ReviewModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.claims))
	for _, c := range m.claims {
		status := string(c.payment.Status)
		if c.inFlight {
			status += "..."
		}

		rows = append(rows, table.Row{
			FormatDate(c.payment.CreatedAt),
			c.payment.SubmittedBy,
			FormatAmount(c.payment.Amount),
			string(c.payment.Method),
			c.payment.Reference,
			c.payment.Note,
			status,
		})
	}

	m.table.SetRows(rows)
}

// Messages

type loadClaimsMsg struct {
	claims []*claim
	err    error
}

func (m ReviewModel) loadCmd() tea.Cmd {
	filter := settlement.ListFilter{
		GroupID:  m.session.GroupID,
		UserID:   m.session.UserID,
		Statuses: []settlement.Status{settlement.StatusPending, settlement.StatusPartial},
	}
	userID := m.session.UserID

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		list, err := m.settlements.List(ctx, filter)
		if err != nil {
			return loadClaimsMsg{err: err}
		}

		var claims []*claim

		for _, st := range list {
			if st.ToUserID != userID {
				continue
			}

			for _, p := range st.PendingPayments() {
				claims = append(claims, &claim{payment: *p, settlement: st})
			}
		}

		return loadClaimsMsg{claims: claims}
	}
}

type resolvedMsg struct {
	paymentID  uuid.UUID
	prev       settlement.PaymentStatus
	settlement *settlement.Settlement
	err        error
}

func (m ReviewModel) resolveCmd(paymentID uuid.UUID, prev, to settlement.PaymentStatus, reason string) tea.Cmd {
	userID := m.session.UserID

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		var (
			st  *settlement.Settlement
			err error
		)

		if to == settlement.PaymentVerified {
			st, err = m.gateway.Confirm(ctx, paymentID, userID, "")
		} else {
			st, err = m.gateway.Reject(ctx, paymentID, userID, reason)
		}

		return resolvedMsg{paymentID: paymentID, prev: prev, settlement: st, err: err}
	}
}
