// Package statement renders a group's balances, suggested payments and
// settlement history for download.
package statement

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/MrJamesThe3rd/splitledger/internal/balance"
	"github.com/MrJamesThe3rd/splitledger/internal/group"
	"github.com/MrJamesThe3rd/splitledger/internal/money"
	"github.com/MrJamesThe3rd/splitledger/internal/settlement"
)

type BalanceSource interface {
	Snapshot(ctx context.Context, groupID string) (*balance.Snapshot, error)
}

type SettlementSource interface {
	List(ctx context.Context, filter settlement.ListFilter) ([]*settlement.Settlement, error)
}

type GroupSource interface {
	Get(ctx context.Context, id string) (*group.Group, error)
}

// Statement is a point-in-time view of one group.
type Statement struct {
	Group       *group.Group
	Snapshot    *balance.Snapshot
	Settlements []*settlement.Settlement
	GeneratedAt time.Time

	printer *message.Printer
}

type Service struct {
	balances    BalanceSource
	settlements SettlementSource
	groups      GroupSource
	now         func() time.Time
}

func NewService(balances BalanceSource, settlements SettlementSource, groups GroupSource) *Service {
	return &Service{
		balances:    balances,
		settlements: settlements,
		groups:      groups,
		now:         time.Now,
	}
}

// Build gathers everything a statement shows. An unknown group still gets a
// statement as long as it has data; names then fall back to user ids.
func (s *Service) Build(ctx context.Context, groupID string) (*Statement, error) {
	g, err := s.groups.Get(ctx, groupID)
	if err != nil && !errors.Is(err, group.ErrNotFound) {
		return nil, fmt.Errorf("loading group: %w", err)
	}

	if g == nil {
		g = &group.Group{ID: groupID, Name: groupID}
	}

	snap, err := s.balances.Snapshot(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("computing balances: %w", err)
	}

	settlements, err := s.settlements.List(ctx, settlement.ListFilter{GroupID: groupID})
	if err != nil {
		return nil, fmt.Errorf("listing settlements: %w", err)
	}

	return &Statement{
		Group:       g,
		Snapshot:    snap,
		Settlements: settlements,
		GeneratedAt: s.now().UTC(),
		printer:     message.NewPrinter(language.English),
	}, nil
}

var csvHeader = []string{
	"record", "settlement_id", "payment_id", "from", "to",
	"amount", "remaining", "status", "method", "date", "note",
}

// WriteCSV writes one row per settlement followed by one row per payment of
// that settlement.
func (st *Statement) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, s := range st.Settlements {
		due := ""
		if s.DueDate != nil {
			due = s.DueDate.Format(time.DateOnly)
		}

		row := []string{
			"settlement",
			s.ID.String(),
			"",
			s.FromUserID,
			s.ToUserID,
			money.Format(s.TotalAmount),
			money.Format(s.RemainingAmount),
			string(s.EffectiveStatus(st.GeneratedAt)),
			"",
			due,
			"",
		}
		if err := cw.Write(row); err != nil {
			return err
		}

		for _, p := range s.Payments {
			row := []string{
				"payment",
				s.ID.String(),
				p.ID.String(),
				s.FromUserID,
				s.ToUserID,
				money.Format(p.Amount),
				"",
				string(p.Status),
				string(p.Method),
				p.CreatedAt.Format(time.DateOnly),
				paymentNote(p),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}

	cw.Flush()

	return cw.Error()
}

// Summary is a plain-text rendering meant for a message body.
func (st *Statement) Summary() string {
	var sb strings.Builder

	name := st.Group.Name
	if name == "" {
		name = st.Group.ID
	}

	fmt.Fprintf(&sb, "Statement for %s\n", name)
	fmt.Fprintf(&sb, "Generated %s\n", st.GeneratedAt.Format("2006-01-02 15:04 MST"))

	sb.WriteString("\nBalances\n")

	if len(st.Snapshot.Balances) == 0 {
		sb.WriteString("  All settled up.\n")
	}

	for _, b := range st.Snapshot.Balances {
		fmt.Fprintf(&sb, "  %s owes %s %s\n", st.name(b.Debtor()), st.name(b.Creditor()), st.amount(b.Abs()))
	}

	plan := st.Snapshot.Plan
	if len(plan.Suggestions) > 0 {
		fmt.Fprintf(&sb, "\nSuggested payments (%d instead of %d, %d%% fewer)\n",
			len(plan.Suggestions), plan.PairwiseCount, plan.Reduction)

		for _, s := range plan.Suggestions {
			fmt.Fprintf(&sb, "  %s pays %s %s\n", st.name(s.From), st.name(s.To), st.amount(s.Amount))
		}
	}

	if len(st.Settlements) > 0 {
		sb.WriteString("\nSettlements\n")
	}

	for _, s := range st.Settlements {
		fmt.Fprintf(&sb, "  %s -> %s %s, %s remaining, %s\n",
			st.name(s.FromUserID), st.name(s.ToUserID),
			st.amount(s.TotalAmount), st.amount(s.RemainingAmount),
			s.EffectiveStatus(st.GeneratedAt))

		for _, p := range s.Payments {
			fmt.Fprintf(&sb, "    %s %s via %s, %s\n",
				p.CreatedAt.Format(time.DateOnly), st.amount(p.Amount), p.Method, p.Status)
		}
	}

	return sb.String()
}

// WriteZip bundles the CSV and the summary.
func (st *Statement) WriteZip(w io.Writer) error {
	zw := zip.NewWriter(w)

	f, err := zw.Create("statement.csv")
	if err != nil {
		return err
	}

	if err := st.WriteCSV(f); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}

	f, err = zw.Create("summary.txt")
	if err != nil {
		return err
	}

	if _, err := io.WriteString(f, st.Summary()); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}

	return zw.Close()
}

// Filename is the suggested download name.
func (st *Statement) Filename() string {
	return fmt.Sprintf("statement_%s_%s.zip", safeName(st.Group.ID), st.GeneratedAt.Format("20060102"))
}

func (st *Statement) name(userID string) string {
	return st.Group.DisplayName(userID)
}

// amount formats cents with thousands grouping.
func (st *Statement) amount(c int64) string {
	p := st.printer
	if p == nil {
		p = message.NewPrinter(language.English)
	}

	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}

	return sign + p.Sprintf("%d", c/100) + "." + fmt.Sprintf("%02d", c%100)
}

func paymentNote(p *settlement.Payment) string {
	if p.ResolutionNote != "" {
		return p.ResolutionNote
	}

	return p.Note
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}

		return '_'
	}, s)
}
