// Package splitwise imports the CSV export of a Splitwise group.
//
// Each row carries, per member, the net effect of the expense on that member:
// positive for whoever paid (the amount they lent), negative for whoever
// owes. Shares are rebuilt from those figures.
package splitwise

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MrJamesThe3rd/splitledger/internal/expense"
	"github.com/MrJamesThe3rd/splitledger/internal/importer/sheet"
)

var ErrNoHeader = errors.New("no Splitwise header found: expected Date, Description, Cost and Currency columns followed by members")

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

type member struct {
	id  string
	idx int
}

type layout struct {
	profile  *Profile
	members  []member
	dateIdx  int
	descIdx  int
	costIdx  int
	currIdx  int
	category int
}

func (p *Parser) Parse(r io.Reader) (*sheet.Result, error) {
	s, err := sheet.Read(r)
	if err != nil {
		return nil, err
	}

	l, headerIdx := detectLayout(s.Rows)
	if l == nil {
		return nil, ErrNoHeader
	}

	res := &sheet.Result{Charset: s.Charset}
	for _, m := range l.members {
		res.AddMembers(m.id)
	}

	var currency string

	for i, row := range s.Rows[headerIdx+1:] {
		line := headerIdx + i + 2

		if sheet.Blank(row) {
			continue
		}

		desc := sheet.Cell(row, l.descIdx)
		if strings.EqualFold(desc, l.profile.TotalLabel) {
			continue
		}

		params, err := l.parseRow(row)
		if err != nil {
			res.Skip(line, "%v", err)
			continue
		}

		rowCurrency := strings.ToUpper(sheet.Cell(row, l.currIdx))
		if currency == "" {
			currency = rowCurrency
		} else if rowCurrency != currency {
			res.Skip(line, "currency %s differs from %s", rowCurrency, currency)
			continue
		}

		res.Expenses = append(res.Expenses, *params)
	}

	return res, nil
}

// detectLayout finds the header row and maps the member columns.
func detectLayout(rows [][]string) (*layout, int) {
	for rowIdx, row := range rows {
		cols := sheet.HeaderColumns(row)

		for i := range profiles {
			p := &profiles[i]
			if !cols.Has(p.requiredCols()...) {
				continue
			}

			l := &layout{
				profile:  p,
				dateIdx:  cols.Index(p.DateCol),
				descIdx:  cols.Index(p.DescCol),
				costIdx:  cols.Index(p.CostCol),
				currIdx:  cols.Index(p.CurrencyCol),
				category: cols.Index(p.CategoryCol),
			}

			for idx := l.currIdx + 1; idx < len(row); idx++ {
				if id := strings.TrimSpace(row[idx]); id != "" {
					l.members = append(l.members, member{id: id, idx: idx})
				}
			}

			if len(l.members) < 2 {
				continue
			}

			return l, rowIdx
		}
	}

	return nil, -1
}

func (l *layout) parseRow(row []string) (*expense.CreateParams, error) {
	date, err := sheet.ParseDate(sheet.Cell(row, l.dateIdx))
	if err != nil {
		return nil, err
	}

	cost, err := sheet.ParseAmount(sheet.Cell(row, l.costIdx))
	if err != nil {
		return nil, fmt.Errorf("cost: %w", err)
	}

	if cost <= 0 {
		return nil, fmt.Errorf("cost must be positive, got %s", sheet.Cell(row, l.costIdx))
	}

	nets := make(map[string]int64, len(l.members))

	var (
		payer string
		sum   int64
	)

	for _, m := range l.members {
		raw := sheet.Cell(row, m.idx)
		if raw == "" {
			continue
		}

		v, err := sheet.ParseAmount(raw)
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", m.id, err)
		}

		if v == 0 {
			continue
		}

		if v > 0 {
			if payer != "" {
				return nil, fmt.Errorf("several payers (%s, %s)", payer, m.id)
			}

			payer = m.id
		}

		nets[m.id] = v
		sum += v
	}

	if payer == "" {
		return nil, fmt.Errorf("no payer")
	}

	if sum != 0 {
		return nil, fmt.Errorf("member columns sum to %d, not zero", sum)
	}

	shares := make(map[string]int64, len(nets))

	for user, v := range nets {
		if user != payer {
			shares[user] = -v
		}
	}

	if own := cost - nets[payer]; own > 0 {
		shares[payer] = own
	} else if own < 0 {
		return nil, fmt.Errorf("payer %s lent more than the cost", payer)
	}

	desc := sheet.Cell(row, l.descIdx)
	if cat := sheet.Cell(row, l.category); cat != "" && desc == "" {
		desc = cat
	}

	return &expense.CreateParams{
		PayerID:     payer,
		Amount:      cost,
		Shares:      shares,
		Description: desc,
		Date:        date,
	}, nil
}
