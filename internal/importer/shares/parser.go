// Package shares imports the plain expense sheet format:
//
//	Date,Description,Payer,Amount,Shares
//	2024-03-01,Dinner,A,300.00,A:100.00|B:100.00|C:100.00
//	2024-03-02,Taxi,B,150.00,A|B|C
//
// A share list without amounts splits the expense equally.
package shares

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MrJamesThe3rd/splitledger/internal/expense"
	"github.com/MrJamesThe3rd/splitledger/internal/importer/sheet"
)

const (
	colDate   = "date"
	colDesc   = "description"
	colPayer  = "payer"
	colAmount = "amount"
	colShares = "shares"
)

var ErrNoHeader = errors.New("no header found: expected Date, Description, Payer, Amount and Shares columns")

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(r io.Reader) (*sheet.Result, error) {
	s, err := sheet.Read(r)
	if err != nil {
		return nil, err
	}

	headerIdx := sheet.FindHeader(s.Rows, func(c sheet.Columns) bool {
		return c.Has(colDate, colPayer, colAmount, colShares)
	})
	if headerIdx < 0 {
		return nil, ErrNoHeader
	}

	cols := sheet.HeaderColumns(s.Rows[headerIdx])
	res := &sheet.Result{Charset: s.Charset}

	for i, row := range s.Rows[headerIdx+1:] {
		line := headerIdx + i + 2

		if sheet.Blank(row) {
			continue
		}

		params, err := parseRow(cols, row)
		if err != nil {
			res.Skip(line, "%v", err)
			continue
		}

		res.AddMembers(params.PayerID)
		for user := range params.Shares {
			res.AddMembers(user)
		}

		res.Expenses = append(res.Expenses, *params)
	}

	return res, nil
}

func parseRow(cols sheet.Columns, row []string) (*expense.CreateParams, error) {
	date, err := sheet.ParseDate(sheet.Cell(row, cols.Index(colDate)))
	if err != nil {
		return nil, err
	}

	payer := sheet.Cell(row, cols.Index(colPayer))
	if payer == "" {
		return nil, fmt.Errorf("missing payer")
	}

	amount, err := sheet.ParseAmount(sheet.Cell(row, cols.Index(colAmount)))
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}

	split, err := ParseShares(sheet.Cell(row, cols.Index(colShares)), amount)
	if err != nil {
		return nil, err
	}

	e := expense.Expense{PayerID: payer, Amount: amount, Shares: split}
	if err := e.Validate(); err != nil {
		return nil, err
	}

	return &expense.CreateParams{
		PayerID:     payer,
		Amount:      amount,
		Shares:      split,
		Description: sheet.Cell(row, cols.Index(colDesc)),
		Date:        date,
	}, nil
}

// ParseShares reads "user:amount|user:amount" or, for an equal split,
// "user|user". Entries for the same user are added up.
func ParseShares(s string, amount int64) (map[string]int64, error) {
	parts := strings.Split(s, "|")

	var (
		users  []string
		shares = make(map[string]int64, len(parts))
		named  int
	)

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		user, raw, hasAmount := strings.Cut(part, ":")
		user = strings.TrimSpace(user)

		if user == "" {
			return nil, fmt.Errorf("share %q has no user", part)
		}

		if !hasAmount {
			users = append(users, user)
			continue
		}

		v, err := sheet.ParseAmount(raw)
		if err != nil {
			return nil, fmt.Errorf("share for %s: %w", user, err)
		}

		shares[user] += v
		named++
	}

	switch {
	case named > 0 && len(users) > 0:
		return nil, fmt.Errorf("shares mix amounts and plain names")
	case len(users) > 0:
		return expense.EqualShares(amount, users), nil
	case named == 0:
		return nil, fmt.Errorf("no shares")
	}

	return shares, nil
}
