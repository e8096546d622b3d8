package importer

import (
	"io"

	"github.com/MrJamesThe3rd/splitledger/internal/importer/sheet"
)

type Format string

const (
	FormatSplitwise Format = "splitwise"
	FormatShares    Format = "shares"
)

type Importer interface {
	Parse(r io.Reader) (*sheet.Result, error)
}
