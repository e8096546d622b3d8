package importer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/MrJamesThe3rd/splitledger/internal/importer/shares"
	"github.com/MrJamesThe3rd/splitledger/internal/importer/sheet"
	"github.com/MrJamesThe3rd/splitledger/internal/importer/splitwise"
)

var ErrUnknownFormat = errors.New("unknown import format")

type Service struct {
	importers map[Format]Importer
}

func NewService() *Service {
	return &Service{
		importers: map[Format]Importer{
			FormatSplitwise: splitwise.NewParser(),
			FormatShares:    shares.NewParser(),
		},
	}
}

func (s *Service) Import(format Format, r io.Reader) (*sheet.Result, error) {
	importer, ok := s.importers[format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}

	res, err := importer.Parse(r)
	if err != nil {
		return nil, err
	}

	slog.Info("parsed import",
		"format", format,
		"charset", res.Charset,
		"expenses", len(res.Expenses),
		"skipped", len(res.Skipped),
	)

	return res, nil
}
