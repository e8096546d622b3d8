// Package encoding normalises uploaded CSV files to UTF-8.
package encoding

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const sniffSize = 4096

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Decoded is a UTF-8 view of an upload plus what was learned while sniffing it.
type Decoded struct {
	io.Reader
	// Charset names the source encoding, e.g. "UTF-8" or "windows-1252".
	Charset string
	// Comma is the most likely field separator: ',', ';' or '\t'.
	Comma rune
}

// Detect sniffs the start of r and returns a reader that yields UTF-8.
//
// Detection order:
//  1. BOM (UTF-8 BOM is stripped; UTF-16 LE/BE is decoded)
//  2. Valid UTF-8 passes through
//  3. chardet heuristics
//  4. Windows-1252
func Detect(r io.Reader) (*Decoded, error) {
	br := bufio.NewReaderSize(r, sniffSize)

	buf, err := br.Peek(sniffSize)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, fmt.Errorf("peek: %w", err)
	}

	charset, dec := detectCharset(buf)

	if charset == "UTF-8" && bytes.HasPrefix(buf, bomUTF8) {
		_, _ = br.Discard(len(bomUTF8))
		buf = buf[len(bomUTF8):]
	}

	out := &Decoded{Reader: br, Charset: charset, Comma: ','}

	if dec != nil {
		out.Reader = transform.NewReader(br, dec.NewDecoder())

		if sample, _, err := transform.Bytes(dec.NewDecoder(), buf); err == nil {
			buf = sample
		}
	}

	out.Comma = SniffComma(firstLine(buf))

	return out, nil
}

// NewUTF8Reader is Detect without the metadata.
func NewUTF8Reader(r io.Reader) (io.Reader, error) {
	d, err := Detect(r)
	if err != nil {
		return nil, err
	}

	return d.Reader, nil
}

// detectCharset returns the charset name and, unless the input is already
// UTF-8, the decoding to apply.
func detectCharset(buf []byte) (string, encoding.Encoding) {
	switch {
	case bytes.HasPrefix(buf, bomUTF8):
		return "UTF-8", nil
	case bytes.HasPrefix(buf, bomUTF16LE):
		return "UTF-16LE", unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	case bytes.HasPrefix(buf, bomUTF16BE):
		return "UTF-16BE", unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	case utf8.Valid(buf):
		return "UTF-8", nil
	}

	result, err := chardet.NewTextDetector().DetectBest(buf)
	if err == nil {
		switch result.Charset {
		case "UTF-8":
			return "UTF-8", nil
		case "ISO-8859-1", "windows-1252":
			return "windows-1252", charmap.Windows1252
		case "ISO-8859-9":
			return "ISO-8859-9", charmap.ISO8859_9
		case "ISO-8859-15":
			return "ISO-8859-15", charmap.ISO8859_15
		}
	}

	return "windows-1252", charmap.Windows1252
}

// SniffComma picks the separator that occurs most often outside quotes in a
// header line. Ties and empty lines fall back to ','.
func SniffComma(line string) rune {
	counts := map[rune]int{}
	inQuotes := false

	for _, c := range line {
		switch c {
		case '"':
			inQuotes = !inQuotes
		case ',', ';', '\t':
			if !inQuotes {
				counts[c]++
			}
		}
	}

	best := ','
	for _, c := range []rune{';', '\t'} {
		if counts[c] > counts[best] {
			best = c
		}
	}

	return best
}

func firstLine(buf []byte) string {
	s := string(buf)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}

	return s
}
