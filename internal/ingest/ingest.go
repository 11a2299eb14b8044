// Package ingest parses activity file exports into the wire shape the
// domain service accepts. Parsers strip format sentinels and leave
// physiological validation to stream normalization.
package ingest

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"strings"

	"example.com/insight/internal/domain"
)

// ErrUnsupportedFormat rejects filenames whose extension maps to no
// parser.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ParseFile dispatches on the filename extension and returns the
// activities the file contains. Gzipped TCX is transparently
// decompressed.
func ParseFile(filename string, r io.Reader) ([]domain.ActivityInput, error) {
	name := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(name, ".csv"):
		return ParseCSV(r)
	case strings.HasSuffix(name, ".tcx.gz"):
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open gzip %s: %w", filename, err)
		}
		defer gz.Close()
		return ParseTCX(gz)
	case strings.HasSuffix(name, ".tcx"):
		return ParseTCX(r)
	case strings.HasSuffix(name, ".fit"):
		return ParseFIT(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}
}
