package sebastian

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/adnsv/go-utils/fs"
)

// ParseError reports dependency output that is not a JSON array of strings.
type ParseError struct {
	Offset int64
	Line   int
	Column int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("invalid dependency list at %d:%d: %v", e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("invalid dependency list: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func newParseError(buf []byte, off int64, err error) *ParseError {
	e := &ParseError{Offset: off, Err: err}
	if off > int64(len(buf)) {
		off = int64(len(buf))
	}
	line, char, lcErr := fs.LineAndCharacter(string(buf), int(off))
	if lcErr != nil {
		return e
	}
	e.Line, e.Column = line+1, char
	// the newline itself is counted as the first character of each
	// following line
	if line > 0 {
		e.Column--
	}
	if e.Column < 1 {
		e.Column = 1
	}
	return e
}

// ParseDepends decodes the tool's dependency output, e.g.
//
//	["path/a.json", "path/b.bin"]
//
// Order is kept. Anything other than a single array of strings is rejected,
// including null and an empty output.
func ParseDepends(buf []byte) ([]string, error) {
	if len(bytes.TrimSpace(buf)) == 0 {
		return nil, &ParseError{Err: errors.New("empty output")}
	}

	var deps []string
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&deps); err != nil {
		var serr *json.SyntaxError
		var terr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &serr):
			// Offset counts the offending byte
			off := serr.Offset
			if off > 0 {
				off--
			}
			return nil, newParseError(buf, off, err)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, newParseError(buf, int64(len(buf)), err)
		case errors.As(err, &terr):
			return nil, newParseError(buf, terr.Offset, fmt.Errorf("expected an array of strings, got %s", terr.Value))
		}
		return nil, newParseError(buf, dec.InputOffset(), err)
	}
	if deps == nil {
		return nil, newParseError(buf, 0, errors.New("expected an array of strings, got null"))
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, newParseError(buf, dec.InputOffset(), errors.New("trailing data after array"))
	}
	return deps, nil
}
