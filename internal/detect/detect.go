// Package detect guesses the character encoding and field delimiter of a raw
// export file by inspecting its first line only.
package detect

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding names as reported in Result
const (
	UTF8      = "utf-8"
	Latin1    = "latin-1"
	ISO8859_1 = "iso-8859-1"
	CP1252    = "cp1252"
)

// maxLineBytes bounds the first-line read
const maxLineBytes = 1 << 20

// Encodings lists candidate encodings in priority order
var Encodings = []string{UTF8, Latin1, ISO8859_1, CP1252}

// Delimiters lists candidate delimiters in priority order
var Delimiters = []rune{',', ';', '\t'}

// Result is the detected encoding and delimiter
type Result struct {
	Encoding  string
	Delimiter rune
	// Fallback is true when no candidate matched and defaults were returned
	Fallback bool
}

// Default is returned when detection fails
var Default = Result{Encoding: UTF8, Delimiter: ',', Fallback: true}

// Detect inspects the first line of the file at path. Unreadable files
// yield Default.
func Detect(path string) Result {
	f, err := os.Open(path)
	if err != nil {
		return Default
	}
	defer f.Close()

	line, err := FirstLine(f)
	if err != nil {
		return Default
	}
	return DetectLine(line)
}

// FirstLine reads up to the first newline, bounded in size. The trailing
// line terminator is removed.
func FirstLine(r io.Reader) ([]byte, error) {
	br := bufio.NewReaderSize(io.LimitReader(r, maxLineBytes), 64*1024)
	line, err := br.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return nil, err
	}
	if len(line) == 0 && err == io.EOF {
		return nil, io.EOF
	}
	return bytes.TrimRight(line, "\r\n"), nil
}

// DetectLine applies the detection rules to a raw first line
func DetectLine(line []byte) Result {
	for _, name := range Encodings {
		text, ok := decodeLine(line, name)
		if !ok {
			continue
		}
		for _, d := range Delimiters {
			if bytes.ContainsRune(text, d) {
				return Result{Encoding: name, Delimiter: d}
			}
		}
	}
	return Default
}

func decodeLine(line []byte, name string) ([]byte, bool) {
	if name == UTF8 {
		return line, utf8.Valid(line)
	}
	out, _, err := transform.Bytes(Decoder(name).NewDecoder(), line)
	if err != nil {
		return nil, false
	}
	return out, true
}

// Decoder returns the x/text encoding for a detected encoding name. UTF-8
// decoding strips a leading byte order mark and replaces invalid bytes
// with U+FFFD.
func Decoder(name string) encoding.Encoding {
	switch name {
	case Latin1, ISO8859_1:
		return charmap.ISO8859_1
	case CP1252:
		return charmap.Windows1252
	default:
		return unicode.UTF8BOM
	}
}

// NewDecodingReader wraps r so that it yields UTF-8 text
func NewDecodingReader(r io.Reader, name string) io.Reader {
	return transform.NewReader(r, Decoder(name).NewDecoder())
}
