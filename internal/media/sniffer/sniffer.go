package sniffer

import (
	"bytes"
	"errors"
	"io"
	"unicode/utf8"
)

type FileType string

const (
	TypeXLSX FileType = "xlsx"
	TypeXLS  FileType = "xls"
	TypeCSV  FileType = "csv"
)

var ErrUnknownType = errors.New("unknown file type")

type Result struct {
	Type FileType
	MIME string
}

var (
	zipMagic  = []byte{'P', 'K', 0x03, 0x04}
	ole2Magic = []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}
)

// Detect reads up to 512 bytes from r and classifies them. The bytes read
// are returned so the caller can stitch the stream back together.
func Detect(r io.Reader) (Result, []byte, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Result{}, nil, err
	}
	head = head[:n]

	result, err := DetectHead(head)
	return result, head, err
}

func DetectHead(head []byte) (Result, error) {
	if len(head) == 0 {
		return Result{}, ErrUnknownType
	}

	if bytes.HasPrefix(head, zipMagic) {
		return Result{Type: TypeXLSX, MIME: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"}, nil
	}
	if bytes.HasPrefix(head, ole2Magic) {
		return Result{Type: TypeXLS, MIME: "application/vnd.ms-excel"}, nil
	}
	if isText(head) {
		return Result{Type: TypeCSV, MIME: "text/csv"}, nil
	}

	return Result{}, ErrUnknownType
}

// isText accepts UTF-8 without NUL bytes. A multi-byte rune cut at the
// 512 byte boundary is tolerated.
func isText(head []byte) bool {
	if bytes.IndexByte(head, 0) >= 0 {
		return false
	}
	head = bytes.TrimPrefix(head, []byte{0xef, 0xbb, 0xbf})
	for len(head) > 0 {
		r, size := utf8.DecodeRune(head)
		if r == utf8.RuneError && size <= 1 {
			return len(head) < utf8.UTFMax && !utf8.FullRune(head)
		}
		head = head[size:]
	}
	return true
}
