// Package spool implements the on-disk format shared by SMTP reception and
// the dispatcher.
//
// A spool file records one accepted SMTP transaction:
//
//	MAILSERV SENDER FILE
//	<sender local part>
//	<sender domain>
//	<recipient local part>
//	<recipient domain>
//	...
//	<END>
//	<raw message bytes, verbatim>
//	CRLF . CRLF
//
// Lines are CRLF-terminated. Files are written under a NEW prefix and renamed
// to MSG once complete, so a reader that sees a MSG file sees all of it.
package spool

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/infodancer/mailserv/internal/address"
)

// Magic is the required first line of every spool file.
const Magic = "MAILSERV SENDER FILE"

// endMarker separates the recipient list from the message payload.
const endMarker = "<END>"

// Terminator is the required final five bytes of a complete spool file.
var Terminator = []byte{'\r', '\n', '.', '\r', '\n'}

const (
	// NewPrefix marks a file still being written. Scanners skip it.
	NewPrefix = "NEW"
	// MsgPrefix marks a complete file ready for processing.
	MsgPrefix = "MSG"
)

var (
	// ErrIncomplete marks a file without the final CRLF.CRLF terminator.
	// Such a file may still be in the process of being written and must be
	// left in place.
	ErrIncomplete = errors.New("spool file lacks terminator")

	// ErrMalformed marks a terminated file whose header cannot be parsed.
	// Such a file is corrupt and should be removed.
	ErrMalformed = errors.New("malformed spool file")
)

// Envelope is the sender and recipient set of one transaction.
type Envelope struct {
	Sender     address.Mailbox
	Recipients []address.Mailbox
}

// File is an open, validated spool file.
type File struct {
	Path     string
	Envelope Envelope

	f            *os.File
	size         int64
	payloadStart int64
	payloadEnd   int64 // file size minus the 5-byte terminator
}

// Open opens and validates the spool file at path.
//
// The terminator is checked before anything else: a file without it returns
// ErrIncomplete and must be left alone. A terminated file with a bad magic
// line, a missing recipient domain, or no recipients returns ErrMalformed.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening spool file: %w", err)
	}

	sf, err := parse(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return sf, nil
}

func parse(f *os.File, path string) (*File, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat spool file: %w", err)
	}
	size := info.Size()

	// Shorter than magic + CRLF + terminator cannot be complete.
	if size < int64(len(Magic))+2+int64(len(Terminator)) {
		return nil, ErrIncomplete
	}

	tail := make([]byte, len(Terminator))
	if _, err := f.ReadAt(tail, size-int64(len(Terminator))); err != nil {
		return nil, fmt.Errorf("reading spool terminator: %w", err)
	}
	if !bytes.Equal(tail, Terminator) {
		return nil, ErrIncomplete
	}

	lr := newLineReader(f)

	magic, err := lr.readLine()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if magic != Magic {
		return nil, fmt.Errorf("%w: bad magic line %q", ErrMalformed, magic)
	}

	var env Envelope
	first := true
	for {
		local, err := lr.readLine()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if local == endMarker {
			break
		}

		domain, err := lr.readLine()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if domain == endMarker {
			return nil, fmt.Errorf("%w: recipient %q has no domain", ErrMalformed, local)
		}

		mb := address.Mailbox{LocalPart: local, Domain: domain}
		if first {
			env.Sender = mb
			first = false
		} else {
			env.Recipients = append(env.Recipients, mb)
		}
	}

	if first {
		return nil, fmt.Errorf("%w: no sender", ErrMalformed)
	}
	if len(env.Recipients) == 0 {
		return nil, fmt.Errorf("%w: no recipients", ErrMalformed)
	}

	start := lr.offset
	end := size - int64(len(Terminator))
	if end < start {
		// Empty payload: the <END> line's CRLF doubles as the start of the
		// terminator, leaving nothing between header and terminator.
		end = start
	}

	return &File{
		Path:         path,
		Envelope:     env,
		f:            f,
		size:         size,
		payloadStart: start,
		payloadEnd:   end,
	}, nil
}

// Payload returns a reader over the raw message bytes, excluding the
// terminator. This is what a local mailbox delivery stores.
func (sf *File) Payload() io.Reader {
	return io.NewSectionReader(sf.f, sf.payloadStart, sf.payloadEnd-sf.payloadStart)
}

// PayloadSize returns the payload length in bytes.
func (sf *File) PayloadSize() int64 {
	return sf.payloadEnd - sf.payloadStart
}

// WirePayload returns a reader over the message bytes including the final
// CRLF.CRLF, which doubles as the SMTP DATA framing for remote delivery.
func (sf *File) WirePayload() io.Reader {
	return io.NewSectionReader(sf.f, sf.payloadStart, sf.size-sf.payloadStart)
}

// Close closes the underlying file.
func (sf *File) Close() error {
	return sf.f.Close()
}

// lineReader reads CRLF-terminated lines while tracking the byte offset,
// so the payload start can be recorded without buffering past it.
type lineReader struct {
	f      *os.File
	offset int64
}

func newLineReader(f *os.File) *lineReader {
	return &lineReader{f: f}
}

func (lr *lineReader) readLine() (string, error) {
	var sb strings.Builder
	buf := make([]byte, 1)
	sawCR := false

	for {
		if _, err := lr.f.ReadAt(buf, lr.offset); err != nil {
			return "", fmt.Errorf("reading header line: %w", err)
		}
		lr.offset++

		c := buf[0]
		if sawCR {
			if c == '\n' {
				return sb.String(), nil
			}
			sb.WriteByte('\r')
			sawCR = false
		}
		if c == '\r' {
			sawCR = true
			continue
		}
		sb.WriteByte(c)

		if sb.Len() > maxHeaderLine {
			return "", errors.New("header line too long")
		}
	}
}

// Header lines hold a single local part or domain; anything longer than an
// SMTP text line is garbage.
const maxHeaderLine = 1000

// IsSpoolMessage reports whether name carries the MSG prefix.
func IsSpoolMessage(name string) bool {
	return strings.HasPrefix(filepath.Base(name), MsgPrefix)
}
