package spool

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Writer materializes one transaction into a spool file. The file is created
// with the NEW prefix and becomes visible to scanners only when Commit
// renames it to the MSG prefix.
type Writer struct {
	f       *os.File
	bw      *bufio.Writer
	tmpPath string
	done    bool
}

// NewWriter creates a NEW-prefixed file in dir and writes the envelope
// header. Uniqueness of the filename is delegated to os.CreateTemp.
func NewWriter(dir string, env Envelope) (*Writer, error) {
	f, err := os.CreateTemp(dir, NewPrefix)
	if err != nil {
		return nil, fmt.Errorf("creating spool file: %w", err)
	}

	w := &Writer{
		f:       f,
		bw:      bufio.NewWriter(f),
		tmpPath: f.Name(),
	}

	if err := w.writeHeader(env); err != nil {
		w.Abort()
		return nil, err
	}
	return w, nil
}

func (w *Writer) writeHeader(env Envelope) error {
	lines := []string{
		Magic,
		env.Sender.LocalPart,
		env.Sender.Domain,
	}
	for _, r := range env.Recipients {
		lines = append(lines, r.LocalPart, r.Domain)
	}
	lines = append(lines, endMarker)

	for _, line := range lines {
		if _, err := w.bw.WriteString(line + "\r\n"); err != nil {
			return fmt.Errorf("writing spool header: %w", err)
		}
	}
	return nil
}

// WriteLine appends one raw payload line, reattaching its CRLF. The line must
// not contain the terminator itself; reception strips the final "." line
// before calling.
func (w *Writer) WriteLine(line string) error {
	if _, err := w.bw.WriteString(line); err != nil {
		return fmt.Errorf("writing spool payload: %w", err)
	}
	if _, err := w.bw.WriteString("\r\n"); err != nil {
		return fmt.Errorf("writing spool payload: %w", err)
	}
	return nil
}

// WritePayload copies raw payload bytes from r. Used by the bounce generator,
// whose payload is produced as a stream rather than line by line.
func (w *Writer) WritePayload(r io.Reader) error {
	if _, err := io.Copy(w.bw, r); err != nil {
		return fmt.Errorf("writing spool payload: %w", err)
	}
	return nil
}

// Commit finishes the terminator, closes the file, and renames it from the
// NEW prefix to the MSG prefix. It returns the final path.
//
// The preceding payload (or the <END> line, for an empty payload) supplies
// the leading CRLF of the five-byte terminator.
func (w *Writer) Commit() (string, error) {
	if w.done {
		return "", fmt.Errorf("spool writer already finished")
	}

	if _, err := w.bw.WriteString(".\r\n"); err != nil {
		w.Abort()
		return "", fmt.Errorf("writing spool terminator: %w", err)
	}
	if err := w.bw.Flush(); err != nil {
		w.Abort()
		return "", fmt.Errorf("flushing spool file: %w", err)
	}
	if err := w.f.Close(); err != nil {
		w.discard()
		return "", fmt.Errorf("closing spool file: %w", err)
	}

	msgPath := msgPathFor(w.tmpPath)
	if err := os.Rename(w.tmpPath, msgPath); err != nil {
		w.discard()
		return "", fmt.Errorf("renaming spool file: %w", err)
	}

	w.done = true
	return msgPath, nil
}

// Abort closes and unlinks the NEW file. Safe to call after a failed Commit.
func (w *Writer) Abort() {
	if w.done {
		return
	}
	w.f.Close()
	w.discard()
}

func (w *Writer) discard() {
	os.Remove(w.tmpPath)
	w.done = true
}

// msgPathFor swaps the NEW prefix of the base name for MSG.
func msgPathFor(tmpPath string) string {
	dir, base := filepath.Split(tmpPath)
	return filepath.Join(dir, MsgPrefix+strings.TrimPrefix(base, NewPrefix))
}
