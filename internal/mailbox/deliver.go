package mailbox

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Deliver writes payload into the mailbox directory as a new message file.
// The file is created with a NEW prefix and renamed to MSG once fully
// written, so a concurrent POP3 scan never sees a partial message.
// Returns the final message path.
func Deliver(dir string, payload io.Reader) (string, error) {
	f, err := os.CreateTemp(dir, "NEW")
	if err != nil {
		return "", fmt.Errorf("creating message file: %w", err)
	}
	tmpPath := f.Name()

	if _, err := io.Copy(f, payload); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("writing message file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("closing message file: %w", err)
	}

	d, base := filepath.Split(tmpPath)
	msgPath := filepath.Join(d, "MSG"+strings.TrimPrefix(base, "NEW"))
	if err := os.Rename(tmpPath, msgPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("renaming message file: %w", err)
	}
	return msgPath, nil
}
