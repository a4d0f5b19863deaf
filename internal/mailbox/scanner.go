package mailbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MessageInfo describes one delivered message file.
type MessageInfo struct {
	Path string
	Size int64
}

// ListMessages enumerates the regular MSG-prefixed files under dir, returning
// their absolute paths and sizes. NEW-prefixed in-progress files and
// subdirectories are skipped. Order is filesystem-defined.
func ListMessages(dir string) ([]MessageInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}

	var messages []MessageInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "MSG") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// The file may have been unlinked between ReadDir and Info.
			continue
		}
		messages = append(messages, MessageInfo{
			Path: filepath.Join(dir, e.Name()),
			Size: info.Size(),
		})
	}
	return messages, nil
}
