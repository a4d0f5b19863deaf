package mailbox

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// UserConfName is the per-mailbox account settings file.
const UserConfName = "userconf.txt"

// ErrNoPassword is returned when userconf.txt has no password entry.
var ErrNoPassword = errors.New("no password configured")

// UserConf holds the per-mailbox account settings.
type UserConf struct {
	// Password is the account's cleartext password.
	Password string
}

// ReadUserConf parses userconf.txt in the given mailbox directory.
// The file holds one key:value pair per line; unknown keys are ignored.
func ReadUserConf(dir string) (UserConf, error) {
	f, err := os.Open(filepath.Join(dir, UserConfName))
	if err != nil {
		return UserConf{}, fmt.Errorf("opening userconf: %w", err)
	}
	defer f.Close()

	var conf UserConf
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		if strings.TrimSpace(key) == "password" {
			conf.Password = value
		}
	}
	if err := scanner.Err(); err != nil {
		return UserConf{}, fmt.Errorf("reading userconf: %w", err)
	}

	if conf.Password == "" {
		return UserConf{}, ErrNoPassword
	}
	return conf, nil
}
