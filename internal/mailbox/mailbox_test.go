package mailbox

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/infodancer/mailserv/internal/address"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "alice"), 0o700); err != nil {
		t.Fatal(err)
	}

	reg := NewRegistry([]DomainEntry{
		{Domain: "example.com", Root: root},
	})
	return reg, root
}

func TestRegistryLookup(t *testing.T) {
	reg, root := newTestRegistry(t)

	tests := []struct {
		name   string
		domain string
		local  string
		want   LookupResult
	}{
		{name: "existing mailbox", domain: "example.com", local: "alice", want: Found},
		{name: "domain case-insensitive", domain: "EXAMPLE.COM", local: "alice", want: Found},
		{name: "unknown mailbox", domain: "example.com", local: "carol", want: NotFound},
		{name: "remote domain", domain: "remote.net", local: "alice", want: DomainNotLocal},
		{name: "path escape", domain: "example.com", local: "../alice", want: NotFound},
		{name: "dot dot", domain: "example.com", local: "..", want: NotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, result := reg.Lookup(tt.domain, tt.local)
			if result != tt.want {
				t.Fatalf("Lookup(%q, %q) = %v, want %v", tt.domain, tt.local, result, tt.want)
			}
			if result == Found && path != filepath.Join(root, tt.local) {
				t.Errorf("path = %q, want %q", path, filepath.Join(root, tt.local))
			}
		})
	}
}

func TestRegistryFirstMatchWins(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	if err := os.MkdirAll(filepath.Join(rootB, "alice"), 0o700); err != nil {
		t.Fatal(err)
	}

	// Same domain registered twice; the first entry wins even though only
	// the second root holds the mailbox.
	reg := NewRegistry([]DomainEntry{
		{Domain: "example.com", Root: rootA},
		{Domain: "example.com", Root: rootB},
	})

	if _, result := reg.Lookup("example.com", "alice"); result != NotFound {
		t.Errorf("Lookup = %v, want NotFound (first entry must win)", result)
	}
}

func TestListMessages(t *testing.T) {
	dir := t.TempDir()

	files := map[string]string{
		"MSGaaa":       "first",
		"MSGbbb":       "second message",
		"NEWccc":       "in progress",
		"userconf.txt": "password:secret",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "MSGdir"), 0o700); err != nil {
		t.Fatal(err)
	}

	messages, err := ListMessages(dir)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}

	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2: %v", len(messages), messages)
	}
	for _, m := range messages {
		base := filepath.Base(m.Path)
		want := int64(len(files[base]))
		if m.Size != want {
			t.Errorf("%s: size = %d, want %d", base, m.Size, want)
		}
	}
}

func TestReadUserConf(t *testing.T) {
	dir := t.TempDir()
	content := "name:Alice Example\r\npassword:s3cret\r\nforward:\r\n"
	if err := os.WriteFile(filepath.Join(dir, UserConfName), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	conf, err := ReadUserConf(dir)
	if err != nil {
		t.Fatalf("ReadUserConf: %v", err)
	}
	if conf.Password != "s3cret" {
		t.Errorf("Password = %q, want %q", conf.Password, "s3cret")
	}
}

func TestReadUserConfMissingPassword(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, UserConfName), []byte("name:x\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadUserConf(dir); err == nil {
		t.Error("ReadUserConf should fail without a password entry")
	}
}

func TestDeliver(t *testing.T) {
	dir := t.TempDir()
	payload := "Subject: hi\r\n\r\nbody"

	path, err := Deliver(dir, strings.NewReader(payload))
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if !strings.HasPrefix(filepath.Base(path), "MSG") {
		t.Errorf("delivered file %q does not carry the MSG prefix", path)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != payload {
		t.Errorf("delivered content = %q, want %q", got, payload)
	}

	// No NEW file may remain.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "NEW") {
			t.Errorf("leftover in-progress file %q", e.Name())
		}
	}
}

func TestLockRegistry(t *testing.T) {
	locks := NewLockRegistry()
	alice := address.Mailbox{LocalPart: "alice", Domain: "example.com"}

	if !locks.Acquire(alice) {
		t.Fatal("first Acquire should succeed")
	}
	if locks.Acquire(alice) {
		t.Error("second Acquire should fail while held")
	}
	// Case-insensitive equivalence.
	if locks.Acquire(address.Mailbox{LocalPart: "ALICE", Domain: "Example.COM"}) {
		t.Error("Acquire with different case should fail while held")
	}

	if !locks.Release(alice) {
		t.Error("Release of held lock should succeed")
	}
	if locks.Release(alice) {
		t.Error("Release of free lock should fail")
	}
	if !locks.Acquire(alice) {
		t.Error("Acquire after Release should succeed")
	}
}

func TestLockRegistryConcurrent(t *testing.T) {
	locks := NewLockRegistry()
	mb := address.Mailbox{LocalPart: "alice", Domain: "example.com"}

	const attempts = 100
	acquired := make(chan bool, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acquired <- locks.Acquire(mb)
		}()
	}
	wg.Wait()
	close(acquired)

	wins := 0
	for ok := range acquired {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("%d concurrent Acquires succeeded, want exactly 1", wins)
	}
}
