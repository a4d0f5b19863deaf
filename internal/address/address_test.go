package address

import "testing"

func TestParseMailbox(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Mailbox
		wantErr bool
	}{
		{name: "simple", input: "a@b", want: Mailbox{LocalPart: "a", Domain: "b"}},
		{name: "dotted local part", input: "first.last@example.com", want: Mailbox{LocalPart: "first.last", Domain: "example.com"}},
		{name: "quoted local part", input: `"a b"@c`, want: Mailbox{LocalPart: `"a b"`, Domain: "c"}},
		{name: "ipv4 domain", input: "a@192.168.0.1", want: Mailbox{LocalPart: "a", Domain: "192.168.0.1"}},
		{name: "hyphenated domain", input: "a@mail-1.example.com", want: Mailbox{LocalPart: "a", Domain: "mail-1.example.com"}},
		{name: "missing local part", input: "@b", wantErr: true},
		{name: "missing domain", input: "a@", wantErr: true},
		{name: "no separator", input: "ab", wantErr: true},
		{name: "empty atom", input: "a..b@c", wantErr: true},
		{name: "leading dot", input: ".a@c", wantErr: true},
		{name: "trailing dot", input: "a.@c", wantErr: true},
		{name: "space in bare local part", input: "a b@c", wantErr: true},
		{name: "domain leading dot", input: "a@.example.com", wantErr: true},
		{name: "domain leading hyphen", input: "a@-example.com", wantErr: true},
		{name: "octet out of range", input: "a@1.2.3.256", wantErr: true},
		{name: "unterminated quote", input: `"a b@c`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMailbox(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseMailbox(%q) = %v, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMailbox(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseMailbox(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Mailbox
		wantErr bool
	}{
		{name: "plain", input: "<alice@example.com>", want: Mailbox{LocalPart: "alice", Domain: "example.com"}},
		{name: "source route", input: "<@relay.example.net:alice@example.com>", want: Mailbox{LocalPart: "alice", Domain: "example.com"}},
		{name: "multi hop route", input: "<@a.example,@b.example:bob@c.example>", want: Mailbox{LocalPart: "bob", Domain: "c.example"}},
		{name: "missing brackets", input: "alice@example.com", wantErr: true},
		{name: "empty path", input: "<>", wantErr: true},
		{name: "missing close bracket", input: "<alice@example.com", wantErr: true},
		{name: "bad mailbox in path", input: "<a..b@example.com>", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePath(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParsePath(%q) = %v, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePath(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParsePath(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestMailboxKey(t *testing.T) {
	a := Mailbox{LocalPart: "Alice", Domain: "Example.COM"}
	b := Mailbox{LocalPart: "alice", Domain: "example.com"}
	if a.Key() != b.Key() {
		t.Errorf("Key() mismatch: %q vs %q", a.Key(), b.Key())
	}
}

func TestMailboxEqual(t *testing.T) {
	base := Mailbox{LocalPart: "alice", Domain: "example.com"}

	if !base.Equal(Mailbox{LocalPart: "alice", Domain: "EXAMPLE.com"}) {
		t.Error("domain comparison should be case-insensitive")
	}
	if base.Equal(Mailbox{LocalPart: "Alice", Domain: "example.com"}) {
		t.Error("local part comparison should be case-sensitive")
	}
}
