package smtpclient

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptedServer is a loopback SMTP server that answers each command with
// a canned reply and records the dialogue.
type scriptedServer struct {
	ln      net.Listener
	replies map[string]string

	mu       sync.Mutex
	commands []string
	payload  string
}

func newScriptedServer(t *testing.T, replies map[string]string) *scriptedServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := &scriptedServer{ln: ln, replies: replies}
	t.Cleanup(func() { _ = ln.Close() })

	go s.serve()
	return s
}

func (s *scriptedServer) serve() {
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	w := bufio.NewWriter(conn)
	r := bufio.NewReader(conn)

	w.WriteString("220 test server ready\r\n")
	w.Flush()

	inData := false
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")

		if inData {
			if line == "." {
				inData = false
				w.WriteString("250 message accepted\r\n")
				w.Flush()
				continue
			}
			s.mu.Lock()
			s.payload += line + "\r\n"
			s.mu.Unlock()
			continue
		}

		s.mu.Lock()
		s.commands = append(s.commands, line)
		s.mu.Unlock()

		verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
		verb = strings.TrimSuffix(verb, ":")
		if strings.HasPrefix(strings.ToUpper(line), "MAIL FROM") {
			verb = "MAIL"
		} else if strings.HasPrefix(strings.ToUpper(line), "RCPT TO") {
			verb = "RCPT"
		}

		if verb == "QUIT" {
			w.WriteString("221 bye\r\n")
			w.Flush()
			return
		}

		reply, ok := s.replies[verb]
		if !ok {
			reply = "250 ok"
		}
		w.WriteString(reply + "\r\n")
		w.Flush()

		if verb == "DATA" && strings.HasPrefix(reply, "354") {
			inData = true
		}
	}
}

func (s *scriptedServer) host() (string, string) {
	host, port, _ := net.SplitHostPort(s.ln.Addr().String())
	return host, port
}

func (s *scriptedServer) sawCommand(prefix string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.commands {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSendSuccess(t *testing.T) {
	srv := newScriptedServer(t, map[string]string{
		"DATA": "354 go ahead",
	})
	host, port := srv.host()

	client := &Client{HeloName: "mx.example.com", Port: port}
	msg := &Message{
		Sender:     "alice@example.com",
		Recipients: []string{"bob@example.org"},
		Payload:    strings.NewReader("Subject: hi\r\n\r\nbody\r\n.\r\n"),
	}

	if err := client.Send(testContext(t), host, msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if !srv.sawCommand("HELO mx.example.com") {
		t.Error("server did not see HELO")
	}
	if !srv.sawCommand("MAIL FROM:<alice@example.com>") {
		t.Error("server did not see MAIL FROM")
	}
	if !srv.sawCommand("RCPT TO:<bob@example.org>") {
		t.Error("server did not see RCPT TO")
	}

	srv.mu.Lock()
	payload := srv.payload
	srv.mu.Unlock()
	if payload != "Subject: hi\r\n\r\nbody\r\n" {
		t.Errorf("server received payload %q", payload)
	}
}

func TestSendNullSender(t *testing.T) {
	srv := newScriptedServer(t, map[string]string{
		"DATA": "354 go ahead",
	})
	host, port := srv.host()

	client := &Client{HeloName: "mx.example.com", Port: port}
	msg := &Message{
		Sender:     "",
		Recipients: []string{"bob@example.org"},
		Payload:    strings.NewReader("bounce\r\n.\r\n"),
	}

	if err := client.Send(testContext(t), host, msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !srv.sawCommand("MAIL FROM:<>") {
		t.Error("server did not see null reverse-path")
	}
}

func TestSendRejectedSender(t *testing.T) {
	srv := newScriptedServer(t, map[string]string{
		"MAIL": "553 sender blocked",
	})
	host, port := srv.host()

	client := &Client{HeloName: "mx.example.com", Port: port}
	msg := &Message{
		Sender:     "alice@example.com",
		Recipients: []string{"bob@example.org"},
		Payload:    strings.NewReader(".\r\n"),
	}

	err := client.Send(testContext(t), host, msg)
	var sendErr *SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("err = %v, want *SendError", err)
	}
	if sendErr.Reason != FailRejectedSender {
		t.Errorf("Reason = %v, want FailRejectedSender", sendErr.Reason)
	}
}

func TestSendMailboxNotFound(t *testing.T) {
	srv := newScriptedServer(t, map[string]string{
		"RCPT": "550 no such user",
	})
	host, port := srv.host()

	client := &Client{HeloName: "mx.example.com", Port: port}
	msg := &Message{
		Sender:     "alice@example.com",
		Recipients: []string{"nobody@example.org"},
		Payload:    strings.NewReader(".\r\n"),
	}

	err := client.Send(testContext(t), host, msg)
	var sendErr *SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("err = %v, want *SendError", err)
	}
	if sendErr.Reason != FailMailboxNotFound {
		t.Errorf("Reason = %v, want FailMailboxNotFound", sendErr.Reason)
	}
}

func TestSendCouldNotConnect(t *testing.T) {
	// Grab a port that nothing is listening on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	host, port, _ := net.SplitHostPort(ln.Addr().String())
	ln.Close()

	client := &Client{HeloName: "mx.example.com", Port: port}
	msg := &Message{
		Sender:     "alice@example.com",
		Recipients: []string{"bob@example.org"},
		Payload:    strings.NewReader(".\r\n"),
	}

	sendErr := new(SendError)
	err = client.Send(testContext(t), host, msg)
	if !errors.As(err, &sendErr) {
		t.Fatalf("err = %v, want *SendError", err)
	}
	if sendErr.Reason != FailCouldNotConnect {
		t.Errorf("Reason = %v, want FailCouldNotConnect", sendErr.Reason)
	}
}
