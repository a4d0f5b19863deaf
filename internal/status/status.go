// Package status serves a read-only HTTP page summarizing the running
// server: identity, listener addresses, uptime, and spool depth.
package status

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/infodancer/mailserv/internal/spool"
)

// Info is the static part of the status report.
type Info struct {
	Hostname    string   `json:"hostname"`
	SMTPAddress string   `json:"smtp_address"`
	POP3Address string   `json:"pop3_address"`
	Domains     []string `json:"domains"`
}

// report is one rendered status snapshot.
type report struct {
	Info
	Uptime     string `json:"uptime"`
	SpoolDepth int    `json:"spool_depth"`
}

// Server serves the status page.
type Server struct {
	server   *http.Server
	info     Info
	spoolDir string
	started  time.Time
}

// NewServer creates a status server listening on address.
func NewServer(address string, info Info, spoolDir string) *Server {
	s := &Server{
		info:     info,
		spoolDir: spoolDir,
		started:  time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleStatus)
	s.server = &http.Server{
		Addr:    address,
		Handler: mux,
	}
	return s
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rep := report{
		Info:       s.info,
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		SpoolDepth: s.spoolDepth(),
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(rep)
}

// spoolDepth counts completed spool files awaiting dispatch.
func (s *Server) spoolDepth() int {
	entries, err := os.ReadDir(s.spoolDir)
	if err != nil {
		return 0
	}
	depth := 0
	for _, e := range entries {
		if !e.IsDir() && spool.IsSpoolMessage(e.Name()) {
			depth++
		}
	}
	return depth
}

// Start begins serving. It blocks until the context is canceled or an error
// occurs. Returns nil when the server is shut down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the status server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
