// Package control serves a recording session's live History over a unix
// socket next to its session file.
//
// The session file only holds flushed commands. Queries that must see the
// whole session, buffer included, ask the recorder through this socket and
// fall back to the file when no recorder answers.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/fakeyudi/shlog/internal/history"
)

const socketExt = ".sock"

// SocketPath returns the control socket of session id in dir.
func SocketPath(dir, id string) string {
	return filepath.Join(dir, "shlog-"+id+socketExt)
}

// Info describes a live session.
type Info struct {
	SessionID    string `json:"sessionid"`
	Filename     string `json:"filename"`
	Length       int    `json:"length"`
	BufferSize   int    `json:"buffersize"`
	BufferLength int    `json:"bufferlength"`
}

// Item is one selected input and its index in the session.
type Item struct {
	Index int    `json:"index"`
	Input string `json:"inp"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Error codes carried in error responses.
const (
	codeEmpty    = "empty"
	codeIndex    = "index"
	codeBadIndex = "bad_index"
	codeBadSize  = "bad_size"
)

// Server answers queries about one History.
type Server struct {
	hist   *history.History
	logger zerolog.Logger
	srv    *http.Server
}

// NewServer returns a server for h. A nil logger discards log output.
func NewServer(h *history.History, logger *zerolog.Logger) *Server {
	s := &Server{hist: h, logger: zerolog.Nop()}
	if logger != nil {
		s.logger = logger.With().Str("component", "control").Str("session", h.SessionID()).Logger()
	}

	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		r.Get("/info", s.handleInfo)
		r.Get("/inputs", s.handleInputs)
		r.Get("/commands", s.handleCommands)
		r.Post("/gc", s.handleGC)
	})
	s.srv = &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}
	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Listen binds the socket at path, replacing a stale one left by a recorder
// that did not shut down.
func Listen(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return net.Listen("unix", path)
}

// Serve answers requests on l until ctx is done. Closing the listener
// removes the socket file.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	s.logger.Debug().Str("addr", l.Addr().String()).Msg("control socket listening")

	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(cctx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, history.ErrEmpty):
		resp.Code = codeEmpty
	case errors.Is(err, history.ErrIndex):
		resp.Code = codeIndex
	case errors.Is(err, history.ErrBadIndex):
		resp.Code = codeBadIndex
	default:
		status = http.StatusInternalServerError
		s.logger.Error().Err(err).Msg("control request failed")
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Info{
		SessionID:    s.hist.SessionID(),
		Filename:     s.hist.Filename(),
		Length:       s.hist.Len(),
		BufferSize:   s.hist.BufferSize(),
		BufferLength: s.hist.BufferLen(),
	})
}

// handleInputs answers ?index=N or ?index=start:stop:step; no index selects
// every input.
func (s *Server) handleInputs(w http.ResponseWriter, r *http.Request) {
	idx := history.Index{Slice: true}
	if q := r.URL.Query().Get("index"); q != "" {
		var err error
		if idx, err = history.ParseIndex(q); err != nil {
			s.writeError(w, err)
			return
		}
	}
	positions, inputs, err := history.Pick(s.hist.Inputs(), idx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	items := make([]Item, len(positions))
	for i, p := range positions {
		items[i] = Item{Index: p, Input: inputs[i]}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	cmds, err := s.hist.Commands()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if cmds == nil {
		cmds = []history.Command{}
	}
	writeJSON(w, http.StatusOK, cmds)
}

// handleGC starts a collection in the recorder and returns without waiting
// for it. ?size= overrides the session's configured size.
func (s *Server) handleGC(w http.ResponseWriter, r *http.Request) {
	var size *history.Size
	if q := r.URL.Query().Get("size"); q != "" {
		parsed, err := history.ParseSize(q)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: codeBadSize})
			return
		}
		size = &parsed
	}
	s.hist.GC(context.WithoutCancel(r.Context()), size)
	w.WriteHeader(http.StatusAccepted)
}
