package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/fakeyudi/shlog/internal/history"
)

// ErrNotRunning is returned when no recorder listens on a session's socket.
var ErrNotRunning = errors.New("session recorder not running")

// ErrBadSize is returned when the recorder rejects a collection size.
var ErrBadSize = errors.New("invalid history size")

// Client queries the recorder of one session.
type Client struct {
	path string
	http *http.Client
}

// NewClient returns a client for the socket at path. Nothing is dialed
// until the first request.
func NewClient(path string) *Client {
	return &Client{
		path: path,
		http: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", path)
				},
			},
		},
	}
}

// Info returns the live session's counters.
func (c *Client) Info(ctx context.Context) (Info, error) {
	var info Info
	err := c.do(ctx, http.MethodGet, "/v1/info", nil, &info)
	return info, err
}

// Inputs returns the inputs selected by index, an int or start:stop:step
// slice; an empty index selects every input.
func (c *Client) Inputs(ctx context.Context, index string) ([]Item, error) {
	q := url.Values{}
	if index != "" {
		q.Set("index", index)
	}
	var items []Item
	err := c.do(ctx, http.MethodGet, "/v1/inputs", q, &items)
	return items, err
}

// Commands returns every command of the session, flushed or buffered.
func (c *Client) Commands(ctx context.Context) ([]history.Command, error) {
	var cmds []history.Command
	err := c.do(ctx, http.MethodGet, "/v1/commands", nil, &cmds)
	return cmds, err
}

// GC starts a collection in the recorder. An empty size uses the
// recorder's configured one.
func (c *Client) GC(ctx context.Context, size string) error {
	q := url.Values{}
	if size != "" {
		q.Set("size", size)
	}
	return c.do(ctx, http.MethodPost, "/v1/gc", q, nil)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, out any) error {
	u := url.URL{Scheme: "http", Host: "shlog", Path: path, RawQuery: q.Encode()}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return fmt.Errorf("%s: %w", c.path, ErrNotRunning)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var e errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			return fmt.Errorf("recorder answered %s", resp.Status)
		}
		if sentinel := codeError(e.Code); sentinel != nil {
			return fmt.Errorf("%s: %w", e.Error, sentinel)
		}
		return errors.New(e.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding recorder response: %w", err)
	}
	return nil
}

func codeError(code string) error {
	switch code {
	case codeEmpty:
		return history.ErrEmpty
	case codeIndex:
		return history.ErrIndex
	case codeBadIndex:
		return history.ErrBadIndex
	case codeBadSize:
		return ErrBadSize
	}
	return nil
}
