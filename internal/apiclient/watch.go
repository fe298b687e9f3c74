package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"mixtape/internal/workflow"
)

// Watch streams progress for batch id until the daemon closes the stream,
// which it does once the batch reaches a terminal status or is deleted. fn is
// called for every update; a non-nil return stops watching with that error.
func (c *Client) Watch(ctx context.Context, id string, fn func(workflow.Progress) error) error {
	wsURL, err := c.websocketURL("/api/batches/" + url.PathEscape(id) + "/ws")
	if err != nil {
		return err
	}
	header := http.Header{}
	c.authorize(header)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return c.handshakeError(resp)
		}
		if isUnavailable(err) {
			return fmt.Errorf("%w at %s", ErrDaemonUnavailable, c.baseURL)
		}
		return fmt.Errorf("open progress stream: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var progress workflow.Progress
		if err := conn.ReadJSON(&progress); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("read progress: %w", err)
		}
		if err := fn(progress); err != nil {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return err
		}
	}
}

func (c *Client) websocketURL(path string) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse api url: %w", err)
	}
	switch strings.ToLower(base.Scheme) {
	case "https":
		base.Scheme = "wss"
	case "http", "":
		base.Scheme = "ws"
	default:
		return "", errors.New("unsupported api url scheme " + base.Scheme)
	}
	return base.String() + path, nil
}

func (c *Client) handshakeError(resp *http.Response) error {
	var env envelope
	if err := decodeEnvelope(resp, &env); err != nil || env.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Kind: "handshake", Message: "progress stream rejected: " + resp.Status}
	}
	return &APIError{StatusCode: resp.StatusCode, Kind: env.Error, Message: env.Message}
}
