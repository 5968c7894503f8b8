package realtime

import (
	"context"
	"net/http"

	"cchat/internal/apperr"

	"github.com/gorilla/websocket"
)

// Conn abstracts the websocket connection so sessions can be tested without
// a server. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a Conn. Implementations must report a rejected handshake
// (401/403) as an apperr AuthExpired error.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// WSDialer dials with gorilla/websocket.
type WSDialer struct {
	Dialer *websocket.Dialer
}

// Dial implements Dialer.
func (d WSDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			if resp.Body != nil {
				resp.Body.Close()
			}
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return nil, apperr.Expired(resp.StatusCode, err)
			}
			return nil, &apperr.Error{Kind: apperr.KindServerRejected, Status: resp.StatusCode, Err: err}
		}
		return nil, apperr.Network(err)
	}
	return conn, nil
}
