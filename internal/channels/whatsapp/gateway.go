// Package whatsapp implements the socket-paired chat channel. The
// platform is reached through a long-lived websocket gateway that speaks
// JSON frames; the manager owns exactly one socket per tenant and drives
// an explicit connection state machine from the gateway's event stream.
package whatsapp

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
)

// Gateway frame types.
const (
	// frames received from the gateway
	frameQR      = "qr"      // a fresh pairing code was issued
	frameOpen    = "open"    // session is authenticated and live
	frameClose   = "close"   // socket closed, Code explains why
	frameSendAck = "sendack" // outbound message acknowledged

	// frames sent to the gateway
	frameSend = "send"
	frameAuth = "auth"
)

// Gateway closure codes, mirroring the platform's disconnect reasons.
const (
	// CloseRestartRequired is issued right after a pairing code is
	// scanned: the platform wants a fresh socket with the just-persisted
	// auth material. It signals pairing success, not failure.
	CloseRestartRequired = 515

	// CloseLoggedOut means the device was removed remotely. Terminal:
	// auth material is void and a brand-new pairing is required.
	CloseLoggedOut = 401

	// CloseConnectionLost is an ordinary transport drop.
	CloseConnectionLost = 408
)

// Frame is one JSON message on the gateway socket.
type Frame struct {
	Type   string `json:"type"`
	ID     string `json:"id,omitempty"`     // send correlation id
	To     string `json:"to,omitempty"`     // destination (recipient or group)
	Body   string `json:"body,omitempty"`   // message text
	Code   int    `json:"code,omitempty"`   // close code or ack status
	Reason string `json:"reason,omitempty"` // close reason text
	QR     string `json:"qr,omitempty"`     // pairing code payload
	Auth   string `json:"auth,omitempty"`   // persisted auth blob
	MsgID  string `json:"msg_id,omitempty"` // platform message id on ack
}

// Conn is one live gateway socket. Implementations must be safe for one
// concurrent reader and one concurrent writer.
type Conn interface {
	ReadFrame() (*Frame, error)
	WriteFrame(*Frame) error
	Close() error
}

// Dialer opens a gateway socket. Swappable for tests.
type Dialer func(ctx context.Context, url string) (Conn, error)

type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) ReadFrame() (*Frame, error) {
	var f Frame
	if err := c.ws.ReadJSON(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *wsConn) WriteFrame(f *Frame) error {
	return c.ws.WriteJSON(f)
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

// DialGateway is the production Dialer using gorilla/websocket.
func DialGateway(ctx context.Context, url string) (Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return &wsConn{ws: ws}, nil
}
