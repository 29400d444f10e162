// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package pagelet

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// wsConn adapts a gorilla websocket connection to MessageConn. Envelopes
// travel one per binary message.
type wsConn struct {
	conn *websocket.Conn
}

func (w wsConn) ReadMessage() (p []byte, err error) {
	_, p, err = w.conn.ReadMessage()
	return
}

func (w wsConn) WriteMessage(p []byte) error {
	return w.conn.WriteMessage(websocket.BinaryMessage, p)
}

func (w wsConn) Close() error {
	return w.conn.Close()
}

// NewWebsocketConn wraps an established websocket connection for use as
// the shared transport endpoint.
func NewWebsocketConn(conn *websocket.Conn) MessageConn {
	return wsConn{conn: conn}
}

// DialWebsocket connects to a pagelet server at the given websocket URL.
func DialWebsocket(url string) (MessageConn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return wsConn{conn: conn}, nil
}

// UpgradeWebsocket upgrades an inbound HTTP request to a websocket and
// wraps it for use as the shared transport endpoint.
func UpgradeWebsocket(w http.ResponseWriter, r *http.Request) (MessageConn, error) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return wsConn{conn: conn}, nil
}
