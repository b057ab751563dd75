package wstransport

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/skythen/apdu"
)

// Reader is the reader side of the emulated field.
type Reader struct {
	conn *websocket.Conn
}

// Dial enters the field of the tag served at the given websocket url.
func Dial(ctx context.Context, url string) (*Reader, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("entering field: %s", resp.Status)
		}
		return nil, fmt.Errorf("entering field: %w", err)
	}
	return &Reader{conn}, nil
}

// ReadPayload reads the reply payload served by the tag.
func (r *Reader) ReadPayload() ([]byte, error) {
	return r.transmit(apdu.Capdu{Ins: InsReadBinary})
}

// WritePayload writes a request to the tag.
func (r *Reader) WritePayload(buf []byte) error {
	_, err := r.transmit(apdu.Capdu{Ins: InsUpdateBinary, Data: buf})
	return err
}

// Close leaves the field.
func (r *Reader) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	r.conn.WriteMessage(websocket.CloseMessage, msg)
	return r.conn.Close()
}

func (r *Reader) transmit(capdu apdu.Capdu) ([]byte, error) {
	if err := r.conn.WriteMessage(websocket.BinaryMessage, capdu.Bytes()); err != nil {
		return nil, err
	}

	_, msg, err := r.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	rapdu, err := apdu.ParseRapdu(msg)
	if err != nil {
		return nil, err
	}
	if rapdu.SW1 != swSuccess1 || rapdu.SW2 != swSuccess2 {
		return nil, fmt.Errorf("incorrect status word: %02x%02x", rapdu.SW1, rapdu.SW2)
	}
	return rapdu.Data, nil
}
