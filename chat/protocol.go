package chat

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/signchat/chat-relay/db"
)

// EventChatMessage is the only event the hub acts on.
const EventChatMessage = "chat message"

// Frame is one event on the wire.
type Frame struct {
	Event string            `json:"event"`
	Args  []json.RawMessage `json:"args"`
}

// outFrame is the server-to-client form; all args are strings.
type outFrame struct {
	Event string   `json:"event"`
	Args  []string `json:"args"`
}

var errMissingText = errors.New("chat message frame needs a string argument")

// decodeFrame parses a raw websocket frame.
func decodeFrame(raw []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(raw, &f)
	return f, err
}

// text returns the first argument of a chat message frame.
func (f Frame) text() (string, error) {
	if len(f.Args) == 0 {
		return "", errMissingText
	}
	var s string
	if err := json.Unmarshal(f.Args[0], &s); err != nil {
		return "", errMissingText
	}
	return s, nil
}

// encodeMessage renders a stored message as (content, id, username).
func encodeMessage(m db.Message) ([]byte, error) {
	return json.Marshal(outFrame{
		Event: EventChatMessage,
		Args:  []string{m.Content, strconv.FormatInt(m.ID, 10), m.Username},
	})
}
