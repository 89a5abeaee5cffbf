package relay

// MessageType identifies the kind of panel message.
type MessageType string

const (
	// server → browser
	MsgTypeLocal MessageType = "local"
	MsgTypeState MessageType = "state"

	// browser → server
	MsgTypeRemote  MessageType = "remote"
	MsgTypeConnect MessageType = "connect"
	MsgTypeHangup  MessageType = "hangup"
)

// Message is the JSON structure exchanged with the panel page.
type Message struct {
	Type  MessageType `json:"type"`
	Kind  string      `json:"kind,omitempty"`
	Text  string      `json:"text,omitempty"`
	State string      `json:"state,omitempty"`
}
