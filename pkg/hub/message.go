package hub

// MessageType selects the websocket frame type a Message is sent as.
type MessageType int

const (
	// JSONMessage is sent as a text frame carrying pre-encoded JSON.
	JSONMessage MessageType = iota
	// BinaryMessage is sent as a binary frame (JPEG snapshots).
	BinaryMessage
)

// Message is one broadcast payload.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON bytes.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps raw binary data.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}
