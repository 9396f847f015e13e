package proto

// MessageType is the leading byte of a decrypted payload.
type MessageType uint8

const (
	MsgText      MessageType = 0x01
	MsgUserBase  MessageType = 0x80
	MsgFileChunk MessageType = 0xF1
)

func (t MessageType) String() string {
	switch t {
	case MsgText:
		return "text"
	case MsgFileChunk:
		return "file_chunk"
	}
	if t >= MsgUserBase {
		return "user"
	}
	return "unknown"
}

// PackMessage prefixes body with its type byte.
func PackMessage(t MessageType, body []byte) []byte {
	out := make([]byte, 1+len(body))
	out[0] = byte(t)
	copy(out[1:], body)
	return out
}

// UnpackMessage splits a plaintext into type and body. The body aliases data.
func UnpackMessage(data []byte) (MessageType, []byte, error) {
	if len(data) < 1 {
		return 0, nil, ErrEmptyMessage
	}
	return MessageType(data[0]), data[1:], nil
}
