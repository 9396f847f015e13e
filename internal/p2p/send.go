package p2p

import "github.com/cappuch/lib-p2pchat/internal/proto"

// SendMessage sends raw plaintext to dest. See Router.SendMessage.
func (n *Node) SendMessage(dest proto.NodeID, data []byte) error {
	return n.router.SendMessage(dest, data)
}

// SendText sends a MsgText message.
func (n *Node) SendText(dest proto.NodeID, text string) error {
	return n.SendMessage(dest, proto.PackMessage(proto.MsgText, []byte(text)))
}

// SendTyped sends body tagged with t.
func (n *Node) SendTyped(dest proto.NodeID, t proto.MessageType, body []byte) error {
	return n.SendMessage(dest, proto.PackMessage(t, body))
}

// OnTypedMessage registers a typed handler. It runs on the node worker and
// must not block.
func (n *Node) OnTypedMessage(h TypedHandler) { n.router.OnTypedMessage(h) }

// OnMessage registers a raw plaintext handler. It runs on the node worker
// after all typed handlers and must not block.
func (n *Node) OnMessage(h MessageHandler) { n.router.OnMessage(h) }
