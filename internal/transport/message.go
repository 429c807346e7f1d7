package transport

import "flyknight/netplay/internal/protocol"

// Send encodes the message and writes it as one frame.
func (c *Conn) Send(msg protocol.Message) error {
	encoded, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return c.SendBytes(encoded)
}

// Receive blocks for the next frame and decodes it. A *protocol.CodecError
// return means the frame itself was consumed cleanly and the stream is still
// usable; callers drop the message and keep reading.
func (c *Conn) Receive() (protocol.Message, error) {
	payload, err := c.ReceiveBytes()
	if err != nil {
		return protocol.Message{}, err
	}
	return protocol.Decode(payload)
}
