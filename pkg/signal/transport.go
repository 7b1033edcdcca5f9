package signal

import "encoding/json"

// Transport abstracts the relay channel for the protocol engines.
// WSTransport implements it over a live websocket (push binding),
// PollTransport over the HTTP mailbox (poll binding), and Loopback
// in-process for same-process peers and tests.
//
// Delivery is best-effort and unordered-safe: the engines layered on
// top tolerate loss and reordering. A message sent through the relay is
// never delivered back to the sending connection, but Loopback echoes
// to every subscriber, so engines must still filter their own sender
// token.
type Transport interface {
	// Send enqueues payload for delivery to the other room member.
	// Failures are reported so callers can log them; they are never
	// retried.
	Send(roomID string, payload any) error

	// Subscribe registers fn to be invoked once per distinct inbound
	// message body for the room. The returned cancel detaches fn; the
	// last cancel for a room releases the underlying connection or
	// poller.
	Subscribe(roomID string, fn func(json.RawMessage)) (cancel func(), err error)
}
