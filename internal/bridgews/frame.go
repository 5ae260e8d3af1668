// Package bridgews carries engine calls and events over a WebSocket link.
// A Client dials a bridge and acts as the engine invoker; a Handler serves
// any invoker and event source to remote clients.
package bridgews

import (
	"encoding/json"

	"github.com/noamisr/maestro/internal/remote"
	"github.com/noamisr/maestro/schema"
)

// FrameType discriminates wire frames.
type FrameType string

const (
	// FrameInvoke asks the bridge to run an operation.
	FrameInvoke FrameType = "invoke"
	// FrameResult answers an invoke frame with the same id.
	FrameResult FrameType = "result"
	// FrameSubscribe asks the bridge to forward a channel.
	FrameSubscribe FrameType = "subscribe"
	// FrameEvent carries one channel event.
	FrameEvent FrameType = "event"
)

// Frame is the single JSON envelope exchanged in both directions.
type Frame struct {
	Type    FrameType       `json:"type"`
	ID      string          `json:"id,omitempty"`
	Op      string          `json:"op,omitempty"`
	Args    map[string]any  `json:"args,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *FrameError     `json:"error,omitempty"`
	Channel schema.Channel  `json:"channel,omitempty"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// FrameError is the failure half of a result frame.
type FrameError struct {
	Kind    remote.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

func errorFrame(id string, err error) Frame {
	kind := remote.ErrorUnknown
	message := err.Error()
	if remoteErr, ok := remote.AsError(err); ok {
		kind = remoteErr.Kind
		if remoteErr.Message != "" {
			message = remoteErr.Message
		} else if remoteErr.Err != nil {
			message = remoteErr.Err.Error()
		}
	}
	return Frame{Type: FrameResult, ID: id, Error: &FrameError{Kind: kind, Message: message}}
}

func (f *FrameError) remote(op string) error {
	kind := f.Kind
	switch kind {
	case remote.ErrorUnavailable, remote.ErrorRejected, remote.ErrorCanceled, remote.ErrorTimeout:
	default:
		kind = remote.ErrorUnknown
	}
	return remote.NewError(kind, op, f.Message)
}

func eventFrame(msg schema.EventMessage) Frame {
	return Frame{Type: FrameEvent, Channel: msg.Channel, Seq: msg.Seq, Payload: msg.Payload}
}

func (f Frame) event() schema.EventMessage {
	return schema.EventMessage{Channel: f.Channel, Seq: f.Seq, Payload: f.Payload}
}
