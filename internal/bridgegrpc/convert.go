package bridgegrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/noamisr/maestro/internal/remote"
	"github.com/noamisr/maestro/schema"
	"pkt.systems/pslog"
)

const (
	fieldOp       = "op"
	fieldArgs     = "args"
	fieldChannels = "channels"
	fieldChannel  = "channel"
	fieldSeq      = "seq"
	fieldPayload  = "payload"
)

// toStruct converts a JSON-encodable map to a Struct. Values pass through
// JSON first so typed slices and structs become plain JSON shapes.
func toStruct(v map[string]any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var plain map[string]any
	if err := json.Unmarshal(data, &plain); err != nil {
		return nil, err
	}
	return structpb.NewStruct(plain)
}

func toValue(raw json.RawMessage) (*structpb.Value, error) {
	if len(raw) == 0 {
		return structpb.NewNullValue(), nil
	}
	var plain any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, err
	}
	return structpb.NewValue(plain)
}

func fromValue(v *structpb.Value) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if _, ok := v.GetKind().(*structpb.Value_NullValue); ok {
		return nil, nil
	}
	return json.Marshal(v.AsInterface())
}

func invokeRequest(op string, args map[string]any) (*structpb.Struct, error) {
	if args == nil {
		args = map[string]any{}
	}
	return toStruct(map[string]any{fieldOp: op, fieldArgs: args})
}

func parseInvoke(in *structpb.Struct) (string, map[string]any) {
	fields := in.GetFields()
	op := fields[fieldOp].GetStringValue()
	args := fields[fieldArgs].GetStructValue().AsMap()
	return op, args
}

func subscribeRequest(channels []schema.Channel) (*structpb.Struct, error) {
	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		names = append(names, string(ch))
	}
	return toStruct(map[string]any{fieldChannels: names})
}

func parseSubscribe(in *structpb.Struct) ([]schema.Channel, error) {
	list := in.GetFields()[fieldChannels].GetListValue().GetValues()
	channels := make([]schema.Channel, 0, len(list))
	for _, v := range list {
		ch, err := schema.ParseChannel(v.GetStringValue())
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

func eventStruct(msg schema.EventMessage) (*structpb.Struct, error) {
	payload, err := toValue(msg.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msg.Channel, err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldChannel: structpb.NewStringValue(string(msg.Channel)),
		fieldSeq:     structpb.NewNumberValue(float64(msg.Seq)),
		fieldPayload: payload,
	}}, nil
}

func parseEvent(in *structpb.Struct) (schema.EventMessage, error) {
	fields := in.GetFields()
	channel, err := schema.ParseChannel(fields[fieldChannel].GetStringValue())
	if err != nil {
		return schema.EventMessage{}, err
	}
	payload, err := json.Marshal(fields[fieldPayload].AsInterface())
	if err != nil {
		return schema.EventMessage{}, fmt.Errorf("decode %s payload: %w", channel, err)
	}
	return schema.EventMessage{
		Channel: channel,
		Seq:     uint64(fields[fieldSeq].GetNumberValue()),
		Payload: payload,
	}, nil
}

// statusFromError maps a remote error onto a gRPC status for the wire.
func statusFromError(err error) error {
	if err == nil {
		return nil
	}
	remoteErr, ok := remote.AsError(err)
	if !ok {
		switch {
		case errors.Is(err, context.Canceled):
			return status.Error(codes.Canceled, err.Error())
		case errors.Is(err, context.DeadlineExceeded):
			return status.Error(codes.DeadlineExceeded, err.Error())
		}
		return status.Error(codes.Unknown, err.Error())
	}
	message := remoteErr.Message
	if message == "" && remoteErr.Err != nil {
		message = remoteErr.Err.Error()
	}
	switch remoteErr.Kind {
	case remote.ErrorRejected:
		return status.Error(codes.FailedPrecondition, message)
	case remote.ErrorUnavailable:
		return status.Error(codes.Unavailable, message)
	case remote.ErrorTimeout:
		return status.Error(codes.DeadlineExceeded, message)
	case remote.ErrorCanceled:
		return status.Error(codes.Canceled, message)
	default:
		return status.Error(codes.Unknown, message)
	}
}

// wrapBridgeError maps a gRPC failure onto the remote error taxonomy. The
// status message is the engine's text and is kept verbatim.
func wrapBridgeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := remote.AsError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return &remote.Error{Kind: remote.ErrorCanceled, Op: op, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &remote.Error{Kind: remote.ErrorTimeout, Op: op, Err: err}
	}
	st, ok := status.FromError(err)
	if !ok {
		return &remote.Error{Kind: remote.ErrorUnknown, Op: op, Err: err}
	}
	kind := remote.ErrorUnknown
	switch st.Code() {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.NotFound, codes.OutOfRange, codes.Unimplemented:
		kind = remote.ErrorRejected
	case codes.Unavailable:
		kind = remote.ErrorUnavailable
	case codes.DeadlineExceeded:
		kind = remote.ErrorTimeout
	case codes.Canceled:
		kind = remote.ErrorCanceled
	}
	return &remote.Error{Kind: kind, Op: op, Message: st.Message(), Err: err}
}

func logGRPCError(log pslog.Logger, msg string, err error) {
	if log == nil || err == nil {
		return
	}
	if st, ok := status.FromError(err); ok {
		log.Warn(msg, "err", err, "code", st.Code().String(), "message", st.Message())
		return
	}
	log.Warn(msg, "err", err)
}
