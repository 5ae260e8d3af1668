package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnknownChannel indicates an event arrived on an unrecognised channel.
	ErrUnknownChannel = errors.New("unknown event channel")
	// ErrInvalidPayload indicates an event payload could not be decoded.
	ErrInvalidPayload = errors.New("invalid event payload")
	// ErrUnknownSkill indicates a skill id is not registered.
	ErrUnknownSkill = errors.New("unknown skill")
	// ErrDuplicateSkill indicates a skill id was registered twice.
	ErrDuplicateSkill = errors.New("duplicate skill")
	// ErrEngineUnavailable indicates no engine link is established.
	ErrEngineUnavailable = errors.New("engine not connected")
	// ErrSidecarUnavailable indicates the search sidecar is not reachable.
	ErrSidecarUnavailable = errors.New("sidecar not connected")
	// ErrUnsupportedOperation indicates the backend does not implement an op.
	ErrUnsupportedOperation = errors.New("unsupported operation")
	// ErrInvalidEngineKind indicates an unknown engine backend name.
	ErrInvalidEngineKind = errors.New("invalid engine kind")
)
