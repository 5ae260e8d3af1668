package schema

import "strings"

// EngineKind selects the engine backend.
type EngineKind string

const (
	// EngineMock runs the in-process simulated engine.
	EngineMock EngineKind = "mock"
	// EngineAbletonOSC talks to Ableton Live through AbletonOSC.
	EngineAbletonOSC EngineKind = "abletonosc"
	// EngineBridge connects to an external bridge process.
	EngineBridge EngineKind = "bridge"
)

// NormalizeEngineKind validates and normalizes an engine backend name.
// An empty value selects the mock engine.
func NormalizeEngineKind(value string) (EngineKind, error) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	switch trimmed {
	case "", "mock":
		return EngineMock, nil
	case "abletonosc", "ableton":
		return EngineAbletonOSC, nil
	case "bridge":
		return EngineBridge, nil
	default:
		return "", ErrInvalidEngineKind
	}
}

// ParseChannel validates a channel name against the known set.
func ParseChannel(name string) (Channel, error) {
	for _, ch := range Channels() {
		if string(ch) == name {
			return ch, nil
		}
	}
	return "", ErrUnknownChannel
}
