package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"
	ErrProtoNoHello    = "E_PROTO_NO_HELLO"

	// Command layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrUnknownCmd    = "E_UNKNOWN_COMMAND"
	ErrNoPermission  = "E_NO_PERMISSION"
	ErrNotPlayer     = "E_NOT_PLAYER"
	ErrNotFound      = "E_NOT_FOUND"
	ErrRateLimit     = "E_RATE_LIMIT"
	ErrUnknownMarker = "E_UNKNOWN_MARKER"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrProtoNoHello:    {},
	ErrBadRequest:      {},
	ErrUnknownCmd:      {},
	ErrNoPermission:    {},
	ErrNotPlayer:       {},
	ErrNotFound:        {},
	ErrRateLimit:       {},
	ErrUnknownMarker:   {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
