package ocpp

// ProtocolVersion selects which action-registry partition and error-code
// vocabulary apply for the lifetime of a connection. Fixed at construction.
type ProtocolVersion string

const (
	V16 ProtocolVersion = "1.6"
	V21 ProtocolVersion = "2.1"
)

// Subprotocol returns the WebSocket subprotocol name negotiated with the CSMS.
func (v ProtocolVersion) Subprotocol() string {
	switch v {
	case V16:
		return "ocpp1.6"
	case V21:
		return "ocpp2.1"
	default:
		return ""
	}
}

func (v ProtocolVersion) Valid() bool {
	return v == V16 || v == V21
}
