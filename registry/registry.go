// Package registry indexes the message catalog by protocol version,
// direction and action name. It is populated once at startup and read-only
// afterwards, so lookups need no locking.
package registry

import (
	"fmt"

	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/ocpp"
)

// NotFoundError reports a lookup miss. For inbound calls this is not a local
// failure: the engine answers the peer with a NotImplemented CallError.
type NotFoundError struct {
	Version   ocpp.ProtocolVersion
	Direction Direction
	Action    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("registry: no %s definition for action %q (ocpp %s)", e.Direction, e.Action, e.Version)
}

type key struct {
	version ocpp.ProtocolVersion
	action  string
}

// Registry holds the static message catalog for every supported protocol
// version.
type Registry struct {
	outgoing map[key]*OutgoingMessage
	incoming map[key]*IncomingMessage
}

func New() *Registry {
	return &Registry{
		outgoing: make(map[key]*OutgoingMessage),
		incoming: make(map[key]*IncomingMessage),
	}
}

// RegisterOutgoing adds an outgoing definition. Duplicate registration for
// the same (version, action) is a programming error.
func (r *Registry) RegisterOutgoing(def *OutgoingMessage) {
	k := key{def.Version, def.Action}
	if _, exists := r.outgoing[k]; exists {
		panic(fmt.Sprintf("registry: duplicate outgoing definition %q (ocpp %s)", def.Action, def.Version))
	}
	r.outgoing[k] = def
}

// RegisterIncoming adds an incoming definition.
func (r *Registry) RegisterIncoming(def *IncomingMessage) {
	k := key{def.Version, def.Action}
	if _, exists := r.incoming[k]; exists {
		panic(fmt.Sprintf("registry: duplicate incoming definition %q (ocpp %s)", def.Action, def.Version))
	}
	r.incoming[k] = def
}

// OutgoingFor resolves the outgoing definition for an action.
func (r *Registry) OutgoingFor(version ocpp.ProtocolVersion, action string) (*OutgoingMessage, error) {
	def, ok := r.outgoing[key{version, action}]
	if !ok {
		return nil, &NotFoundError{Version: version, Direction: Outgoing, Action: action}
	}
	return def, nil
}

// IncomingFor resolves the incoming definition for an action.
func (r *Registry) IncomingFor(version ocpp.ProtocolVersion, action string) (*IncomingMessage, error) {
	def, ok := r.incoming[key{version, action}]
	if !ok {
		return nil, &NotFoundError{Version: version, Direction: Incoming, Action: action}
	}
	return def, nil
}
