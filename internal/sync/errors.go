package sync

import "errors"

var (
	// ErrBind means the host could not listen on the sync port (port in
	// use or no usable interface). The session stays Standalone.
	ErrBind = errors.New("failed to bind sync port")

	// ErrConnect covers dial timeouts and refused connections. The
	// session stays Standalone; the caller may retry.
	ErrConnect = errors.New("failed to connect to host")

	// ErrNotConnected is returned by SubmitScan while the client link is
	// down. Scans fail fast; there is no offline queue.
	ErrNotConnected = errors.New("not connected to a host")

	// ErrRoleBusy rejects a direct Host↔Client transition. The session
	// must pass through Standalone first.
	ErrRoleBusy = errors.New("session already holds a role")

	// ErrInvalidAddress flags a malformed host address before dialing.
	ErrInvalidAddress = errors.New("invalid host address")
)
