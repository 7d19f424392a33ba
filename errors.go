package kbot

import "errors"

// Error kinds returned by the core. Callers can match with errors.Is.
var (
	// ErrParse is returned when a wire line fails to parse. Policy: log, skip, continue.
	ErrParse = errors.New("kbot: malformed IRC line")

	// ErrTransport wraps a send/recv failure on the underlying socket.
	ErrTransport = errors.New("kbot: transport error")

	// ErrResourceExhaustion is returned when no realtime-signal slot or epoll
	// instance could be allocated. Fatal for the worker.
	ErrResourceExhaustion = errors.New("kbot: resource exhausted")

	// ErrNoSuchChannel / ErrNoSuchPlugin / ErrNoSuchCommand are StateViolation
	// conditions: operation on an absent channel/plugin/command.
	ErrNoSuchChannel = errors.New("kbot: no such channel")
	ErrNoSuchPlugin  = errors.New("kbot: no such plugin")
	ErrNoSuchCommand = errors.New("kbot: no such command")

	// ErrPermissionDenied names the case where the identity lacks the
	// required capability mask. Dispatch reports that case to the invoker
	// as a chat reply and does not return this value.
	ErrPermissionDenied = errors.New("kbot: permission denied")

	// ErrPluginLoad covers module-not-found, symbol-missing, and aborted
	// register calls.
	ErrPluginLoad = errors.New("kbot: failed to load plugin")

	// ErrArgumentCount names the case where a user command is invoked with
	// too few or too many arguments. Dispatch reports that case to the
	// invoker as a chat reply and does not return this value.
	ErrArgumentCount = errors.New("kbot: incorrect number of arguments")
)
