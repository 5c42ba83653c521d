package hub

import "errors"

var (
	ErrHubAlreadyRunning     = errors.New("hub is already running")
	ErrHubNotRunning         = errors.New("hub is not running")
	ErrMessageChannelFull    = errors.New("message channel is full")
	ErrConnectChannelFull    = errors.New("connect channel is full")
	ErrDisconnectChannelFull = errors.New("disconnect channel is full")
)
