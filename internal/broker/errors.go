package broker

import "errors"

var (
	ErrBrokerClosed  = errors.New("broker is closed")
	ErrBridgeClosed  = errors.New("broker bridge is closed")
	ErrNilConnection = errors.New("connection cannot be nil")
)
