package router

import "errors"

var (
	ErrPersistence       = errors.New("failed to persist message")
	ErrBroker            = errors.New("failed to publish message")
	ErrDelivery          = errors.New("failed to deliver message")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrReplay            = errors.New("failed to replay message")
)
