package database

import "errors"

var (
	ErrManagerClosed   = errors.New("database manager is closed")
	ErrWriteTimeout    = errors.New("database write operation timeout")
	ErrMessageNotFound = errors.New("message not found")
)
