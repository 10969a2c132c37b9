package data

import "errors"

// ErrUnknownFormat is returned when a message is neither an ingest nor a
// control message
var ErrUnknownFormat = errors.New("unknown message format")

// ErrUnknownSensorType is returned for ingest messages with an unrecognized type
var ErrUnknownSensorType = errors.New("unknown sensor type")

// ErrUnknownAction is returned for control messages with an unrecognized action
var ErrUnknownAction = errors.New("unknown action")

// ErrNotReady is returned when a data operation is requested while the
// store is not open
var ErrNotReady = errors.New("database is not initialized")

// ErrStopped is returned when an operation is requested after the store
// has been stopped
var ErrStopped = errors.New("store stopped")
