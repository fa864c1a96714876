package database

import "errors"

// ErrInvalidDatabaseURL indicates the provided database URL could not be parsed.
var ErrInvalidDatabaseURL = errors.New("invalid database URL")

// ErrConnectionFailed indicates a connection to the database could not be established.
var ErrConnectionFailed = errors.New("database connection failed")

// ErrConnectionClosed indicates a statement was sent on a connection that is not open.
var ErrConnectionClosed = errors.New("connection is not open")

// ErrUnsupported indicates the dialect cannot perform the requested operation.
var ErrUnsupported = errors.New("operation not supported by this database type")
