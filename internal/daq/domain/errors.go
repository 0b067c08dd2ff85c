package daq

import "errors"

var (
	// ErrUnknownDriver reports a device type with no registered driver.
	ErrUnknownDriver = errors.New("unknown device driver")
	// ErrBadFrame reports a device response that does not match the
	// expected channel count or framing.
	ErrBadFrame = errors.New("malformed device frame")
	// ErrDeviceClosed reports a poll on a closed device handle.
	ErrDeviceClosed = errors.New("device closed")
	// ErrShutdownTimeout reports loops still running after the grace period.
	ErrShutdownTimeout = errors.New("shutdown grace period exceeded")
)
