//go:build !linux

package gpio

import "errors"

// Line is not available on non-Linux platforms.
type Line struct{}

// OpenLine returns an error on non-Linux platforms.
func OpenLine(chipName string, offset int) (*Line, Output, error) {
	return nil, nil, errors.New("gpio: character device not supported on this platform (requires Linux)")
}

// Mode always reports output on non-Linux platforms.
func (l *Line) Mode() Mode {
	return ModeOutput
}

// Close is a no-op on non-Linux platforms.
func (l *Line) Close() error {
	return nil
}
