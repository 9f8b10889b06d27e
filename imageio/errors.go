package imageio

import "errors"

var (
	// ErrUnsupported is returned when an optional operation is not
	// implemented by a format plugin.
	ErrUnsupported = errors.New("imageio: operation not supported by this format")

	// ErrNotOpen is returned when a read or write is attempted on an
	// instance with no open image.
	ErrNotOpen = errors.New("imageio: no image is open")

	// ErrFormatNotFound is returned when no registered plugin matches the
	// requested format name or file extension.
	ErrFormatNotFound = errors.New("imageio: no plugin for format")

	// ErrVersionMismatch is returned when a plugin declares a protocol
	// version different from ProtocolVersion.
	ErrVersionMismatch = errors.New("imageio: plugin protocol version mismatch")

	// ErrNoReader is returned when a plugin registers no reader factory.
	ErrNoReader = errors.New("imageio: format has no reader")

	// ErrNoWriter is returned when a plugin registers no writer factory.
	ErrNoWriter = errors.New("imageio: format has no writer")

	// ErrOutOfRange is returned when a requested scanline, tile, or
	// rectangle lies outside the open image.
	ErrOutOfRange = errors.New("imageio: coordinates out of range")
)
