package pipeline

import "errors"

var (
	// ErrSourceOpen means the source could not be opened or has no frames.
	// No session is created.
	ErrSourceOpen = errors.New("failed to open source")

	// ErrSourceRead means decoding failed mid-stream. The run is aborted and
	// its frames are discarded.
	ErrSourceRead = errors.New("failed to read source")

	// ErrExport means encoding or writing the output failed. The session is
	// kept so the export can be retried.
	ErrExport = errors.New("failed to export video")

	// ErrNoSession means there is no completed run to export
	ErrNoSession = errors.New("no processed video to export")

	// ErrBufferLimit means the run would hold more frame data than allowed
	ErrBufferLimit = errors.New("output would exceed buffer limit")

	// ErrInvalidRatio means the aspect ratio gives an empty output frame
	ErrInvalidRatio = errors.New("invalid aspect ratio")
)
