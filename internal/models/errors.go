package models

import "errors"

// Sentinel errors. Callers match them with errors.Is; producers wrap them
// with context via fmt.Errorf("...: %w", ErrX).
var (
	// ErrStore reports a failed mapping store operation.
	ErrStore = errors.New("mapping store failure")
	// ErrNoReader reports that no reader handle could be acquired.
	ErrNoReader = errors.New("rfid reader unavailable")
	// ErrUnknownTag reports a tag with no mapping in either table.
	ErrUnknownTag = errors.New("no mapping for tag")
	// ErrPlayer reports a failed playback engine call.
	ErrPlayer = errors.New("player call failed")
)
