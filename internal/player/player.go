// Package player talks to the playback engine. The bridge only needs a
// handful of calls, so every backend implements the same small interface.
package player

import (
	"context"
	"time"

	"github.com/micro-nova/amplipi-rfid/internal/models"
)

// Player is the playback engine as seen by the bridge. Calls may be slow or
// fail; callers pass a context with a deadline.
type Player interface {
	State(ctx context.Context) (models.PlaybackState, error)
	Position(ctx context.Context) (time.Duration, error)
	CurrentTrack(ctx context.Context) (models.Track, error)

	Clear(ctx context.Context) error
	Add(ctx context.Context, uri string) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Backend names accepted by the config.
const (
	BackendMopidy = "mopidy"
	BackendMPRIS  = "mpris"
)
