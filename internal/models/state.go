// Package models defines the data structures shared by the RFID bridge.
// JSON field names follow the led.json and sounds.json files written by
// earlier releases, so existing settings keep loading.
package models

import (
	"strconv"
	"time"
)

// Tag is the numeric identifier of a physical RFID token.
type Tag uint64

// Key returns the tag in the base-10 form used as a mapping key.
func (t Tag) Key() string { return strconv.FormatUint(uint64(t), 10) }

func (t Tag) String() string { return t.Key() }

// ParseTagKey parses a base-10 mapping key back into a Tag.
func ParseTagKey(key string) (Tag, error) {
	v, err := strconv.ParseUint(key, 10, 64)
	if err != nil {
		return 0, err
	}
	return Tag(v), nil
}

// PlaybackState is the coarse state reported by the playback engine.
type PlaybackState int

const (
	StateStopped PlaybackState = iota
	StatePlaying
	StatePaused
)

func (s PlaybackState) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "stopped"
	}
}

// ParsePlaybackState maps an engine state string ("playing", "Paused", ...)
// onto a PlaybackState. Unknown strings are treated as stopped.
func ParsePlaybackState(s string) PlaybackState {
	switch s {
	case "playing", "Playing":
		return StatePlaying
	case "paused", "Paused":
		return StatePaused
	default:
		return StateStopped
	}
}

// Track is the subset of track metadata the bridge needs.
type Track struct {
	URI    string
	Length time.Duration // 0 when unknown
}

// PlaybackSnapshot is one poll of the playback engine. It is never stored.
type PlaybackSnapshot struct {
	State    PlaybackState
	Position time.Duration
	Length   time.Duration
}

// RemainRatio returns 1 - position/length clamped to [0, 1].
// ok is false when the length is unknown.
func (s PlaybackSnapshot) RemainRatio() (ratio float64, ok bool) {
	if s.Length <= 0 {
		return 0, false
	}
	r := 1 - float64(s.Position)/float64(s.Length)
	if r < 0 {
		r = 0
	}
	if r > 1 {
		r = 1
	}
	return r, true
}

// TagEvent is emitted once per detected tag.
type TagEvent struct {
	ID      string    `json:"id"`
	Tag     Tag       `json:"tag_id"`
	Mapping *Mapping  `json:"mapping,omitempty"`
	At      time.Time `json:"at"`
}

// URI returns the mapped action string, or "" for an unmapped tag.
func (e TagEvent) URI() string {
	if e.Mapping == nil {
		return ""
	}
	return e.Mapping.Action.String()
}
