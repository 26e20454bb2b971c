package models

import (
	"encoding/json"
	"strings"
)

// Legacy sentinel strings stored in the uri column for non-URI actions.
const (
	ActionTogglePlayString = "TOGGLE_PLAY"
	ActionStopString       = "STOP"
)

// ActionKind discriminates the Action variants.
type ActionKind int

const (
	ActionPlayURI ActionKind = iota
	ActionTogglePlay
	ActionStop
)

func (k ActionKind) String() string {
	switch k {
	case ActionTogglePlay:
		return "toggle_play"
	case ActionStop:
		return "stop"
	default:
		return "play_uri"
	}
}

// Action is what scanning a tag does. URI is only set for ActionPlayURI.
type Action struct {
	Kind ActionKind
	URI  string
}

// PlayURI returns an action that replaces the queue with uri and plays it.
func PlayURI(uri string) Action { return Action{Kind: ActionPlayURI, URI: uri} }

// TogglePlay returns an action that pauses when playing and plays otherwise.
func TogglePlay() Action { return Action{Kind: ActionTogglePlay} }

// Stop returns an action that stops playback.
func Stop() Action { return Action{Kind: ActionStop} }

// String encodes the action the way it is persisted.
func (a Action) String() string {
	switch a.Kind {
	case ActionTogglePlay:
		return ActionTogglePlayString
	case ActionStop:
		return ActionStopString
	default:
		return a.URI
	}
}

// ParseAction decodes a persisted action string. Empty strings are rejected.
func ParseAction(s string) (Action, bool) {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return Action{}, false
	case ActionTogglePlayString:
		return TogglePlay(), true
	case ActionStopString:
		return Stop(), true
	default:
		return PlayURI(s), true
	}
}

// MappingSource records where a mapping came from.
type MappingSource string

const (
	SourceStore  MappingSource = "store"
	SourceConfig MappingSource = "config"
)

// Mapping associates a tag with an action.
type Mapping struct {
	Tag         string        `json:"tag"`
	Action      Action        `json:"-"`
	Description string        `json:"description"`
	Source      MappingSource `json:"source"`
}

// MarshalJSON encodes the action in its persisted string form under "uri".
func (m Mapping) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Tag         string        `json:"tag"`
		URI         string        `json:"uri"`
		Description string        `json:"description"`
		Source      MappingSource `json:"source,omitempty"`
	}{m.Tag, m.Action.String(), m.Description, m.Source})
}
