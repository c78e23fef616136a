package tracking

import (
	"encoding/json"
	"errors"
	"fmt"
)

const snapshotVersion = 1

// ErrSnapshotVersion is returned for snapshots written by an unknown format.
var ErrSnapshotVersion = errors.New("unsupported snapshot version")

type snapshotEnvelope struct {
	Version int      `json:"version"`
	Session *Session `json:"session"`
}

// MarshalSnapshot serialises the full session for a persistence store.
func MarshalSnapshot(s *Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}
	data, err := json.Marshal(snapshotEnvelope{Version: snapshotVersion, Session: s})
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// UnmarshalSnapshot is the inverse of MarshalSnapshot.
func UnmarshalSnapshot(data []byte) (*Session, error) {
	var env snapshotEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if env.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: %d", ErrSnapshotVersion, env.Version)
	}
	if env.Session == nil {
		return nil, errors.New("snapshot has no session")
	}
	if env.Session.History == nil {
		env.Session.History = []HistoryEntry{}
	}
	return env.Session, nil
}
