package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pilotwatch/pilotwatch/pkg/types"
)

// Encode serialises a mission session to its external JSON representation.
func Encode(s types.MissionSession) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("session: encode %s: %w", s.MissionID, err)
	}
	return b, nil
}

// Decode parses a mission session produced by Encode.
func Decode(b []byte) (types.MissionSession, error) {
	var s types.MissionSession
	if err := json.Unmarshal(b, &s); err != nil {
		return types.MissionSession{}, fmt.Errorf("session: decode: %w", err)
	}
	if s.MissionID == "" {
		return types.MissionSession{}, errors.New("session: decode: mission_id is required")
	}
	switch s.State {
	case types.SessionNotStarted, types.SessionInProgress, types.SessionEnded:
	default:
		return types.MissionSession{}, fmt.Errorf("session: decode: unknown state %q", s.State)
	}
	if s.ActivePilots == nil {
		s.ActivePilots = []types.PilotSession{}
	}
	return s, nil
}

// FormatDuration renders a millisecond duration as HH:MM:SS, truncating
// fractions of a second.
func FormatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	d := time.Duration(ms) * time.Millisecond
	h := int64(d / time.Hour)
	m := int64(d%time.Hour) / int64(time.Minute)
	s := int64(d%time.Minute) / int64(time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
