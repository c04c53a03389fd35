package types

import "time"

// Transition records a change of the classified driver state
type Transition struct {
	At       time.Time   `json:"at"`
	FrameNum uint64      `json:"frame_number"`
	From     DriverState `json:"from"`
	To       DriverState `json:"to"`
	Initial  bool        `json:"initial"` // First reading of the session; From is meaningless
	Run      uint64      `json:"run"`     // Consecutive readings spent in From
	EAR      float64     `json:"ear"`
}

// Session describes one run of the monitor
type Session struct {
	ID        string     `json:"session_id"`
	Source    string     `json:"source"`
	Scheme    string     `json:"scheme"`
	Threshold float64    `json:"threshold"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"` // Nil while running
}
