package store

import "time"

// CandidateEvent is one event offered to Append, before it has been
// sequenced or timestamped.
type CandidateEvent struct {
	Data       []byte
	Identifier string
	Tags       []string
	Version    uint64
}

// Event is a persisted event returned by Query: a CandidateEvent plus the
// position and timestamp assigned at append.
type Event struct {
	Data       []byte
	Identifier string
	Tags       []string
	Version    uint64
	Position   uint64
	Timestamp  time.Time
}
