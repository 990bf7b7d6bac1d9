// Package chat holds the direct messaging entities: participants, the
// canonical conversation pair, messages and the commands a client can issue.
package chat

import (
	"unicode"

	"chat-relay/errors"
)

// ParticipantID is the opaque identity a verified credential resolves to.
type ParticipantID string

func (p ParticipantID) String() string { return string(p) }

func (p ParticipantID) Validate() error {
	if p == "" {
		return errors.ErrInvalidParticipant
	}
	for _, r := range p {
		if unicode.IsControl(r) {
			return errors.ErrInvalidParticipant
		}
	}
	return nil
}

// Pair identifies the conversation between two distinct participants.
// It is stored sorted so NewPair(a, b) == NewPair(b, a).
type Pair struct {
	first  ParticipantID
	second ParticipantID
}

func NewPair(a, b ParticipantID) (Pair, error) {
	if err := a.Validate(); err != nil {
		return Pair{}, err
	}
	if err := b.Validate(); err != nil {
		return Pair{}, err
	}
	if a == b {
		return Pair{}, errors.ErrSelfMessage
	}
	if b < a {
		a, b = b, a
	}
	return Pair{first: a, second: b}, nil
}

func (p Pair) First() ParticipantID  { return p.first }
func (p Pair) Second() ParticipantID { return p.second }

func (p Pair) Participants() [2]ParticipantID {
	return [2]ParticipantID{p.first, p.second}
}

func (p Pair) IsZero() bool { return p.first == "" && p.second == "" }

func (p Pair) Contains(id ParticipantID) bool {
	return id == p.first || id == p.second
}

// Other returns the participant that is not id, or "" when id is not a member.
func (p Pair) Other(id ParticipantID) ParticipantID {
	switch id {
	case p.first:
		return p.second
	case p.second:
		return p.first
	default:
		return ""
	}
}

func (p Pair) String() string {
	return string(p.first) + " <-> " + string(p.second)
}
