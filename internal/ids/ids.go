// Package ids provides the UUID-backed identifier types shared across the
// workflow execution core. Every entity in §3.1 of the spec carries one of
// these: a string-based type that prints as a plain UUID but cannot be
// confused with an identifier of a different entity at compile time.
package ids

import "github.com/google/uuid"

// SessionID uniquely identifies a WorkflowSession.
type SessionID string

// NewSessionID generates a new unique SessionID.
func NewSessionID() SessionID { return SessionID(uuid.New().String()) }

// String returns the string representation of the SessionID.
func (id SessionID) String() string { return string(id) }

// IsValid reports whether id is a non-empty, well-formed UUID.
func (id SessionID) IsValid() bool { return isValidUUID(string(id)) }

// TransitionID uniquely identifies a Transition row.
type TransitionID string

// NewTransitionID generates a new unique TransitionID.
func NewTransitionID() TransitionID { return TransitionID(uuid.New().String()) }

func (id TransitionID) String() string { return string(id) }
func (id TransitionID) IsValid() bool  { return isValidUUID(string(id)) }

// EventID uniquely identifies a WorkflowEvent row.
type EventID string

// NewEventID generates a new unique EventID.
func NewEventID() EventID { return EventID(uuid.New().String()) }

func (id EventID) String() string { return string(id) }
func (id EventID) IsValid() bool  { return isValidUUID(string(id)) }

// EffectID uniquely identifies an ExecutionEffect row.
type EffectID string

// NewEffectID generates a new unique EffectID.
func NewEffectID() EffectID { return EffectID(uuid.New().String()) }

func (id EffectID) String() string { return string(id) }
func (id EffectID) IsValid() bool  { return isValidUUID(string(id)) }

// CompensationID uniquely identifies a CompensationRecord row.
type CompensationID string

// NewCompensationID generates a new unique CompensationID.
func NewCompensationID() CompensationID { return CompensationID(uuid.New().String()) }

func (id CompensationID) String() string { return string(id) }
func (id CompensationID) IsValid() bool  { return isValidUUID(string(id)) }

// AgentID uniquely identifies an in-session Agent worker.
type AgentID string

// NewAgentID generates a new unique AgentID.
func NewAgentID() AgentID { return AgentID(uuid.New().String()) }

func (id AgentID) String() string { return string(id) }
func (id AgentID) IsValid() bool  { return isValidUUID(string(id)) }

func isValidUUID(s string) bool {
	if s == "" {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
