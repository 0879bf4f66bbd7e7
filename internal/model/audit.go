package model

import (
	"time"

	"github.com/google/uuid"
)

// NoteType classifies a lead note.
type NoteType string

const (
	NoteStatusChange    NoteType = "STATUS_CHANGE"
	NoteOwnershipChange NoteType = "OWNERSHIP_CHANGE"
	NoteResubmission    NoteType = "RESUBMISSION"
	NoteGeneral         NoteType = "NOTE"
)

// OwnershipAction is the kind of owner change recorded in ownership history.
type OwnershipAction string

const (
	OwnershipAssigned OwnershipAction = "ASSIGNED"
	OwnershipReleased OwnershipAction = "RELEASED"
)

// Note represents the lead_notes table. Rows are append-only.
type Note struct {
	ID        uuid.UUID  `json:"id"`
	LeadID    uuid.UUID  `json:"leadId"`
	AuthorID  *uuid.UUID `json:"authorId"`
	Type      NoteType   `json:"type"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
}

// OwnershipHistory represents the lead_ownership_history table. Rows are append-only.
type OwnershipHistory struct {
	ID          uuid.UUID       `json:"id"`
	LeadID      uuid.UUID       `json:"leadId"`
	FromUserID  *uuid.UUID      `json:"fromUserId"`
	ToUserID    *uuid.UUID      `json:"toUserId"`
	PerformedBy *uuid.UUID      `json:"performedBy"`
	ActionType  OwnershipAction `json:"actionType"`
	CreatedAt   time.Time       `json:"createdAt"`
}
