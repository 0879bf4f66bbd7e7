package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/leadforge-service/internal/model"
	"github.com/teresa-solution/leadforge-service/internal/monitoring"
	"github.com/teresa-solution/leadforge-service/internal/store"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// LeadUpdate is a status and/or ownership change. OwnerSet distinguishes an
// explicit unassign (OwnerSet with a nil OwnerID) from leaving the owner alone.
type LeadUpdate struct {
	Status   *model.LeadStatus
	OwnerSet bool
	OwnerID  *uuid.UUID
	Version  *int
}

// UpdateLead applies a status change, an ownership change, or both. Every
// write of one call commits together or not at all.
func (s *LeadService) UpdateLead(ctx context.Context, actor *model.Actor, leadID uuid.UUID, req LeadUpdate) (*model.Lead, error) {
	if actor == nil {
		return nil, errUnauthenticated
	}
	if req.Status != nil && !req.Status.Valid() {
		return nil, status.Errorf(codes.InvalidArgument, "invalid status %q", *req.Status)
	}

	current, err := s.loadLead(ctx, actor, leadID)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(current, req.Version); err != nil {
		return nil, err
	}
	if req.OwnerSet && req.OwnerID != nil {
		if _, err := s.resolveOwner(ctx, current.CompanyID, *req.OwnerID); err != nil {
			return nil, err
		}
	}

	// Assigning an unassigned lead moves it to CONNECTED, so any other
	// explicit target status in the same request is contradictory.
	promote := req.OwnerSet && req.OwnerID != nil && current.Status == model.StatusUnassigned &&
		!model.SameOwner(req.OwnerID, current.CurrentOwnerID)
	if promote && req.Status != nil && *req.Status != current.Status && *req.Status != model.StatusConnected {
		return nil, status.Errorf(codes.InvalidArgument,
			"status %s conflicts with assigning an unassigned lead, which moves it to %s", *req.Status, model.StatusConnected)
	}

	lead := current.Clone()
	author := actorID(actor)
	var notes []*model.Note
	var history *model.OwnershipHistory
	var kinds []string

	if req.Status != nil && *req.Status != lead.Status {
		notes = append(notes, statusNote(lead.ID, author, lead.Status, *req.Status))
		lead.Status = *req.Status
		kinds = append(kinds, "status")
	}

	if req.OwnerSet && !model.SameOwner(req.OwnerID, lead.CurrentOwnerID) {
		history = &model.OwnershipHistory{
			LeadID:      lead.ID,
			FromUserID:  lead.CurrentOwnerID,
			ToUserID:    req.OwnerID,
			PerformedBy: author,
			ActionType:  model.OwnershipAssigned,
		}
		if req.OwnerID == nil {
			history.ActionType = model.OwnershipReleased
		}
		notes = append(notes, &model.Note{
			LeadID:   lead.ID,
			AuthorID: author,
			Type:     model.NoteOwnershipChange,
			Content:  ownershipContent(lead.CurrentOwnerID, req.OwnerID),
		})
		lead.CurrentOwnerID = req.OwnerID
		kinds = append(kinds, "owner")

		// Picking up an unworked lead means contact has been made.
		if promote && lead.Status == model.StatusUnassigned {
			notes = append(notes, statusNote(lead.ID, author, lead.Status, model.StatusConnected))
			lead.Status = model.StatusConnected
			kinds = append(kinds, "auto_connect")
		}
	}

	if len(kinds) == 0 {
		return current, nil
	}

	err = s.repo.InTx(ctx, func(tx store.Tx) error {
		if err := tx.UpdateLead(ctx, lead); err != nil {
			return err
		}
		if history != nil {
			if err := tx.AddOwnershipHistory(ctx, history); err != nil {
				return err
			}
		}
		for _, note := range notes {
			if err := tx.AddNote(ctx, note); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, persistError(err, "Failed to update lead")
	}

	for _, kind := range kinds {
		monitoring.LeadTransitions.WithLabelValues(kind).Inc()
	}
	log.Info().
		Str("lead_id", lead.ID.String()).
		Str("status", string(lead.Status)).
		Strs("changes", kinds).
		Msg("Lead updated")
	return lead, nil
}

func statusNote(leadID uuid.UUID, author *uuid.UUID, from, to model.LeadStatus) *model.Note {
	return &model.Note{
		LeadID:   leadID,
		AuthorID: author,
		Type:     model.NoteStatusChange,
		Content:  fmt.Sprintf("Status changed from %s to %s", from, to),
	}
}

func ownershipContent(from, to *uuid.UUID) string {
	switch {
	case to == nil:
		return fmt.Sprintf("Lead released by %s", from)
	case from == nil:
		return fmt.Sprintf("Lead assigned to %s", to)
	default:
		return fmt.Sprintf("Lead reassigned from %s to %s", from, to)
	}
}
