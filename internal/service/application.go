package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/leadforge-service/internal/crypto"
	"github.com/teresa-solution/leadforge-service/internal/model"
	"github.com/teresa-solution/leadforge-service/internal/monitoring"
	"github.com/teresa-solution/leadforge-service/internal/notify"
	"github.com/teresa-solution/leadforge-service/internal/store"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultCompanyName = "Default Company"

// ApplicationInput is a submitted application form.
type ApplicationInput struct {
	IsUpdate       bool
	LeadID         *uuid.UUID
	IsInternal     bool
	OwnerID        *uuid.UUID
	CompanyID      *uuid.UUID
	IdempotencyKey string
	Version        *int

	Application model.Application
	SIN         string
}

// SubmitResult describes what a submission did. Replayed is set when an
// idempotency key matched an earlier submission and nothing was written.
type SubmitResult struct {
	Lead     *model.Lead
	Created  bool
	Replayed bool
}

// ApplicantView is the pre-fill record returned to an applicant who is
// recognised by email or phone. The SIN is never included in clear.
type ApplicantView struct {
	ID               uuid.UUID `json:"id"`
	ApplicationCount int       `json:"applicationCount"`
	CreatedAt        time.Time `json:"createdAt"`
	MaskedSIN        string    `json:"sin,omitempty"`
	HasSIN           bool      `json:"hasSin"`
	model.Application
}

// ApplicantMatch is the result of CheckApplicant.
type ApplicantMatch struct {
	Exists bool           `json:"exists"`
	Lead   *ApplicantView `json:"lead,omitempty"`
}

// CheckApplicant looks up the most recent lead matching email or phone.
func (s *LeadService) CheckApplicant(ctx context.Context, email, phone string) (*ApplicantMatch, error) {
	email = model.NormalizeEmail(email)
	phone = model.NormalizePhone(phone)
	if email == "" && phone == "" {
		return nil, status.Error(codes.InvalidArgument, "email or phone is required")
	}

	lead, err := s.repo.FindLatestByContact(ctx, email, phone)
	if err != nil {
		return nil, internalError(err, "Failed to look up applicant")
	}
	if lead == nil {
		return &ApplicantMatch{Exists: false}, nil
	}

	view := &ApplicantView{
		ID:               lead.ID,
		ApplicationCount: lead.ApplicationCount,
		CreatedAt:        lead.CreatedAt,
		HasSIN:           lead.HasSIN(),
		Application:      lead.Application,
	}
	if view.HasSIN {
		sin, err := s.cipher.Decrypt(lead.EncryptedSIN, lead.SINNonce)
		if err != nil {
			return nil, internalError(err, "Failed to decrypt SIN")
		}
		view.MaskedSIN = crypto.MaskSIN(sin)
	}
	return &ApplicantMatch{Exists: true, Lead: view}, nil
}

// SubmitApplication creates a lead, records a public resubmission against an
// existing lead, or applies a staff edit, depending on the input flags.
func (s *LeadService) SubmitApplication(ctx context.Context, actor *model.Actor, in ApplicationInput) (*SubmitResult, error) {
	if in.IsInternal && actor == nil {
		return nil, errUnauthenticated
	}
	if !in.IsInternal {
		actor = nil
	}

	var existing *model.Lead
	if in.IsUpdate && in.LeadID != nil {
		lead, err := s.leadForUpdate(ctx, actor, *in.LeadID, in)
		if err != nil {
			return nil, err
		}
		existing = lead
	}

	app := normalizeApplication(in.Application)
	if err := validateApplication(&app, in.SIN); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	sin := model.NormalizePhone(in.SIN)

	var companyID uuid.UUID
	if existing == nil {
		id, err := s.resolveCompany(ctx, actor, in.CompanyID)
		if err != nil {
			return nil, err
		}
		companyID = id
		if actor != nil && in.OwnerID != nil {
			if _, err := s.resolveOwner(ctx, companyID, *in.OwnerID); err != nil {
				return nil, err
			}
		}
	}

	scope := idempotencyScope(actor, companyID, existing)
	if in.IdempotencyKey != "" && s.idempotency != nil {
		prior, claimed, err := s.idempotency.Claim(ctx, scope, in.IdempotencyKey)
		if errors.Is(err, store.ErrIdempotencyInFlight) {
			return nil, status.Error(codes.Aborted, "a request with this idempotency key is still in progress")
		}
		if err != nil {
			return nil, internalError(err, "Failed to claim idempotency key")
		}
		if !claimed {
			return s.replay(ctx, prior)
		}
	}

	var result *SubmitResult
	var err error
	switch {
	case existing == nil:
		result, err = s.createLead(ctx, actor, companyID, in.OwnerID, app, sin)
	case actor == nil:
		result, err = s.resubmit(ctx, existing, app, sin)
	default:
		result, err = s.editApplication(ctx, actor, existing, app, sin, in.Version)
	}

	if in.IdempotencyKey != "" && s.idempotency != nil {
		if err != nil {
			if rerr := s.idempotency.Release(ctx, scope, in.IdempotencyKey); rerr != nil {
				log.Warn().Err(rerr).Msg("Failed to release idempotency key")
			}
		} else if cerr := s.idempotency.Complete(ctx, scope, in.IdempotencyKey, result.Lead.ID); cerr != nil {
			log.Warn().Err(cerr).Str("lead_id", result.Lead.ID.String()).Msg("Failed to record idempotency key")
		}
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// idempotencyScope keeps keys from colliding across tenants and across the
// leads a key may target.
func idempotencyScope(actor *model.Actor, companyID uuid.UUID, existing *model.Lead) string {
	switch {
	case existing != nil:
		return "lead:" + existing.ID.String()
	case actor == nil:
		return "public:" + companyID.String()
	default:
		return "company:" + companyID.String()
	}
}

// leadForUpdate loads the lead a submission wants to update. A public
// resubmission must prove knowledge of the applicant's email or phone.
func (s *LeadService) leadForUpdate(ctx context.Context, actor *model.Actor, leadID uuid.UUID, in ApplicationInput) (*model.Lead, error) {
	if actor != nil {
		return s.loadLead(ctx, actor, leadID)
	}
	lead, err := s.loadLead(ctx, nil, leadID)
	if err != nil {
		return nil, err
	}
	if !contactMatches(lead, in.Application) {
		return nil, status.Error(codes.PermissionDenied, "email or phone does not match the existing application")
	}
	return lead, nil
}

func contactMatches(lead *model.Lead, app model.Application) bool {
	email := model.NormalizeEmail(app.Email)
	if email != "" && email == model.NormalizeEmail(lead.Email) {
		return true
	}
	phone := model.NormalizePhone(app.Phone)
	return phone != "" && phone == model.NormalizePhone(lead.Phone)
}

// resolveCompany picks the tenant for a new lead.
func (s *LeadService) resolveCompany(ctx context.Context, actor *model.Actor, requested *uuid.UUID) (uuid.UUID, error) {
	if actor != nil {
		if requested != nil && *requested != actor.CompanyID {
			return uuid.Nil, status.Error(codes.PermissionDenied, "cannot create leads for another company")
		}
		return actor.CompanyID, nil
	}

	if requested != nil {
		company, err := s.repo.GetCompany(ctx, *requested)
		if err != nil {
			return uuid.Nil, internalError(err, "Failed to get company")
		}
		if company == nil {
			return uuid.Nil, status.Error(codes.NotFound, "Company not found")
		}
		return company.ID, nil
	}

	if s.fallback != FallbackFirst {
		return uuid.Nil, status.Error(codes.InvalidArgument, "companyId is required")
	}
	company, err := s.repo.FirstCompany(ctx)
	if err != nil {
		return uuid.Nil, internalError(err, "Failed to get first company")
	}
	if company != nil {
		return company.ID, nil
	}
	company = &model.Company{Name: defaultCompanyName}
	if err := s.repo.CreateCompany(ctx, company); err != nil {
		return uuid.Nil, internalError(err, "Failed to create default company")
	}
	log.Warn().Str("company_id", company.ID.String()).Msg("No company found, created default company")
	return company.ID, nil
}

func (s *LeadService) replay(ctx context.Context, leadID uuid.UUID) (*SubmitResult, error) {
	lead, err := s.repo.GetLead(ctx, leadID)
	if err != nil {
		return nil, internalError(err, "Failed to get lead")
	}
	if lead == nil {
		return nil, status.Error(codes.NotFound, "Lead not found")
	}
	return &SubmitResult{Lead: lead, Replayed: true}, nil
}

func (s *LeadService) createLead(ctx context.Context, actor *model.Actor, companyID uuid.UUID, ownerID *uuid.UUID, app model.Application, sin string) (*SubmitResult, error) {
	lead := &model.Lead{
		ID:               uuid.New(),
		CompanyID:        companyID,
		Status:           model.StatusUnassigned,
		ApplicationCount: 1,
		Application:      app,
	}
	if sin != "" {
		if err := s.encryptSIN(lead, sin); err != nil {
			return nil, internalError(err, "Failed to encrypt SIN")
		}
	}

	var history *model.OwnershipHistory
	if actor != nil && ownerID != nil {
		owner := *ownerID
		lead.CurrentOwnerID = &owner
		lead.Status = model.StatusConnected
		history = &model.OwnershipHistory{
			LeadID:      lead.ID,
			ToUserID:    &owner,
			PerformedBy: actorID(actor),
			ActionType:  model.OwnershipAssigned,
		}
	}

	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateLead(ctx, lead); err != nil {
			return err
		}
		if history != nil {
			return tx.AddOwnershipHistory(ctx, history)
		}
		return nil
	})
	if err != nil {
		return nil, persistError(err, "Failed to create lead")
	}

	monitoring.Applications.WithLabelValues("created").Inc()
	log.Info().
		Str("lead_id", lead.ID.String()).
		Str("company_id", lead.CompanyID.String()).
		Bool("internal", actor != nil).
		Msg("Lead created")
	s.notify(notify.Event{
		Type:      notify.EventLeadCreated,
		CompanyID: lead.CompanyID,
		LeadID:    lead.ID,
		ActorID:   actorID(actor),
		Payload:   map[string]interface{}{"status": string(lead.Status)},
	})
	return &SubmitResult{Lead: lead, Created: true}, nil
}

// resubmit versions an existing lead in place so it reappears as a fresh
// unassigned application.
func (s *LeadService) resubmit(ctx context.Context, current *model.Lead, app model.Application, sin string) (*SubmitResult, error) {
	lead := current.Clone()
	previous := current.CreatedAt

	// The owner is kept so the officer who worked the lead sees it return.
	lead.Status = model.StatusUnassigned
	lead.LastApplicationDate = &previous
	lead.CreatedAt = s.now()
	lead.ApplicationCount++
	lead.IsResubmission = true
	lead.Application = app
	if sin != "" {
		if err := s.encryptSIN(lead, sin); err != nil {
			return nil, internalError(err, "Failed to encrypt SIN")
		}
	}

	note := &model.Note{
		LeadID:  lead.ID,
		Type:    model.NoteResubmission,
		Content: fmt.Sprintf("Application resubmitted (application #%d). Previous application date: %s", lead.ApplicationCount, previous.UTC().Format(time.RFC3339)),
	}
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		if err := tx.UpdateLead(ctx, lead); err != nil {
			return err
		}
		return tx.AddNote(ctx, note)
	})
	if err != nil {
		return nil, persistError(err, "Failed to record resubmission")
	}

	monitoring.Applications.WithLabelValues("resubmitted").Inc()
	log.Info().
		Str("lead_id", lead.ID.String()).
		Int("application_count", lead.ApplicationCount).
		Msg("Lead resubmitted")
	s.notify(notify.Event{
		Type:      notify.EventLeadResubmitted,
		CompanyID: lead.CompanyID,
		LeadID:    lead.ID,
		Payload:   map[string]interface{}{"applicationCount": lead.ApplicationCount},
	})
	return &SubmitResult{Lead: lead}, nil
}

// editApplication overwrites the application fields on behalf of staff.
// Status, owner and resubmission counters are left alone.
func (s *LeadService) editApplication(ctx context.Context, actor *model.Actor, current *model.Lead, app model.Application, sin string, version *int) (*SubmitResult, error) {
	if err := checkVersion(current, version); err != nil {
		return nil, err
	}
	lead := current.Clone()
	lead.Application = app
	if sin != "" {
		if err := s.encryptSIN(lead, sin); err != nil {
			return nil, internalError(err, "Failed to encrypt SIN")
		}
	}

	note := &model.Note{
		LeadID:   lead.ID,
		AuthorID: actorID(actor),
		Type:     model.NoteGeneral,
		Content:  "Application details updated by staff",
	}
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		if err := tx.UpdateLead(ctx, lead); err != nil {
			return err
		}
		return tx.AddNote(ctx, note)
	})
	if err != nil {
		return nil, persistError(err, "Failed to update application")
	}

	monitoring.Applications.WithLabelValues("updated").Inc()
	log.Info().Str("lead_id", lead.ID.String()).Msg("Lead application updated")
	s.notify(notify.Event{
		Type:      notify.EventLeadUpdated,
		CompanyID: lead.CompanyID,
		LeadID:    lead.ID,
		ActorID:   actorID(actor),
	})
	return &SubmitResult{Lead: lead}, nil
}
