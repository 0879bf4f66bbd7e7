package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/leadforge-service/internal/crypto"
	"github.com/teresa-solution/leadforge-service/internal/model"
	"github.com/teresa-solution/leadforge-service/internal/notify"
	"github.com/teresa-solution/leadforge-service/internal/store"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Notifier accepts events for asynchronous delivery to the realtime relay.
type Notifier interface {
	Notify(ev notify.Event) bool
}

// Idempotency remembers the outcome of submissions carrying an idempotency key.
type Idempotency interface {
	Claim(ctx context.Context, scope, key string) (uuid.UUID, bool, error)
	Complete(ctx context.Context, scope, key string, leadID uuid.UUID) error
	Release(ctx context.Context, scope, key string) error
}

// TenantFallback decides which company receives a public application that
// names none.
type TenantFallback string

const (
	// FallbackNone rejects public applications without a company.
	FallbackNone TenantFallback = "none"
	// FallbackFirst uses the oldest company, creating "Default Company" if
	// none exists. Only suitable for single-tenant deployments.
	FallbackFirst TenantFallback = "first"
)

// Options carries the optional collaborators of LeadService.
type Options struct {
	Notifier       Notifier
	Idempotency    Idempotency
	TenantFallback TenantFallback
}

// LeadService implements the lead lifecycle: transitions, funding,
// applications and reporting.
type LeadService struct {
	repo        store.Repository
	cipher      *crypto.SINCipher
	notifier    Notifier
	idempotency Idempotency
	fallback    TenantFallback
	now         func() time.Time
}

func NewLeadService(repo store.Repository, cipher *crypto.SINCipher, opts Options) *LeadService {
	fallback := opts.TenantFallback
	if fallback == "" {
		fallback = FallbackNone
	}
	return &LeadService{
		repo:        repo,
		cipher:      cipher,
		notifier:    opts.Notifier,
		idempotency: opts.Idempotency,
		fallback:    fallback,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// LeadDetail is a lead as shown to authorized staff.
type LeadDetail struct {
	Lead             *model.Lead               `json:"lead"`
	Notes            []*model.Note             `json:"notes"`
	OwnershipHistory []*model.OwnershipHistory `json:"ownershipHistory"`
}

// GetLead returns a lead with its decrypted SIN and audit trail.
func (s *LeadService) GetLead(ctx context.Context, actor *model.Actor, leadID uuid.UUID) (*LeadDetail, error) {
	if actor == nil {
		return nil, errUnauthenticated
	}
	lead, err := s.loadLead(ctx, actor, leadID)
	if err != nil {
		return nil, err
	}
	if lead.HasSIN() {
		sin, err := s.cipher.Decrypt(lead.EncryptedSIN, lead.SINNonce)
		if err != nil {
			return nil, internalError(err, "Failed to decrypt SIN")
		}
		lead.SIN = sin
	}

	notes, err := s.repo.ListNotes(ctx, lead.ID)
	if err != nil {
		return nil, internalError(err, "Failed to list notes")
	}
	history, err := s.repo.ListOwnershipHistory(ctx, lead.ID)
	if err != nil {
		return nil, internalError(err, "Failed to list ownership history")
	}
	return &LeadDetail{Lead: lead, Notes: notes, OwnershipHistory: history}, nil
}

// loadLead fetches a lead visible to actor. Leads of other companies are
// reported as missing.
func (s *LeadService) loadLead(ctx context.Context, actor *model.Actor, leadID uuid.UUID) (*model.Lead, error) {
	lead, err := s.repo.GetLead(ctx, leadID)
	if err != nil {
		return nil, internalError(err, "Failed to get lead")
	}
	if lead == nil || (actor != nil && lead.CompanyID != actor.CompanyID) {
		return nil, status.Error(codes.NotFound, "Lead not found")
	}
	return lead, nil
}

// resolveOwner checks that userID may own leads of companyID.
func (s *LeadService) resolveOwner(ctx context.Context, companyID, userID uuid.UUID) (*model.User, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, internalError(err, "Failed to get user")
	}
	if user == nil || user.CompanyID != companyID {
		return nil, status.Error(codes.NotFound, "Owner not found")
	}
	if !user.Active {
		return nil, status.Error(codes.InvalidArgument, "owner is not an active user")
	}
	return user, nil
}

func (s *LeadService) notify(ev notify.Event) {
	if s.notifier == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	s.notifier.Notify(ev)
}

func (s *LeadService) encryptSIN(lead *model.Lead, sin string) error {
	ciphertext, nonce, err := s.cipher.Encrypt(sin)
	if err != nil {
		return err
	}
	lead.EncryptedSIN = ciphertext
	lead.SINNonce = nonce
	return nil
}

// checkVersion rejects a request made against a stale copy of the lead.
func checkVersion(lead *model.Lead, expected *int) error {
	if expected != nil && *expected != lead.Version {
		return status.Errorf(codes.Aborted, "lead has been modified (version %d, expected %d)", lead.Version, *expected)
	}
	return nil
}

// persistError maps a transaction failure to the caller-facing error.
func persistError(err error, msg string) error {
	if errors.Is(err, store.ErrVersionConflict) {
		return status.Error(codes.Aborted, "lead has been modified by another request")
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return internalError(err, msg)
}

var errUnauthenticated = status.Error(codes.Unauthenticated, "authentication required")

// internalError logs the cause and hides it from the caller.
func internalError(err error, msg string) error {
	log.Error().Err(err).Msg(msg)
	return status.Error(codes.Internal, "Internal server error")
}

func actorID(actor *model.Actor) *uuid.UUID {
	if actor == nil {
		return nil
	}
	id := actor.UserID
	return &id
}
