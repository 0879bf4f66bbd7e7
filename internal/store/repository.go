package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/teresa-solution/leadforge-service/internal/model"
)

// ErrVersionConflict is returned by Tx.UpdateLead when the stored version no
// longer matches the version the caller read.
var ErrVersionConflict = errors.New("lead was modified by another request")

// Repository is the read side of lead storage plus a transaction entry point.
// Lookups return nil, nil when the row does not exist.
type Repository interface {
	GetLead(ctx context.Context, id uuid.UUID) (*model.Lead, error)
	FindLatestByContact(ctx context.Context, email, phone string) (*model.Lead, error)
	ListLeadsForReport(ctx context.Context, companyID uuid.UUID, r model.DateRange) ([]*model.Lead, error)
	ListNotes(ctx context.Context, leadID uuid.UUID) ([]*model.Note, error)
	ListOwnershipHistory(ctx context.Context, leadID uuid.UUID) ([]*model.OwnershipHistory, error)

	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	ListUsers(ctx context.Context, companyID uuid.UUID) ([]*model.User, error)

	GetCompany(ctx context.Context, id uuid.UUID) (*model.Company, error)
	FirstCompany(ctx context.Context) (*model.Company, error)
	CreateCompany(ctx context.Context, company *model.Company) error

	// InTx runs fn inside one transaction. Every write made through tx is
	// committed together when fn returns nil and discarded otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}

// Tx is the write side, only reachable inside Repository.InTx.
type Tx interface {
	CreateLead(ctx context.Context, lead *model.Lead) error
	// UpdateLead writes every mutable column of lead if the stored version
	// equals lead.Version, then bumps lead.Version.
	UpdateLead(ctx context.Context, lead *model.Lead) error
	AddNote(ctx context.Context, note *model.Note) error
	AddOwnershipHistory(ctx context.Context, entry *model.OwnershipHistory) error
}
