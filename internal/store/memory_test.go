package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teresa-solution/leadforge-service/internal/model"
)

func TestMemoryRepository_TxRollback(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	lead := &model.Lead{CompanyID: uuid.New(), Status: model.StatusUnassigned}
	err := repo.InTx(ctx, func(tx Tx) error {
		if err := tx.CreateLead(ctx, lead); err != nil {
			return err
		}
		if err := tx.AddNote(ctx, &model.Note{LeadID: lead.ID, Type: model.NoteGeneral}); err != nil {
			return err
		}
		return errors.New("boom")
	})
	assert.Error(t, err)

	got, err := repo.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	notes, err := repo.ListNotes(ctx, lead.ID)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestMemoryRepository_UpdateVersionConflict(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	seed := &model.Lead{CompanyID: uuid.New(), Status: model.StatusUnassigned}
	repo.PutLead(seed)

	first, err := repo.GetLead(ctx, seed.ID)
	require.NoError(t, err)
	second, err := repo.GetLead(ctx, seed.ID)
	require.NoError(t, err)

	first.Status = model.StatusConnected
	require.NoError(t, repo.InTx(ctx, func(tx Tx) error { return tx.UpdateLead(ctx, first) }))
	assert.Equal(t, 2, first.Version)

	second.Status = model.StatusDeclined
	err = repo.InTx(ctx, func(tx Tx) error { return tx.UpdateLead(ctx, second) })
	assert.ErrorIs(t, err, ErrVersionConflict)

	stored, err := repo.GetLead(ctx, seed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConnected, stored.Status)
	assert.Equal(t, 2, stored.Version)
}

func TestMemoryRepository_FindLatestByContact(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	company := uuid.New()

	older := &model.Lead{CompanyID: company, CreatedAt: time.Now().Add(-48 * time.Hour)}
	older.Email = "Jane@Example.com"
	newer := &model.Lead{CompanyID: company, CreatedAt: time.Now().Add(-time.Hour)}
	newer.Phone = "(604) 555-0100"
	repo.PutLead(older)
	repo.PutLead(newer)

	got, err := repo.FindLatestByContact(ctx, "jane@example.com", "604.555.0100")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, newer.ID, got.ID)

	got, err = repo.FindLatestByContact(ctx, " JANE@example.com ", "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, older.ID, got.ID)

	got, err = repo.FindLatestByContact(ctx, "", "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryRepository_ListLeadsForReport(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	company := uuid.New()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	repo.PutLead(&model.Lead{CompanyID: company, CreatedAt: day.Add(-time.Hour)})
	inRange := &model.Lead{CompanyID: company, CreatedAt: day.Add(time.Hour)}
	repo.PutLead(inRange)
	repo.PutLead(&model.Lead{CompanyID: uuid.New(), CreatedAt: day.Add(time.Hour)})

	to := day.Add(24 * time.Hour)
	leads, err := repo.ListLeadsForReport(ctx, company, model.DateRange{From: &day, To: &to})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, inRange.ID, leads[0].ID)
}

func TestMemoryRepository_FirstCompany(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	first, err := repo.FirstCompany(ctx)
	require.NoError(t, err)
	assert.Nil(t, first)

	a := &model.Company{Name: "A", CreatedAt: time.Now().Add(-time.Hour)}
	b := &model.Company{Name: "B", CreatedAt: time.Now()}
	require.NoError(t, repo.CreateCompany(ctx, b))
	require.NoError(t, repo.CreateCompany(ctx, a))

	first, err = repo.FirstCompany(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", first.Name)
}
