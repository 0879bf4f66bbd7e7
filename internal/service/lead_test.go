package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teresa-solution/leadforge-service/internal/crypto"
	"github.com/teresa-solution/leadforge-service/internal/model"
	"github.com/teresa-solution/leadforge-service/internal/notify"
	"github.com/teresa-solution/leadforge-service/internal/store"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(ev notify.Event) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return true
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, ev := range n.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	svc      *LeadService
	repo     *store.MemoryRepository
	notifier *recordingNotifier
	cipher   *crypto.SINCipher
	company  *model.Company
	admin    *model.User
	agent    *model.User
}

func (f *fixture) actor(u *model.User) *model.Actor {
	return &model.Actor{UserID: u.ID, CompanyID: u.CompanyID, Role: u.Role}
}

// seedLead stores a lead of the fixture company and returns it.
func (f *fixture) seedLead(t *testing.T, mutate func(*model.Lead)) *model.Lead {
	t.Helper()
	lead := &model.Lead{
		ID:               uuid.New(),
		CompanyID:        f.company.ID,
		Status:           model.StatusUnassigned,
		ApplicationCount: 1,
		Application: model.Application{
			FirstName: "Jane",
			LastName:  "Roe",
			Email:     "jane.roe@example.com",
			Phone:     "604-555-0100",
		},
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	if mutate != nil {
		mutate(lead)
	}
	f.repo.PutLead(lead)
	return lead
}

func setupTestService(t *testing.T, opts ...func(*Options)) (*fixture, func()) {
	ctx := context.Background()
	repo := store.NewMemoryRepository()

	cipher, err := crypto.NewSINCipher([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	company := &model.Company{Name: "Northwind Lending", AdminFeeRate: decimal.NewNullDecimal(decimal.RequireFromString("10"))}
	require.NoError(t, repo.CreateCompany(ctx, company))

	admin := &model.User{CompanyID: company.ID, Name: "Alice Admin", Role: model.RoleAdmin, Active: true}
	agent := &model.User{CompanyID: company.ID, Name: "Bob Agent", Role: model.RoleAgent, Active: true}
	repo.PutUser(admin)
	repo.PutUser(agent)

	notifier := &recordingNotifier{}
	o := Options{Notifier: notifier}
	for _, opt := range opts {
		opt(&o)
	}
	svc := NewLeadService(repo, cipher, o)

	teardown := func() {
		repo.Close()
	}

	return &fixture{
		svc:      svc,
		repo:     repo,
		notifier: notifier,
		cipher:   cipher,
		company:  company,
		admin:    admin,
		agent:    agent,
	}, teardown
}

// failingNotesRepo fails every note insert so that transactions roll back.
type failingNotesRepo struct {
	*store.MemoryRepository
}

func (r failingNotesRepo) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return r.MemoryRepository.InTx(ctx, func(tx store.Tx) error {
		return fn(failingNotesTx{tx})
	})
}

type failingNotesTx struct {
	store.Tx
}

func (failingNotesTx) AddNote(context.Context, *model.Note) error {
	return errors.New("insert note: connection reset")
}

func assertCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok, "expected a status error, got %v", err)
	assert.Equal(t, code, st.Code(), st.Message())
}

func TestLeadService_GetLead(t *testing.T) {
	f, teardown := setupTestService(t)
	defer teardown()
	ctx := context.Background()

	ciphertext, nonce, err := f.cipher.Encrypt("046454286")
	require.NoError(t, err)
	lead := f.seedLead(t, func(l *model.Lead) {
		l.EncryptedSIN = ciphertext
		l.SINNonce = nonce
	})

	detail, err := f.svc.GetLead(ctx, f.actor(f.admin), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, "046454286", detail.Lead.SIN)
	assert.Empty(t, detail.Notes)
	assert.Empty(t, detail.OwnershipHistory)
}

func TestLeadService_GetLead_OtherCompany(t *testing.T) {
	f, teardown := setupTestService(t)
	defer teardown()

	lead := f.seedLead(t, nil)
	outsider := &model.Actor{UserID: uuid.New(), CompanyID: uuid.New(), Role: model.RoleAdmin}

	_, err := f.svc.GetLead(context.Background(), outsider, lead.ID)
	assertCode(t, err, codes.NotFound)
}

func TestLeadService_GetLead_Unauthenticated(t *testing.T) {
	f, teardown := setupTestService(t)
	defer teardown()

	_, err := f.svc.GetLead(context.Background(), nil, uuid.New())
	assertCode(t, err, codes.Unauthenticated)
}
