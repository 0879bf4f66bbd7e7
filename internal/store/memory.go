package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teresa-solution/leadforge-service/internal/model"
)

// MemoryRepository keeps everything in process memory. It backs the "memory"
// database driver for single-process demos and the service tests.
// Transactions are serialized and staged until commit.
type MemoryRepository struct {
	mu        sync.RWMutex
	txMu      sync.Mutex
	leads     map[uuid.UUID]*model.Lead
	notes     []*model.Note
	history   []*model.OwnershipHistory
	users     map[uuid.UUID]*model.User
	companies map[uuid.UUID]*model.Company
	now       func() time.Time
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		leads:     make(map[uuid.UUID]*model.Lead),
		users:     make(map[uuid.UUID]*model.User),
		companies: make(map[uuid.UUID]*model.Company),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) Close() error { return nil }

// PutUser seeds a user.
func (r *MemoryRepository) PutUser(user *model.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = r.now()
	}
	u := *user
	r.users[u.ID] = &u
}

// PutLead seeds a lead exactly as given, bypassing version bookkeeping.
func (r *MemoryRepository) PutLead(lead *model.Lead) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	if lead.Version == 0 {
		lead.Version = 1
	}
	r.leads[lead.ID] = lead.Clone()
}

func (r *MemoryRepository) GetLead(_ context.Context, id uuid.UUID) (*model.Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lead, ok := r.leads[id]
	if !ok {
		return nil, nil
	}
	return lead.Clone(), nil
}

func (r *MemoryRepository) FindLatestByContact(_ context.Context, email, phone string) (*model.Lead, error) {
	email = model.NormalizeEmail(email)
	phone = model.NormalizePhone(phone)
	if email == "" && phone == "" {
		return nil, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *model.Lead
	for _, lead := range r.leads {
		match := (email != "" && model.NormalizeEmail(lead.Email) == email) ||
			(phone != "" && model.NormalizePhone(lead.Phone) == phone)
		if match && (latest == nil || lead.CreatedAt.After(latest.CreatedAt)) {
			latest = lead
		}
	}
	if latest == nil {
		return nil, nil
	}
	return latest.Clone(), nil
}

func (r *MemoryRepository) ListLeadsForReport(_ context.Context, companyID uuid.UUID, dr model.DateRange) ([]*model.Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var leads []*model.Lead
	for _, lead := range r.leads {
		if lead.CompanyID == companyID && dr.Contains(lead.CreatedAt) {
			leads = append(leads, lead.Clone())
		}
	}
	sort.Slice(leads, func(i, j int) bool { return leads[i].CreatedAt.After(leads[j].CreatedAt) })
	return leads, nil
}

func (r *MemoryRepository) ListNotes(_ context.Context, leadID uuid.UUID) ([]*model.Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var notes []*model.Note
	for _, n := range r.notes {
		if n.LeadID == leadID {
			c := *n
			notes = append(notes, &c)
		}
	}
	return notes, nil
}

func (r *MemoryRepository) ListOwnershipHistory(_ context.Context, leadID uuid.UUID) ([]*model.OwnershipHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var entries []*model.OwnershipHistory
	for _, h := range r.history {
		if h.LeadID == leadID {
			c := *h
			entries = append(entries, &c)
		}
	}
	return entries, nil
}

func (r *MemoryRepository) GetUser(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	u := *user
	return &u, nil
}

func (r *MemoryRepository) ListUsers(_ context.Context, companyID uuid.UUID) ([]*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var users []*model.User
	for _, user := range r.users {
		if user.CompanyID == companyID {
			u := *user
			users = append(users, &u)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Name != users[j].Name {
			return users[i].Name < users[j].Name
		}
		return users[i].ID.String() < users[j].ID.String()
	})
	return users, nil
}

func (r *MemoryRepository) GetCompany(_ context.Context, id uuid.UUID) (*model.Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	company, ok := r.companies[id]
	if !ok {
		return nil, nil
	}
	c := *company
	return &c, nil
}

func (r *MemoryRepository) FirstCompany(_ context.Context) (*model.Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var first *model.Company
	for _, company := range r.companies {
		if first == nil || company.CreatedAt.Before(first.CreatedAt) {
			first = company
		}
	}
	if first == nil {
		return nil, nil
	}
	c := *first
	return &c, nil
}

func (r *MemoryRepository) CreateCompany(_ context.Context, company *model.Company) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if company.ID == uuid.Nil {
		company.ID = uuid.New()
	}
	if company.CreatedAt.IsZero() {
		company.CreatedAt = r.now()
	}
	c := *company
	r.companies[c.ID] = &c
	return nil
}

// InTx stages writes and applies them only if fn succeeds.
func (r *MemoryRepository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	tx := &memoryTx{repo: r, leads: make(map[uuid.UUID]*model.Lead)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, lead := range tx.leads {
		r.leads[id] = lead
	}
	r.notes = append(r.notes, tx.notes...)
	r.history = append(r.history, tx.history...)
	return nil
}

type memoryTx struct {
	repo    *MemoryRepository
	leads   map[uuid.UUID]*model.Lead
	notes   []*model.Note
	history []*model.OwnershipHistory
}

// currentVersion sees staged writes first, then committed state.
func (t *memoryTx) currentVersion(id uuid.UUID) (int, bool) {
	if lead, ok := t.leads[id]; ok {
		return lead.Version, true
	}
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	lead, ok := t.repo.leads[id]
	if !ok {
		return 0, false
	}
	return lead.Version, true
}

func (t *memoryTx) CreateLead(_ context.Context, lead *model.Lead) error {
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	now := t.repo.now()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	lead.UpdatedAt = now
	lead.Version = 1
	t.leads[lead.ID] = lead.Clone()
	return nil
}

func (t *memoryTx) UpdateLead(_ context.Context, lead *model.Lead) error {
	version, ok := t.currentVersion(lead.ID)
	if !ok || version != lead.Version {
		return ErrVersionConflict
	}
	lead.Version++
	lead.UpdatedAt = t.repo.now()
	t.leads[lead.ID] = lead.Clone()
	return nil
}

func (t *memoryTx) AddNote(_ context.Context, note *model.Note) error {
	if note.ID == uuid.Nil {
		note.ID = uuid.New()
	}
	note.CreatedAt = t.repo.now()
	c := *note
	t.notes = append(t.notes, &c)
	return nil
}

func (t *memoryTx) AddOwnershipHistory(_ context.Context, entry *model.OwnershipHistory) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = t.repo.now()
	c := *entry
	t.history = append(t.history, &c)
	return nil
}
