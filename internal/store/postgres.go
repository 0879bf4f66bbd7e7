package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/teresa-solution/leadforge-service/internal/model"
)

// PostgresRepository handles database operations for leads and their tenants
type PostgresRepository struct {
	db *sql.DB
}

// PoolOptions tunes the database/sql pool.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewPostgresRepository opens a pgx-backed pool and verifies connectivity.
func NewPostgresRepository(ctx context.Context, dsn string, opts PoolOptions) (*PostgresRepository, error) {
	config, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	db := stdlib.OpenDB(*config)
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresRepository{db: db}, nil
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const leadColumns = `id, company_id, status, current_owner_id, application_count, is_resubmission,
	last_application_date, first_name, last_name, email, phone, date_of_birth, address, city,
	province, postal_code, employment_status, employer, monthly_income, amount_requested,
	loan_purpose, funded_amount, admin_fee_rate, admin_fee, ppsr_fee, discharge_amount,
	total_loan_amount, loan_payment_frequency, first_payment_date, sin_encrypted, sin_nonce,
	version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLead(row rowScanner) (*model.Lead, error) {
	var (
		lead                                 model.Lead
		owner                                uuid.NullUUID
		lastApplication, birth, firstPayment sql.NullTime
		status                               string
	)
	err := row.Scan(
		&lead.ID, &lead.CompanyID, &status, &owner, &lead.ApplicationCount, &lead.IsResubmission,
		&lastApplication, &lead.FirstName, &lead.LastName, &lead.Email, &lead.Phone, &birth,
		&lead.Address, &lead.City, &lead.Province, &lead.PostalCode, &lead.EmploymentStatus,
		&lead.Employer, &lead.MonthlyIncome, &lead.AmountRequested, &lead.LoanPurpose,
		&lead.FundedAmount, &lead.AdminFeeRate, &lead.AdminFee, &lead.PPSRFee, &lead.DischargeAmount,
		&lead.TotalLoanAmount, &lead.LoanPaymentFrequency, &firstPayment, &lead.EncryptedSIN,
		&lead.SINNonce, &lead.Version, &lead.CreatedAt, &lead.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	lead.Status = model.LeadStatus(status)
	lead.CurrentOwnerID = nullUUIDPtr(owner)
	lead.LastApplicationDate = nullTimePtr(lastApplication)
	lead.DateOfBirth = nullTimePtr(birth)
	lead.FirstPaymentDate = nullTimePtr(firstPayment)
	return &lead, nil
}

// GetLead retrieves a lead by ID
func (r *PostgresRepository) GetLead(ctx context.Context, id uuid.UUID) (*model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`
	lead, err := scanLead(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return lead, err
}

// FindLatestByContact returns the most recent lead matching the email or the phone.
func (r *PostgresRepository) FindLatestByContact(ctx context.Context, email, phone string) (*model.Lead, error) {
	email = model.NormalizeEmail(email)
	phone = model.NormalizePhone(phone)
	if email == "" && phone == "" {
		return nil, nil
	}
	query := `SELECT ` + leadColumns + ` FROM leads
		WHERE ($1 <> '' AND lower(email) = $1) OR ($2 <> '' AND phone_digits = $2)
		ORDER BY created_at DESC
		LIMIT 1`
	lead, err := scanLead(r.db.QueryRowContext(ctx, query, email, phone))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return lead, err
}

// ListLeadsForReport returns the company's leads created within the range.
func (r *PostgresRepository) ListLeadsForReport(ctx context.Context, companyID uuid.UUID, dr model.DateRange) ([]*model.Lead, error) {
	var (
		conds = []string{"company_id = $1"}
		args  = []interface{}{companyID}
	)
	if dr.From != nil {
		args = append(args, *dr.From)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if dr.To != nil {
		args = append(args, *dr.To)
		conds = append(conds, fmt.Sprintf("created_at < $%d", len(args)))
	}
	query := `SELECT ` + leadColumns + ` FROM leads WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leads []*model.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

// ListNotes returns a lead's notes, oldest first.
func (r *PostgresRepository) ListNotes(ctx context.Context, leadID uuid.UUID) ([]*model.Note, error) {
	query := `SELECT id, lead_id, author_id, type, content, created_at
		FROM lead_notes WHERE lead_id = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []*model.Note
	for rows.Next() {
		var (
			note     model.Note
			author   uuid.NullUUID
			noteType string
		)
		if err := rows.Scan(&note.ID, &note.LeadID, &author, &noteType, &note.Content, &note.CreatedAt); err != nil {
			return nil, err
		}
		note.AuthorID = nullUUIDPtr(author)
		note.Type = model.NoteType(noteType)
		notes = append(notes, &note)
	}
	return notes, rows.Err()
}

// ListOwnershipHistory returns a lead's owner changes, oldest first.
func (r *PostgresRepository) ListOwnershipHistory(ctx context.Context, leadID uuid.UUID) ([]*model.OwnershipHistory, error) {
	query := `SELECT id, lead_id, from_user_id, to_user_id, performed_by, action_type, created_at
		FROM lead_ownership_history WHERE lead_id = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*model.OwnershipHistory
	for rows.Next() {
		var (
			entry           model.OwnershipHistory
			from, to, actor uuid.NullUUID
			action          string
		)
		if err := rows.Scan(&entry.ID, &entry.LeadID, &from, &to, &actor, &action, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.FromUserID = nullUUIDPtr(from)
		entry.ToUserID = nullUUIDPtr(to)
		entry.PerformedBy = nullUUIDPtr(actor)
		entry.ActionType = model.OwnershipAction(action)
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// GetUser retrieves a user by ID
func (r *PostgresRepository) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := `SELECT id, company_id, name, email, role, active, created_at FROM users WHERE id = $1`
	user := &model.User{}
	var role string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.CompanyID, &user.Name, &user.Email, &role, &user.Active, &user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user.Role = model.Role(role)
	return user, nil
}

// ListUsers returns every user of a company ordered by name.
func (r *PostgresRepository) ListUsers(ctx context.Context, companyID uuid.UUID) ([]*model.User, error) {
	query := `SELECT id, company_id, name, email, role, active, created_at
		FROM users WHERE company_id = $1 ORDER BY name, id`
	rows, err := r.db.QueryContext(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user := &model.User{}
		var role string
		if err := rows.Scan(&user.ID, &user.CompanyID, &user.Name, &user.Email, &role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.Role = model.Role(role)
		users = append(users, user)
	}
	return users, rows.Err()
}

// GetCompany retrieves a company by ID
func (r *PostgresRepository) GetCompany(ctx context.Context, id uuid.UUID) (*model.Company, error) {
	query := `SELECT id, name, admin_fee_rate, created_at FROM companies WHERE id = $1`
	company := &model.Company{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&company.ID, &company.Name, &company.AdminFeeRate, &company.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return company, nil
}

// FirstCompany returns the oldest company, or nil when there is none.
func (r *PostgresRepository) FirstCompany(ctx context.Context) (*model.Company, error) {
	query := `SELECT id, name, admin_fee_rate, created_at FROM companies ORDER BY created_at, id LIMIT 1`
	company := &model.Company{}
	err := r.db.QueryRowContext(ctx, query).Scan(&company.ID, &company.Name, &company.AdminFeeRate, &company.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return company, nil
}

// CreateCompany inserts a new company
func (r *PostgresRepository) CreateCompany(ctx context.Context, company *model.Company) error {
	if company.ID == uuid.Nil {
		company.ID = uuid.New()
	}
	company.CreatedAt = time.Now().UTC()
	query := `INSERT INTO companies (id, name, admin_fee_rate, created_at) VALUES ($1, $2, $3, $4)`
	_, err := r.db.ExecContext(ctx, query, company.ID, company.Name, company.AdminFeeRate, company.CreatedAt)
	return err
}

// InTx runs fn in a database transaction, rolling back on error or panic.
func (r *PostgresRepository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&pgTx{q: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	q queryer
}

// CreateLead inserts a new lead at version 1
func (t *pgTx) CreateLead(ctx context.Context, lead *model.Lead) error {
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	now := time.Now().UTC()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	lead.UpdatedAt = now
	lead.Version = 1

	query := `INSERT INTO leads (` + leadColumns + `, phone_digits)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34, $35)`
	_, err := t.q.ExecContext(ctx, query,
		lead.ID, lead.CompanyID, string(lead.Status), lead.CurrentOwnerID, lead.ApplicationCount,
		lead.IsResubmission, lead.LastApplicationDate, lead.FirstName, lead.LastName, lead.Email,
		lead.Phone, lead.DateOfBirth, lead.Address, lead.City, lead.Province, lead.PostalCode,
		lead.EmploymentStatus, lead.Employer, lead.MonthlyIncome, lead.AmountRequested,
		lead.LoanPurpose, lead.FundedAmount, lead.AdminFeeRate, lead.AdminFee, lead.PPSRFee,
		lead.DischargeAmount, lead.TotalLoanAmount, lead.LoanPaymentFrequency, lead.FirstPaymentDate,
		lead.EncryptedSIN, lead.SINNonce, lead.Version, lead.CreatedAt, lead.UpdatedAt,
		model.NormalizePhone(lead.Phone),
	)
	return err
}

// UpdateLead performs a version compare-and-swap update of every mutable column
func (t *pgTx) UpdateLead(ctx context.Context, lead *model.Lead) error {
	now := time.Now().UTC()
	query := `UPDATE leads SET
			status = $3, current_owner_id = $4, application_count = $5, is_resubmission = $6,
			last_application_date = $7, first_name = $8, last_name = $9, email = $10, phone = $11,
			phone_digits = $12, date_of_birth = $13, address = $14, city = $15, province = $16,
			postal_code = $17, employment_status = $18, employer = $19, monthly_income = $20,
			amount_requested = $21, loan_purpose = $22, funded_amount = $23, admin_fee_rate = $24,
			admin_fee = $25, ppsr_fee = $26, discharge_amount = $27, total_loan_amount = $28,
			loan_payment_frequency = $29, first_payment_date = $30, sin_encrypted = $31,
			sin_nonce = $32, created_at = $33, updated_at = $34, version = version + 1
		WHERE id = $1 AND version = $2`
	result, err := t.q.ExecContext(ctx, query,
		lead.ID, lead.Version, string(lead.Status), lead.CurrentOwnerID, lead.ApplicationCount,
		lead.IsResubmission, lead.LastApplicationDate, lead.FirstName, lead.LastName, lead.Email,
		lead.Phone, model.NormalizePhone(lead.Phone), lead.DateOfBirth, lead.Address, lead.City,
		lead.Province, lead.PostalCode, lead.EmploymentStatus, lead.Employer, lead.MonthlyIncome,
		lead.AmountRequested, lead.LoanPurpose, lead.FundedAmount, lead.AdminFeeRate, lead.AdminFee,
		lead.PPSRFee, lead.DischargeAmount, lead.TotalLoanAmount, lead.LoanPaymentFrequency,
		lead.FirstPaymentDate, lead.EncryptedSIN, lead.SINNonce, lead.CreatedAt, now,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrVersionConflict
	}
	lead.Version++
	lead.UpdatedAt = now
	return nil
}

// AddNote appends a note to a lead
func (t *pgTx) AddNote(ctx context.Context, note *model.Note) error {
	if note.ID == uuid.Nil {
		note.ID = uuid.New()
	}
	note.CreatedAt = time.Now().UTC()
	query := `INSERT INTO lead_notes (id, lead_id, author_id, type, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := t.q.ExecContext(ctx, query, note.ID, note.LeadID, note.AuthorID, string(note.Type), note.Content, note.CreatedAt)
	return err
}

// AddOwnershipHistory appends an owner change record
func (t *pgTx) AddOwnershipHistory(ctx context.Context, entry *model.OwnershipHistory) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = time.Now().UTC()
	query := `INSERT INTO lead_ownership_history (id, lead_id, from_user_id, to_user_id, performed_by, action_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := t.q.ExecContext(ctx, query,
		entry.ID, entry.LeadID, entry.FromUserID, entry.ToUserID, entry.PerformedBy, string(entry.ActionType), entry.CreatedAt,
	)
	return err
}

func nullUUIDPtr(n uuid.NullUUID) *uuid.UUID {
	if !n.Valid {
		return nil
	}
	id := n.UUID
	return &id
}

func nullTimePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}
