package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LeadStatus is the pipeline position of a lead.
type LeadStatus string

const (
	StatusUnassigned         LeadStatus = "UNASSIGNED"
	StatusAttemptedToContact LeadStatus = "ATTEMPTED_TO_CONTACT"
	StatusConnected          LeadStatus = "CONNECTED"
	StatusQualified          LeadStatus = "QUALIFIED"
	StatusUnqualified        LeadStatus = "UNQUALIFIED"
	StatusDeclined           LeadStatus = "DECLINED"
	StatusFunded             LeadStatus = "FUNDED"
)

// LeadStatuses lists every status in pipeline order.
var LeadStatuses = []LeadStatus{
	StatusUnassigned,
	StatusAttemptedToContact,
	StatusConnected,
	StatusQualified,
	StatusUnqualified,
	StatusDeclined,
	StatusFunded,
}

// Valid reports whether s is one of the known statuses.
func (s LeadStatus) Valid() bool {
	for _, known := range LeadStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Application holds the applicant-supplied fields of a lead. Public and
// internal submissions overwrite all of them at once.
type Application struct {
	FirstName        string              `json:"firstName"`
	LastName         string              `json:"lastName"`
	Email            string              `json:"email"`
	Phone            string              `json:"phone"`
	DateOfBirth      *time.Time          `json:"dateOfBirth,omitempty"`
	Address          string              `json:"address"`
	City             string              `json:"city"`
	Province         string              `json:"province"`
	PostalCode       string              `json:"postalCode"`
	EmploymentStatus string              `json:"employmentStatus"`
	Employer         string              `json:"employer"`
	MonthlyIncome    decimal.NullDecimal `json:"monthlyIncome"`
	AmountRequested  decimal.NullDecimal `json:"amountRequested"`
	LoanPurpose      string              `json:"loanPurpose"`
}

// Funding holds the funding-stage fields. All amounts are nil until the
// funding form is saved.
type Funding struct {
	FundedAmount         decimal.NullDecimal `json:"fundedAmount"`
	AdminFeeRate         decimal.NullDecimal `json:"adminFeeRate"`
	AdminFee             decimal.NullDecimal `json:"adminFee"`
	PPSRFee              decimal.NullDecimal `json:"ppsrFee"`
	DischargeAmount      decimal.NullDecimal `json:"dischargeAmount"`
	TotalLoanAmount      decimal.NullDecimal `json:"totalLoanAmount"`
	LoanPaymentFrequency string              `json:"loanPaymentFrequency,omitempty"`
	FirstPaymentDate     *time.Time          `json:"firstPaymentDate,omitempty"`
}

// Lead represents the leads table
type Lead struct {
	ID             uuid.UUID  `json:"id"`
	CompanyID      uuid.UUID  `json:"companyId"`
	Status         LeadStatus `json:"status"`
	CurrentOwnerID *uuid.UUID `json:"currentOwnerId"`

	ApplicationCount    int        `json:"applicationCount"`
	IsResubmission      bool       `json:"isResubmission"`
	LastApplicationDate *time.Time `json:"lastApplicationDate,omitempty"`

	Application
	Funding

	SIN          string `json:"sin,omitempty"` // Plaintext (transient, not stored in DB)
	EncryptedSIN []byte `json:"-"`             // Stored in DB
	SINNonce     []byte `json:"-"`             // Stored in DB

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasSIN reports whether an encrypted SIN is on file.
func (l *Lead) HasSIN() bool {
	return len(l.EncryptedSIN) > 0 && len(l.SINNonce) > 0
}

// Clone returns a deep copy safe to mutate independently of l.
func (l *Lead) Clone() *Lead {
	c := *l
	if l.CurrentOwnerID != nil {
		owner := *l.CurrentOwnerID
		c.CurrentOwnerID = &owner
	}
	c.LastApplicationDate = cloneTime(l.LastApplicationDate)
	c.DateOfBirth = cloneTime(l.DateOfBirth)
	c.FirstPaymentDate = cloneTime(l.FirstPaymentDate)
	c.EncryptedSIN = append([]byte(nil), l.EncryptedSIN...)
	c.SINNonce = append([]byte(nil), l.SINNonce...)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// SameOwner reports whether two nullable owner references point at the same user.
func SameOwner(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
