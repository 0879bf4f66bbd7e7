package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Report is the dashboard aggregate for one company and date range.
type Report struct {
	CompanyStats CompanyStats   `json:"companyStats"`
	OfficerStats []OfficerStats `json:"officerStats"`
	Financials   Financials     `json:"financials"`
	FundedLeads  []FundedLead   `json:"fundedLeads"`
}

// CompanyStats counts leads by status.
type CompanyStats struct {
	Total              int    `json:"total"`
	Unassigned         int    `json:"unassigned"`
	AttemptedToContact int    `json:"attemptedToContact"`
	Connected          int    `json:"connected"`
	Qualified          int    `json:"qualified"`
	Unqualified        int    `json:"unqualified"`
	Declined           int    `json:"declined"`
	Funded             int    `json:"funded"`
	ConversionRate     string `json:"conversionRate"`
}

// OfficerStats is the per-owner performance breakdown.
type OfficerStats struct {
	UserID      uuid.UUID `json:"userId"`
	Name        string    `json:"name"`
	Assigned    int       `json:"assigned"`
	Approved    int       `json:"approved"`
	Funded      int       `json:"funded"`
	Declined    int       `json:"declined"`
	Unqualified int       `json:"unqualified"`
	SuccessRate string    `json:"successRate"`
}

// Financials sums money over funded leads.
type Financials struct {
	TotalFundedVolume decimal.Decimal `json:"totalFundedVolume"`
	TotalRevenue      decimal.Decimal `json:"totalRevenue"`
	FundedCount       int             `json:"fundedCount"`
}

// FundedLead is one row of the funded leads table in the report.
type FundedLead struct {
	ID              uuid.UUID           `json:"id"`
	FirstName       string              `json:"firstName"`
	LastName        string              `json:"lastName"`
	OwnerID         *uuid.UUID          `json:"ownerId"`
	FundedAmount    decimal.NullDecimal `json:"fundedAmount"`
	AdminFee        decimal.NullDecimal `json:"adminFee"`
	PPSRFee         decimal.NullDecimal `json:"ppsrFee"`
	TotalLoanAmount decimal.NullDecimal `json:"totalLoanAmount"`
	CreatedAt       time.Time           `json:"createdAt"`
}

// DateRange bounds report queries on lead creation time. Nil ends are open.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether t falls within the range, From inclusive, To exclusive.
func (r DateRange) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && !t.Before(*r.To) {
		return false
	}
	return true
}
