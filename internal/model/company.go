package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role is a staff member's permission level within a company.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleAgent   Role = "AGENT"
)

// Company represents the companies table (one tenant).
type Company struct {
	ID           uuid.UUID           `json:"id"`
	Name         string              `json:"name"`
	AdminFeeRate decimal.NullDecimal `json:"adminFeeRate"` // default percentage of funded amount
	CreatedAt    time.Time           `json:"createdAt"`
}

// User represents the users table.
type User struct {
	ID        uuid.UUID `json:"id"`
	CompanyID uuid.UUID `json:"companyId"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// Actor is the authenticated caller as asserted by the identity provider.
type Actor struct {
	UserID    uuid.UUID
	CompanyID uuid.UUID
	Role      Role
}
