// Package api exposes the lead service over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/teresa-solution/leadforge-service/internal/model"
	"github.com/teresa-solution/leadforge-service/internal/service"
)

// LeadService is implemented by *service.LeadService.
type LeadService interface {
	UpdateLead(ctx context.Context, actor *model.Actor, leadID uuid.UUID, req service.LeadUpdate) (*model.Lead, error)
	UpdateFunding(ctx context.Context, actor *model.Actor, leadID uuid.UUID, in service.FundingInput) (*model.Lead, error)
	CheckApplicant(ctx context.Context, email, phone string) (*service.ApplicantMatch, error)
	SubmitApplication(ctx context.Context, actor *model.Actor, in service.ApplicationInput) (*service.SubmitResult, error)
	GetLead(ctx context.Context, actor *model.Actor, leadID uuid.UUID) (*service.LeadDetail, error)
	Report(ctx context.Context, actor *model.Actor, dr model.DateRange) (*model.Report, error)
}

type Handler struct {
	svc LeadService
}

func NewHandler(svc LeadService) *Handler {
	return &Handler{svc: svc}
}

type updateLeadRequest struct {
	Status  *model.LeadStatus `json:"status"`
	OwnerID OptionalUUID      `json:"ownerId"`
	Version *int              `json:"version"`
}

type fundingRequest struct {
	FundedAmount         LooseDecimal `json:"funded_amount"`
	AdminFee             LooseDecimal `json:"admin_fee"`
	AdminFeeRate         LooseDecimal `json:"admin_fee_rate"`
	PPSRFee              LooseDecimal `json:"ppsr_fee"`
	DischargeAmount      LooseDecimal `json:"discharge_amount"`
	TotalLoanAmount      LooseDecimal `json:"total_loan_amount"`
	LoanPaymentFrequency string       `json:"loan_payment_frequency"`
	FirstPaymentDate     string       `json:"first_payment_date"`
	Version              *int         `json:"version"`
}

type checkRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type submitRequest struct {
	IsUpdate   bool         `json:"isUpdate"`
	LeadID     OptionalUUID `json:"leadId"`
	IsInternal bool         `json:"isInternal"`
	OwnerID    OptionalUUID `json:"ownerId"`
	CompanyID  OptionalUUID `json:"companyId"`
	Version    *int         `json:"version"`

	FirstName        string       `json:"firstName"`
	LastName         string       `json:"lastName"`
	Email            string       `json:"email"`
	Phone            string       `json:"phone"`
	DateOfBirth      string       `json:"dateOfBirth"`
	SIN              string       `json:"sin"`
	Address          string       `json:"address"`
	City             string       `json:"city"`
	Province         string       `json:"province"`
	PostalCode       string       `json:"postalCode"`
	EmploymentStatus string       `json:"employmentStatus"`
	Employer         string       `json:"employer"`
	MonthlyIncome    LooseDecimal `json:"monthlyIncome"`
	AmountRequested  LooseDecimal `json:"amountRequested"`
	LoanPurpose      string       `json:"loanPurpose"`
}

func leadIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "Invalid lead ID")
		return uuid.Nil, false
	}
	return id, true
}

// UpdateLead handles PATCH /api/leads/:id
func (h *Handler) UpdateLead(c *gin.Context) {
	id, ok := leadIDParam(c)
	if !ok {
		return
	}
	var req updateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	lead, err := h.svc.UpdateLead(c.Request.Context(), actorFrom(c), id, service.LeadUpdate{
		Status:   req.Status,
		OwnerSet: req.OwnerID.Set,
		OwnerID:  req.OwnerID.ID,
		Version:  req.Version,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, lead)
}

// UpdateFunding handles PATCH /api/leads/:id/funding
func (h *Handler) UpdateFunding(c *gin.Context) {
	id, ok := leadIDParam(c)
	if !ok {
		return
	}
	var req fundingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	firstPayment, err := parseDate(req.FirstPaymentDate)
	if err != nil {
		badRequest(c, "first_payment_date must be YYYY-MM-DD")
		return
	}

	lead, err := h.svc.UpdateFunding(c.Request.Context(), actorFrom(c), id, service.FundingInput{
		FundedAmount:         req.FundedAmount.NullDecimal,
		AdminFee:             req.AdminFee.NullDecimal,
		AdminFeeRate:         req.AdminFeeRate.NullDecimal,
		PPSRFee:              req.PPSRFee.NullDecimal,
		DischargeAmount:      req.DischargeAmount.NullDecimal,
		TotalLoanAmount:      req.TotalLoanAmount.NullDecimal,
		LoanPaymentFrequency: req.LoanPaymentFrequency,
		FirstPaymentDate:     firstPayment,
		Version:              req.Version,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, lead)
}

// CheckApplicant handles POST /api/leads/check
func (h *Handler) CheckApplicant(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	match, err := h.svc.CheckApplicant(c.Request.Context(), req.Email, req.Phone)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, match)
}

// SubmitApplication handles POST /api/leads
func (h *Handler) SubmitApplication(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	dob, err := parseDate(req.DateOfBirth)
	if err != nil {
		badRequest(c, "dateOfBirth must be YYYY-MM-DD")
		return
	}

	actor := actorFrom(c)
	res, err := h.svc.SubmitApplication(c.Request.Context(), actor, service.ApplicationInput{
		IsUpdate:       req.IsUpdate,
		LeadID:         req.LeadID.ID,
		IsInternal:     req.IsInternal,
		OwnerID:        req.OwnerID.ID,
		CompanyID:      req.CompanyID.ID,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
		Version:        req.Version,
		SIN:            req.SIN,
		Application: model.Application{
			FirstName:        req.FirstName,
			LastName:         req.LastName,
			Email:            req.Email,
			Phone:            req.Phone,
			DateOfBirth:      dob,
			Address:          req.Address,
			City:             req.City,
			Province:         req.Province,
			PostalCode:       req.PostalCode,
			EmploymentStatus: req.EmploymentStatus,
			Employer:         req.Employer,
			MonthlyIncome:    req.MonthlyIncome.NullDecimal,
			AmountRequested:  req.AmountRequested.NullDecimal,
			LoanPurpose:      req.LoanPurpose,
		},
	})
	if err != nil {
		writeError(c, err)
		return
	}

	code := http.StatusOK
	if res.Created {
		code = http.StatusCreated
	}
	if !req.IsInternal {
		// applicants only learn which record they are on
		c.JSON(code, gin.H{"id": res.Lead.ID, "created": res.Created, "replayed": res.Replayed})
		return
	}
	c.JSON(code, gin.H{"lead": res.Lead, "created": res.Created, "replayed": res.Replayed})
}

// GetLead handles GET /api/leads/:id
func (h *Handler) GetLead(c *gin.Context) {
	id, ok := leadIDParam(c)
	if !ok {
		return
	}
	detail, err := h.svc.GetLead(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// Report handles GET /api/reports?startDate&endDate
func (h *Handler) Report(c *gin.Context) {
	from, err := parseDate(c.Query("startDate"))
	if err != nil {
		badRequest(c, "startDate must be YYYY-MM-DD")
		return
	}
	to, err := parseDate(c.Query("endDate"))
	if err != nil {
		badRequest(c, "endDate must be YYYY-MM-DD")
		return
	}
	if to != nil {
		// endDate is inclusive
		next := to.AddDate(0, 0, 1)
		to = &next
	}
	if from != nil && to != nil && !from.Before(*to) {
		badRequest(c, "startDate must not be after endDate")
		return
	}

	report, err := h.svc.Report(c.Request.Context(), actorFrom(c), model.DateRange{From: from, To: to})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
