package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/teresa-solution/leadforge-service/internal/model"
	"github.com/teresa-solution/leadforge-service/internal/monitoring"
	"github.com/teresa-solution/leadforge-service/internal/notify"
	"github.com/teresa-solution/leadforge-service/internal/store"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	hundred    = decimal.NewFromInt(100)
	zeroAmount = decimal.NewNullDecimal(decimal.Zero)
)

// FundingInput is one submission of the funding form. Invalid amounts mean
// the field was empty or not a number.
type FundingInput struct {
	FundedAmount         decimal.NullDecimal
	AdminFee             decimal.NullDecimal
	AdminFeeRate         decimal.NullDecimal
	PPSRFee              decimal.NullDecimal
	DischargeAmount      decimal.NullDecimal
	TotalLoanAmount      decimal.NullDecimal
	LoanPaymentFrequency string
	FirstPaymentDate     *time.Time
	Version              *int
}

// AdminFeeFromRate converts a percentage rate into an absolute fee rounded to cents.
func AdminFeeFromRate(funded, rate decimal.Decimal) decimal.Decimal {
	return funded.Mul(rate).Div(hundred).Round(2)
}

// TotalLoanAmount sums the principal with its fees. Missing fees count as zero;
// a missing principal yields no total. The discharge amount never enters the sum.
func TotalLoanAmount(funded, adminFee, ppsrFee decimal.NullDecimal) decimal.NullDecimal {
	if !funded.Valid {
		return decimal.NullDecimal{}
	}
	total := funded.Decimal.Round(2)
	if adminFee.Valid {
		total = total.Add(adminFee.Decimal.Round(2))
	}
	if ppsrFee.Valid {
		total = total.Add(ppsrFee.Decimal.Round(2))
	}
	return decimal.NewNullDecimal(total)
}

// UpdateFunding stores the funding stage of a lead. The admin fee is derived here
// from the applicable rate unless a privileged caller supplies it directly, and
// AGENTs may not move either fee field away from what the company has set.
func (s *LeadService) UpdateFunding(ctx context.Context, actor *model.Actor, leadID uuid.UUID, in FundingInput) (*model.Lead, error) {
	if actor == nil {
		return nil, errUnauthenticated
	}
	if err := validateFunding(in); err != nil {
		return nil, err
	}
	in = normalizeFunding(in)

	current, err := s.loadLead(ctx, actor, leadID)
	if err != nil {
		return nil, err
	}
	company, err := s.repo.GetCompany(ctx, current.CompanyID)
	if err != nil {
		return nil, internalError(err, "Failed to get company")
	}
	var companyRate decimal.NullDecimal
	if company != nil {
		companyRate = company.AdminFeeRate
	}

	funding, err := computeFunding(actor.Role, current, companyRate, in)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(current, in.Version); err != nil {
		return nil, err
	}

	lead := current.Clone()
	lead.Funding = funding
	err = s.repo.InTx(ctx, func(tx store.Tx) error {
		return tx.UpdateLead(ctx, lead)
	})
	if err != nil {
		return nil, persistError(err, "Failed to update funding")
	}

	monitoring.LeadTransitions.WithLabelValues("funding").Inc()
	log.Info().Str("lead_id", lead.ID.String()).Msg("Lead funding updated")

	payload := map[string]interface{}{}
	if lead.TotalLoanAmount.Valid {
		payload["totalLoanAmount"] = lead.TotalLoanAmount.Decimal.StringFixed(2)
	}
	s.notify(notify.Event{
		Type:      notify.EventLeadFundingUpdated,
		CompanyID: lead.CompanyID,
		LeadID:    lead.ID,
		ActorID:   actorID(actor),
		Payload:   payload,
	})
	return lead, nil
}

func normalizeFunding(in FundingInput) FundingInput {
	round := func(d decimal.NullDecimal, places int32) decimal.NullDecimal {
		if !d.Valid {
			return d
		}
		return decimal.NewNullDecimal(d.Decimal.Round(places))
	}
	in.FundedAmount = round(in.FundedAmount, 2)
	in.AdminFee = round(in.AdminFee, 2)
	in.AdminFeeRate = round(in.AdminFeeRate, 3)
	in.PPSRFee = round(in.PPSRFee, 2)
	in.DischargeAmount = round(in.DischargeAmount, 2)
	in.TotalLoanAmount = round(in.TotalLoanAmount, 2)
	return in
}

func validateFunding(in FundingInput) error {
	amounts := []struct {
		name  string
		value decimal.NullDecimal
	}{
		{"funded_amount", in.FundedAmount},
		{"admin_fee", in.AdminFee},
		{"admin_fee_rate", in.AdminFeeRate},
		{"ppsr_fee", in.PPSRFee},
		{"discharge_amount", in.DischargeAmount},
		{"total_loan_amount", in.TotalLoanAmount},
	}
	for _, a := range amounts {
		if outOfRange(a.value) {
			return status.Errorf(codes.InvalidArgument, "%s is out of range (max %s, at most 20 decimal places)", a.name, maxAmount.StringFixed(2))
		}
		if isNegative(a.value) {
			return status.Errorf(codes.InvalidArgument, "%s must not be negative", a.name)
		}
	}
	if in.AdminFeeRate.Valid && in.AdminFeeRate.Decimal.GreaterThan(hundred) {
		return status.Error(codes.InvalidArgument, "admin_fee_rate must not exceed 100")
	}
	return nil
}

// computeFunding resolves the stored funding fields for one validated,
// normalized submission.
func computeFunding(role model.Role, lead *model.Lead, companyRate decimal.NullDecimal, in FundingInput) (model.Funding, error) {
	storedRate := lead.AdminFeeRate
	if !storedRate.Valid {
		storedRate = companyRate
	}

	var rate, adminFee decimal.NullDecimal
	if role == model.RoleAgent {
		if in.AdminFeeRate.Valid && !sameAmount(in.AdminFeeRate, storedRate) {
			return model.Funding{}, status.Error(codes.PermissionDenied, "agents may not change the admin fee rate")
		}
		rate = storedRate
		adminFee = lead.AdminFee
		if rate.Valid && in.FundedAmount.Valid {
			adminFee = decimal.NewNullDecimal(AdminFeeFromRate(in.FundedAmount.Decimal, rate.Decimal))
		}
		if in.AdminFee.Valid && !sameAmount(in.AdminFee, adminFee) && !sameAmount(in.AdminFee, lead.AdminFee) {
			return model.Funding{}, status.Error(codes.PermissionDenied, "agents may not change the admin fee")
		}
	} else {
		rate = in.AdminFeeRate
		if !rate.Valid {
			rate = storedRate
		}
		adminFee = in.AdminFee
		if !adminFee.Valid && rate.Valid && in.FundedAmount.Valid {
			adminFee = decimal.NewNullDecimal(AdminFeeFromRate(in.FundedAmount.Decimal, rate.Decimal))
		}
	}

	ppsrFee := in.PPSRFee
	if in.FundedAmount.Valid {
		if !adminFee.Valid {
			adminFee = zeroAmount
		}
		if !ppsrFee.Valid {
			ppsrFee = zeroAmount
		}
	}

	total := TotalLoanAmount(in.FundedAmount, adminFee, ppsrFee)
	if outOfRange(total) {
		return model.Funding{}, status.Errorf(codes.InvalidArgument, "total loan amount must not exceed %s", maxAmount.StringFixed(2))
	}
	if in.TotalLoanAmount.Valid && !sameAmount(in.TotalLoanAmount, total) {
		if !total.Valid {
			return model.Funding{}, status.Error(codes.InvalidArgument, "total_loan_amount requires funded_amount")
		}
		return model.Funding{}, status.Errorf(codes.InvalidArgument,
			"total_loan_amount %s does not equal funded_amount + admin_fee + ppsr_fee (%s)",
			in.TotalLoanAmount.Decimal.StringFixed(2), total.Decimal.StringFixed(2))
	}

	return model.Funding{
		FundedAmount:         in.FundedAmount,
		AdminFeeRate:         rate,
		AdminFee:             adminFee,
		PPSRFee:              ppsrFee,
		DischargeAmount:      in.DischargeAmount,
		TotalLoanAmount:      total,
		LoanPaymentFrequency: in.LoanPaymentFrequency,
		FirstPaymentDate:     in.FirstPaymentDate,
	}, nil
}

func sameAmount(a, b decimal.NullDecimal) bool {
	if !a.Valid || !b.Valid {
		return a.Valid == b.Valid
	}
	return a.Decimal.Equal(b.Decimal)
}
