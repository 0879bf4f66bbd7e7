package service

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/teresa-solution/leadforge-service/internal/model"
)

// Report aggregates the actor's company leads created within dr.
func (s *LeadService) Report(ctx context.Context, actor *model.Actor, dr model.DateRange) (*model.Report, error) {
	if actor == nil {
		return nil, errUnauthenticated
	}
	leads, err := s.repo.ListLeadsForReport(ctx, actor.CompanyID, dr)
	if err != nil {
		return nil, internalError(err, "Failed to list leads for report")
	}
	users, err := s.repo.ListUsers(ctx, actor.CompanyID)
	if err != nil {
		return nil, internalError(err, "Failed to list users")
	}
	report := BuildReport(leads, users)
	return &report, nil
}

// BuildReport computes every report section from the same lead set. Officer
// rows cover active users plus anyone still owning one of the leads.
func BuildReport(leads []*model.Lead, users []*model.User) model.Report {
	var stats model.CompanyStats
	fin := model.Financials{TotalFundedVolume: decimal.Zero, TotalRevenue: decimal.Zero}
	funded := make([]model.FundedLead, 0)

	officers := make(map[uuid.UUID]*model.OfficerStats)
	var order []uuid.UUID
	addOfficer := func(id uuid.UUID, name string) *model.OfficerStats {
		if o, ok := officers[id]; ok {
			return o
		}
		o := &model.OfficerStats{UserID: id, Name: name}
		officers[id] = o
		order = append(order, id)
		return o
	}
	names := make(map[uuid.UUID]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
		if u.Active {
			addOfficer(u.ID, u.Name)
		}
	}

	var orphans []uuid.UUID
	for _, lead := range leads {
		stats.Total++
		countStatus(&stats, lead.Status)

		if lead.Status == model.StatusFunded {
			fin.FundedCount++
			fin.TotalFundedVolume = fin.TotalFundedVolume.Add(amount(lead.FundedAmount))
			fin.TotalRevenue = fin.TotalRevenue.Add(amount(lead.AdminFee)).Add(amount(lead.PPSRFee))
			funded = append(funded, model.FundedLead{
				ID:              lead.ID,
				FirstName:       lead.FirstName,
				LastName:        lead.LastName,
				OwnerID:         lead.CurrentOwnerID,
				FundedAmount:    lead.FundedAmount,
				AdminFee:        lead.AdminFee,
				PPSRFee:         lead.PPSRFee,
				TotalLoanAmount: lead.TotalLoanAmount,
				CreatedAt:       lead.CreatedAt,
			})
		}

		if lead.CurrentOwnerID == nil {
			continue
		}
		o, ok := officers[*lead.CurrentOwnerID]
		if !ok {
			orphans = append(orphans, *lead.CurrentOwnerID)
			o = addOfficer(*lead.CurrentOwnerID, names[*lead.CurrentOwnerID])
		}
		o.Assigned++
		switch lead.Status {
		case model.StatusQualified:
			o.Approved++
		case model.StatusFunded:
			o.Funded++
		case model.StatusDeclined:
			o.Declined++
		case model.StatusUnqualified:
			o.Unqualified++
		}
	}
	stats.ConversionRate = percent(stats.Funded, stats.Total)

	sort.SliceStable(funded, func(i, j int) bool { return funded[i].CreatedAt.After(funded[j].CreatedAt) })

	// Inactive owners go after the active roster in a stable order.
	active := len(order) - len(orphans)
	tail := order[active:]
	sort.Slice(tail, func(i, j int) bool { return tail[i].String() < tail[j].String() })

	rows := make([]model.OfficerStats, 0, len(order))
	for _, id := range order {
		o := officers[id]
		o.SuccessRate = percent(o.Funded, o.Assigned)
		rows = append(rows, *o)
	}

	return model.Report{
		CompanyStats: stats,
		OfficerStats: rows,
		Financials:   fin,
		FundedLeads:  funded,
	}
}

func countStatus(stats *model.CompanyStats, st model.LeadStatus) {
	switch st {
	case model.StatusUnassigned:
		stats.Unassigned++
	case model.StatusAttemptedToContact:
		stats.AttemptedToContact++
	case model.StatusConnected:
		stats.Connected++
	case model.StatusQualified:
		stats.Qualified++
	case model.StatusUnqualified:
		stats.Unqualified++
	case model.StatusDeclined:
		stats.Declined++
	case model.StatusFunded:
		stats.Funded++
	}
}

// percent formats n/d as a percentage with one decimal, "0.0" when d is zero.
func percent(n, d int) string {
	if d == 0 {
		return "0.0"
	}
	return decimal.NewFromInt(int64(n)).Mul(hundred).Div(decimal.NewFromInt(int64(d))).StringFixed(1)
}

func amount(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal
}
