package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teresa-solution/leadforge-service/internal/model"
	"google.golang.org/grpc/codes"
)

func TestReport_CompanyTotals(t *testing.T) {
	f, teardown := setupTestService(t)
	defer teardown()
	ctx := context.Background()

	owner := f.agent.ID
	funded := []struct{ amount, fee string }{{"10000", "100"}, {"20000", "200"}, {"30000", "300"}}
	for i, fl := range funded {
		fl := fl
		day := i + 1
		f.seedLead(t, func(l *model.Lead) {
			l.Status = model.StatusFunded
			l.CurrentOwnerID = &owner
			l.FundedAmount = money(fl.amount)
			l.AdminFee = money(fl.fee)
			l.PPSRFee = money("50")
			l.TotalLoanAmount = TotalLoanAmount(l.FundedAmount, l.AdminFee, l.PPSRFee)
			l.CreatedAt = time.Date(2026, 3, day, 12, 0, 0, 0, time.UTC)
		})
	}
	others := []model.LeadStatus{
		model.StatusUnassigned, model.StatusUnassigned, model.StatusConnected, model.StatusQualified,
		model.StatusDeclined, model.StatusUnqualified, model.StatusAttemptedToContact,
	}
	for _, st := range others {
		st := st
		f.seedLead(t, func(l *model.Lead) { l.Status = st })
	}

	report, err := f.svc.Report(ctx, f.actor(f.admin), model.DateRange{})
	require.NoError(t, err)

	assert.Equal(t, 10, report.CompanyStats.Total)
	assert.Equal(t, 3, report.CompanyStats.Funded)
	assert.Equal(t, 2, report.CompanyStats.Unassigned)
	assert.Equal(t, 1, report.CompanyStats.Qualified)
	assert.Equal(t, "30.0", report.CompanyStats.ConversionRate)

	assert.Equal(t, "60000", report.Financials.TotalFundedVolume.String())
	assert.Equal(t, "750", report.Financials.TotalRevenue.String())
	assert.Equal(t, 3, report.Financials.FundedCount)

	require.Len(t, report.FundedLeads, 3)
	assert.Equal(t, "30000.00", fixed(report.FundedLeads[0].FundedAmount))
	assert.Equal(t, "10000.00", fixed(report.FundedLeads[2].FundedAmount))
}

func TestReport_OfficerStats(t *testing.T) {
	f, teardown := setupTestService(t)
	defer teardown()
	ctx := context.Background()

	agent := f.agent.ID
	retired := &model.User{CompanyID: f.company.ID, Name: "Retired Rita", Role: model.RoleAgent, Active: false}
	f.repo.PutUser(retired)

	for _, st := range []model.LeadStatus{model.StatusFunded, model.StatusQualified, model.StatusDeclined} {
		st := st
		f.seedLead(t, func(l *model.Lead) {
			l.Status = st
			l.CurrentOwnerID = &agent
		})
	}
	f.seedLead(t, func(l *model.Lead) {
		l.Status = model.StatusConnected
		l.CurrentOwnerID = &retired.ID
	})

	report, err := f.svc.Report(ctx, f.actor(f.admin), model.DateRange{})
	require.NoError(t, err)

	byID := make(map[string]model.OfficerStats)
	for _, o := range report.OfficerStats {
		byID[o.UserID.String()] = o
	}
	require.Len(t, byID, 3)

	a := byID[f.agent.ID.String()]
	assert.Equal(t, 3, a.Assigned)
	assert.Equal(t, 1, a.Approved)
	assert.Equal(t, 1, a.Funded)
	assert.Equal(t, 1, a.Declined)
	assert.Equal(t, "33.3", a.SuccessRate)

	admin := byID[f.admin.ID.String()]
	assert.Equal(t, 0, admin.Assigned)
	assert.Equal(t, "0.0", admin.SuccessRate)

	r := byID[retired.ID.String()]
	assert.Equal(t, "Retired Rita", r.Name)
	assert.Equal(t, 1, r.Assigned)
	assert.Equal(t, report.OfficerStats[2].UserID, retired.ID)
}

func TestReport_DateRangeAppliesToEverySection(t *testing.T) {
	f, teardown := setupTestService(t)
	defer teardown()
	ctx := context.Background()

	owner := f.agent.ID
	march := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	may := time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC)
	for _, created := range []time.Time{march, may} {
		created := created
		f.seedLead(t, func(l *model.Lead) {
			l.Status = model.StatusFunded
			l.CurrentOwnerID = &owner
			l.FundedAmount = money("1000")
			l.CreatedAt = created
		})
	}

	from := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	report, err := f.svc.Report(ctx, f.actor(f.admin), model.DateRange{From: &from})
	require.NoError(t, err)
	assert.Equal(t, 1, report.CompanyStats.Total)
	assert.Equal(t, 1, report.Financials.FundedCount)
	assert.Equal(t, "1000", report.Financials.TotalFundedVolume.String())
	assert.Len(t, report.FundedLeads, 1)
	for _, o := range report.OfficerStats {
		if o.UserID == owner {
			assert.Equal(t, 1, o.Assigned)
		}
	}
}

func TestReport_EmptyCompany(t *testing.T) {
	report := BuildReport(nil, nil)
	assert.Equal(t, 0, report.CompanyStats.Total)
	assert.Equal(t, "0.0", report.CompanyStats.ConversionRate)
	assert.Equal(t, "0", report.Financials.TotalRevenue.String())
	assert.NotNil(t, report.OfficerStats)
	assert.NotNil(t, report.FundedLeads)
}

func TestReport_Unauthenticated(t *testing.T) {
	f, teardown := setupTestService(t)
	defer teardown()

	_, err := f.svc.Report(context.Background(), nil, model.DateRange{})
	assertCode(t, err, codes.Unauthenticated)
}
