package report

import (
	"testing"
	"time"

	"github.com/garyjia/counsel-settlement/internal/domain/entity"
	"github.com/garyjia/counsel-settlement/internal/domain/period"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func detail(id string, date time.Time, teacherID, teacherName string, rate float64, clientID, clientName string, support, clientCost int64) entity.SessionDetail {
	return entity.SessionDetail{
		Session: entity.Session{
			ID:              id,
			Date:            date,
			TeacherID:       teacherID,
			ClientID:        clientID,
			DurationMinutes: 40,
			TotalFee:        support + clientCost,
			TotalSupport:    support,
			FinalClientCost: clientCost,
		},
		TeacherName:    teacherName,
		ClientName:     clientName,
		CommissionRate: rate,
	}
}

func TestNewRow(t *testing.T) {
	row := NewRow(detail("s1", time.Now(), "t1", "Kim", 50, "c1", "Lee", 45000, 5000))

	assert.Equal(t, int64(50000), row.TotalRevenue)
	assert.Equal(t, int64(25000), row.TeacherPayout)
	assert.Equal(t, int64(25000), row.CenterRevenue)
	assert.Equal(t, int64(5000), row.ClientCost)
}

func TestNewRow_UsesSupportPlusClientCostNotTotalFee(t *testing.T) {
	s := detail("s1", time.Now(), "t1", "Kim", 40, "c1", "Lee", 30000, 10000)
	s.TotalFee = 55000

	row := NewRow(s)
	assert.Equal(t, int64(40000), row.TotalRevenue)
	assert.Equal(t, int64(16000), row.TeacherPayout)
}

func TestTeacherPayout(t *testing.T) {
	tests := []struct {
		name    string
		revenue int64
		rate    float64
		want    int64
	}{
		{"half", 50000, 50, 25000},
		{"floors", 55555, 33, 18333},
		{"fractional rate", 50000, 33.3, 16650},
		{"zero rate", 50000, 0, 0},
		{"full rate", 50000, 100, 50000},
		{"rate above 100 capped", 50000, 150, 50000},
		{"zero revenue", 0, 50, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TeacherPayout(tt.revenue, tt.rate))
		})
	}
}

func TestAggregate(t *testing.T) {
	kst := time.FixedZone("KST", 9*60*60)
	march := period.MonthOf(time.Date(2024, 3, 1, 0, 0, 0, 0, kst))

	sessions := []entity.SessionDetail{
		detail("s1", time.Date(2024, 3, 4, 10, 0, 0, 0, kst), "t1", "Kim", 50, "c1", "Lee", 45000, 5000),
		detail("s2", time.Date(2024, 3, 11, 10, 0, 0, 0, kst), "t1", "Kim", 50, "c2", "Park", 0, 55000),
		detail("s3", time.Date(2024, 3, 12, 10, 0, 0, 0, kst), "t2", "Choi", 40, "c1", "Lee", 55000, 0),
		// outside the window
		detail("s4", time.Date(2024, 4, 1, 0, 0, 0, 0, kst), "t1", "Kim", 50, "c1", "Lee", 45000, 5000),
	}

	rep := Aggregate(sessions, Filter{Window: march})

	assert.Equal(t, 3, rep.Summary.Count)
	assert.Equal(t, int64(160000), rep.Summary.Revenue)
	assert.Equal(t, int64(60000), rep.Summary.ClientCost)
	assert.Equal(t, int64(100000), rep.Summary.Support)
	assert.Equal(t, int64(25000+27500+22000), rep.Summary.TeacherPayout)
	assert.Equal(t, rep.Summary.Revenue-rep.Summary.TeacherPayout, rep.Summary.CenterRevenue)

	require.Len(t, rep.Rows, 3)
	assert.Equal(t, "s3", rep.Rows[0].Session.ID, "newest first")

	require.Len(t, rep.ByTeacher, 2)
	assert.Equal(t, "Choi", rep.ByTeacher[0].TeacherName)
	assert.Equal(t, 1, rep.ByTeacher[0].Count)
	assert.Equal(t, int64(22000), rep.ByTeacher[0].Payout)
	assert.Equal(t, "Kim", rep.ByTeacher[1].TeacherName)
	assert.Equal(t, 2, rep.ByTeacher[1].Count)
	assert.Equal(t, int64(105000), rep.ByTeacher[1].Revenue)
	assert.Equal(t, int64(52500), rep.ByTeacher[1].Payout)
	assert.Len(t, rep.ByTeacher[1].Rows, 2)

	require.Len(t, rep.ByClient, 2)
	assert.Equal(t, "Lee", rep.ByClient[0].ClientName)
	assert.Equal(t, 2, rep.ByClient[0].Count)
	assert.Equal(t, int64(5000), rep.ByClient[0].Billed)
	assert.Equal(t, int64(100000), rep.ByClient[0].Support)
	assert.Equal(t, "Park", rep.ByClient[1].ClientName)
	assert.Equal(t, int64(55000), rep.ByClient[1].Billed)
}

func TestAggregate_QueryFilter(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	sessions := []entity.SessionDetail{
		detail("s1", now, "t1", "Kim Minji", 50, "c1", "Lee", 45000, 5000),
		detail("s2", now, "t2", "Choi", 50, "c2", "Park Kim", 0, 55000),
		detail("s3", now, "t2", "Choi", 50, "c3", "Han", 0, 55000),
	}

	rep := Aggregate(sessions, Filter{Window: period.DayOf(now), Query: "  KIM "})
	assert.Equal(t, 2, rep.Summary.Count)

	rep = Aggregate(sessions, Filter{Query: "han"})
	assert.Equal(t, 1, rep.Summary.Count)
	assert.Equal(t, "s3", rep.Rows[0].Session.ID)
}

func TestAggregate_Empty(t *testing.T) {
	rep := Aggregate(nil, Filter{Window: period.WeekOf(time.Now())})
	assert.Equal(t, 0, rep.Summary.Count)
	assert.Empty(t, rep.Rows)
	assert.Empty(t, rep.ByTeacher)
	assert.Empty(t, rep.ByClient)
}
