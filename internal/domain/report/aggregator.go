// Package report folds committed sessions into teacher payout and client
// billing rollups. It never reads the voucher ledger.
package report

import (
	"math"
	"sort"
	"strings"

	"github.com/garyjia/counsel-settlement/internal/domain/entity"
	"github.com/garyjia/counsel-settlement/internal/domain/period"
)

// Filter restricts which sessions enter a report
type Filter struct {
	Window period.Window
	// Query matches teacher or client names, case-insensitively. Empty matches all.
	Query string
}

// Row is one session with its derived revenue split
type Row struct {
	Session       entity.SessionDetail `json:"session"`
	TotalRevenue  int64                `json:"total_revenue"`
	TeacherPayout int64                `json:"teacher_payout"`
	CenterRevenue int64                `json:"center_revenue"`
	ClientCost    int64                `json:"client_cost"`
}

// Summary totals a set of rows
type Summary struct {
	Count         int   `json:"count"`
	Revenue       int64 `json:"revenue"`
	Support       int64 `json:"support"`
	ClientCost    int64 `json:"client_cost"`
	TeacherPayout int64 `json:"teacher_payout"`
	CenterRevenue int64 `json:"center_revenue"`
}

// TeacherRollup is a teacher's payout for the window
type TeacherRollup struct {
	TeacherID      string  `json:"teacher_id"`
	TeacherName    string  `json:"teacher_name"`
	CommissionRate float64 `json:"commission_rate"`
	Count          int     `json:"count"`
	Revenue        int64   `json:"revenue"`
	Payout         int64   `json:"payout"`
	CenterRevenue  int64   `json:"center_revenue"`
	Rows           []Row   `json:"rows"`
}

// ClientRollup is what a client is billed for the window
type ClientRollup struct {
	ClientID   string `json:"client_id"`
	ClientName string `json:"client_name"`
	Count      int    `json:"count"`
	Billed     int64  `json:"billed"`
	Support    int64  `json:"support"`
	Rows       []Row  `json:"rows"`
}

// Report is the result of Aggregate
type Report struct {
	Window    period.Window   `json:"window"`
	Query     string          `json:"query,omitempty"`
	Summary   Summary         `json:"summary"`
	Rows      []Row           `json:"rows"`
	ByTeacher []TeacherRollup `json:"by_teacher"`
	ByClient  []ClientRollup  `json:"by_client"`
}

// NewRow derives the revenue split of one session. Gross revenue is rebuilt
// from support plus client cost rather than read from TotalFee, because the
// two can diverge for multi-voucher sessions.
func NewRow(s entity.SessionDetail) Row {
	revenue := s.TotalSupport + s.FinalClientCost
	payout := TeacherPayout(revenue, s.CommissionRate)
	return Row{
		Session:       s,
		TotalRevenue:  revenue,
		TeacherPayout: payout,
		CenterRevenue: revenue - payout,
		ClientCost:    s.FinalClientCost,
	}
}

// TeacherPayout is floor(revenue * rate / 100). The rate is applied in whole
// hundredths of a percent so float error never shifts the floor.
func TeacherPayout(revenue int64, commissionRate float64) int64 {
	if revenue <= 0 || commissionRate <= 0 {
		return 0
	}
	basisPoints := int64(math.Round(commissionRate * 100))
	if basisPoints > 10000 {
		basisPoints = 10000
	}
	return revenue * basisPoints / 10000
}

// Aggregate builds the report for the sessions inside the filter's window
func Aggregate(sessions []entity.SessionDetail, f Filter) *Report {
	query := strings.ToLower(strings.TrimSpace(f.Query))

	rep := &Report{Window: f.Window, Query: f.Query, Rows: []Row{}}
	teachers := make(map[string]*TeacherRollup)
	clients := make(map[string]*ClientRollup)

	for _, s := range sessions {
		if !f.Window.Start.IsZero() && !f.Window.Contains(s.Date) {
			continue
		}
		if query != "" && !matches(s, query) {
			continue
		}

		row := NewRow(s)
		rep.Rows = append(rep.Rows, row)

		rep.Summary.Count++
		rep.Summary.Revenue += row.TotalRevenue
		rep.Summary.Support += s.TotalSupport
		rep.Summary.ClientCost += row.ClientCost
		rep.Summary.TeacherPayout += row.TeacherPayout
		rep.Summary.CenterRevenue += row.CenterRevenue

		tr, ok := teachers[s.TeacherID]
		if !ok {
			tr = &TeacherRollup{TeacherID: s.TeacherID, TeacherName: s.TeacherName, CommissionRate: s.CommissionRate}
			teachers[s.TeacherID] = tr
		}
		tr.Count++
		tr.Revenue += row.TotalRevenue
		tr.Payout += row.TeacherPayout
		tr.CenterRevenue += row.CenterRevenue
		tr.Rows = append(tr.Rows, row)

		cr, ok := clients[s.ClientID]
		if !ok {
			cr = &ClientRollup{ClientID: s.ClientID, ClientName: s.ClientName}
			clients[s.ClientID] = cr
		}
		cr.Count++
		cr.Billed += s.FinalClientCost
		cr.Support += s.TotalSupport
		cr.Rows = append(cr.Rows, row)
	}

	sortRows(rep.Rows)

	rep.ByTeacher = make([]TeacherRollup, 0, len(teachers))
	for _, tr := range teachers {
		sortRows(tr.Rows)
		rep.ByTeacher = append(rep.ByTeacher, *tr)
	}
	sort.Slice(rep.ByTeacher, func(i, j int) bool {
		a, b := rep.ByTeacher[i], rep.ByTeacher[j]
		if a.TeacherName != b.TeacherName {
			return a.TeacherName < b.TeacherName
		}
		return a.TeacherID < b.TeacherID
	})

	rep.ByClient = make([]ClientRollup, 0, len(clients))
	for _, cr := range clients {
		sortRows(cr.Rows)
		rep.ByClient = append(rep.ByClient, *cr)
	}
	sort.Slice(rep.ByClient, func(i, j int) bool {
		a, b := rep.ByClient[i], rep.ByClient[j]
		if a.ClientName != b.ClientName {
			return a.ClientName < b.ClientName
		}
		return a.ClientID < b.ClientID
	})

	return rep
}

func matches(s entity.SessionDetail, query string) bool {
	return strings.Contains(strings.ToLower(s.TeacherName), query) ||
		strings.Contains(strings.ToLower(s.ClientName), query)
}

// sortRows orders newest first, then by ID for a stable drill-down
func sortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Session, rows[j].Session
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		return a.ID < b.ID
	})
}
