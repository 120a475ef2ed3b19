package report

import (
	"strconv"
	"time"

	"github.com/shopfront/backend/internal/domain/report"
)

// DashboardRequest is the query string of GET /reports/dashboard. Missing
// bounds default to the last 30 days.
type DashboardRequest struct {
	From        *time.Time `form:"from" time_format:"2006-01-02"`
	To          *time.Time `form:"to" time_format:"2006-01-02"`
	Granularity string     `form:"granularity" binding:"omitempty,oneof=day month"`
	Refresh     bool       `form:"refresh"`
}

// defaultWindow is the range used when the request leaves it open
const defaultWindow = 30 * 24 * time.Hour

// toQuery resolves defaults against now. to is exclusive: a date-only "to"
// covers that whole day.
func (r DashboardRequest) toQuery(now time.Time) report.DashboardQuery {
	q := report.DashboardQuery{Granularity: report.Granularity(r.Granularity)}
	if q.Granularity == "" {
		q.Granularity = report.GranularityDay
	}

	if r.To != nil {
		q.To = r.To.UTC().AddDate(0, 0, 1)
	} else {
		q.To = report.GranularityDay.Next(report.GranularityDay.Truncate(now))
	}
	if r.From != nil {
		q.From = r.From.UTC()
	} else {
		q.From = q.To.Add(-defaultWindow)
	}
	return q
}

// cacheKey identifies a dashboard query in the cache
func cacheKey(q report.DashboardQuery, lowStockThreshold int) string {
	return string(q.Granularity) + ":" +
		q.From.UTC().Format(time.RFC3339) + ":" +
		q.To.UTC().Format(time.RFC3339) + ":" +
		strconv.Itoa(lowStockThreshold)
}
