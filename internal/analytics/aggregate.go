package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/sevvalsaygat/qr-menu-sub000/internal/models"
)

// The aggregation layer is pure: every function here works on an order
// snapshot handed in by the caller and touches no store.

// ComputeStats derives the live dashboard counters. Revenue counts only
// orders that were completed and not cancelled afterwards.
func ComputeStats(orders []*models.Order) models.OrderStats {
	var stats models.OrderStats
	for _, order := range orders {
		switch {
		case order.IsCancelled:
			stats.CancelledCount++
		case order.IsCompleted:
			stats.CompletedCount++
			stats.TotalRevenue += order.Summary.Total
		default:
			stats.ActiveCount++
		}
	}
	return stats
}

// Partition splits a snapshot into the two dashboard lists: pending
// (active) orders and completed-not-cancelled orders, keeping the
// snapshot's ordering.
func Partition(orders []*models.Order) (pending, completed []*models.Order) {
	for _, order := range orders {
		switch {
		case order.IsCancelled:
		case order.IsCompleted:
			completed = append(completed, order)
		default:
			pending = append(pending, order)
		}
	}
	return pending, completed
}

// DateGroup is one calendar day's worth of orders.
type DateGroup struct {
	Date   time.Time       `json:"date"`
	Label  string          `json:"label"`
	Orders []*models.Order `json:"orders"`
}

// WeekGroup is one Sunday-to-Saturday week, with its days grouped the same
// way GroupByDate groups them.
type WeekGroup struct {
	Start time.Time   `json:"start"`
	End   time.Time   `json:"end"`
	Label string      `json:"label"`
	Days  []DateGroup `json:"days"`
}

// GroupByDate buckets orders by the local calendar date of creation, in
// now's location. Buckets come back newest-date-first and orders within a
// bucket newest-first.
func GroupByDate(orders []*models.Order, now time.Time) []DateGroup {
	loc := now.Location()
	buckets := make(map[time.Time][]*models.Order)
	for _, order := range orders {
		day := dateOf(order.CreatedAt.In(loc))
		buckets[day] = append(buckets[day], order)
	}

	groups := make([]DateGroup, 0, len(buckets))
	for day, bucket := range buckets {
		sort.Slice(bucket, func(i, j int) bool {
			return bucket[i].CreatedAt.After(bucket[j].CreatedAt)
		})
		groups = append(groups, DateGroup{
			Date:   day,
			Label:  dateLabel(day, now),
			Orders: bucket,
		})
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Date.After(groups[j].Date)
	})
	return groups
}

// GroupByWeek buckets orders into local weeks starting Sunday 00:00:00,
// newest week first.
func GroupByWeek(orders []*models.Order, now time.Time) []WeekGroup {
	loc := now.Location()
	buckets := make(map[time.Time][]*models.Order)
	for _, order := range orders {
		start := weekStart(order.CreatedAt.In(loc))
		buckets[start] = append(buckets[start], order)
	}

	groups := make([]WeekGroup, 0, len(buckets))
	for start, bucket := range buckets {
		end := start.AddDate(0, 0, 6)
		groups = append(groups, WeekGroup{
			Start: start,
			End:   end,
			Label: weekLabel(start, end),
			Days:  GroupByDate(bucket, now),
		})
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Start.After(groups[j].Start)
	})
	return groups
}

// dateOf truncates to midnight of t's calendar date in its location.
func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// weekStart returns the Sunday midnight opening t's week.
func weekStart(t time.Time) time.Time {
	day := dateOf(t)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

func dateLabel(day, now time.Time) string {
	today := dateOf(now)
	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	default:
		return day.Format("Monday, January 2, 2006")
	}
}

// weekLabel renders the week's date span, collapsing to one month name
// when both ends fall in the same month.
func weekLabel(start, end time.Time) string {
	switch {
	case start.Year() != end.Year():
		return fmt.Sprintf("%s - %s", start.Format("January 2, 2006"), end.Format("January 2, 2006"))
	case start.Month() != end.Month():
		return fmt.Sprintf("%s - %s, %d", start.Format("January 2"), end.Format("January 2"), end.Year())
	default:
		return fmt.Sprintf("%s %d - %d, %d", start.Format("January"), start.Day(), end.Day(), end.Year())
	}
}
