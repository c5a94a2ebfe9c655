package analytics

import (
	"context"
	"fmt"
	"sort"
)

const (
	recentDays   = 7
	baselineDays = 28
	// dropRatio is the share of the baseline below which a metric warns.
	dropRatio = 0.7
)

type Totals struct {
	Views   int64   `json:"views"`
	Revenue int64   `json:"revenue"`
	RPM     float64 `json:"rpm"`
	Days    int     `json:"days"`
}

func (t *Totals) add(d Daily) {
	t.Views += d.Views
	t.Revenue += d.Revenue
	t.Days++
	t.RPM = rpm(t.Revenue, t.Views)
}

type ChannelTotals struct {
	ChannelID string `json:"channel_id"`
	Channel   string `json:"channel"`
	Totals
}

type MonthTotals struct {
	Month string `json:"month"`
	Totals
}

// Health compares the latest 7 rows with the 28 before them.
type Health struct {
	RPM7         float64  `json:"rpm_7"`
	RPM28        float64  `json:"rpm_28"`
	Revenue7Avg  float64  `json:"revenue_7_avg"`
	Revenue28Avg float64  `json:"revenue_28_avg"`
	Warnings     []string `json:"warnings"`
}

type Summary struct {
	Totals
	Channels []ChannelTotals `json:"channels"`
	Months   []MonthTotals   `json:"months"`
	// Health is nil until there are at least 35 rows.
	Health *Health `json:"health,omitempty"`
}

func (s *Service) Summary(ctx context.Context, q Query) (Summary, error) {
	rows, err := s.Daily(ctx, q)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(rows), nil
}

// Summarize aggregates rows into totals, per channel and per month
// breakdowns and the health check.
func Summarize(rows []Daily) Summary {
	var sum Summary
	channels := make(map[string]*ChannelTotals)
	months := make(map[string]*MonthTotals)
	var channelOrder []string

	for _, d := range rows {
		sum.add(d)

		key := d.ChannelID
		if key == "" {
			key = d.Channel
		}
		c, ok := channels[key]
		if !ok {
			c = &ChannelTotals{ChannelID: d.ChannelID, Channel: d.Channel}
			channels[key] = c
			channelOrder = append(channelOrder, key)
		}
		if c.Channel == "" {
			c.Channel = d.Channel
		}
		c.add(d)

		if len(d.Date) >= 7 {
			month := d.Date[:7]
			m, ok := months[month]
			if !ok {
				m = &MonthTotals{Month: month}
				months[month] = m
			}
			m.add(d)
		}
	}

	sum.Channels = make([]ChannelTotals, 0, len(channelOrder))
	for _, key := range channelOrder {
		sum.Channels = append(sum.Channels, *channels[key])
	}

	sum.Months = make([]MonthTotals, 0, len(months))
	for _, m := range months {
		sum.Months = append(sum.Months, *m)
	}
	sort.Slice(sum.Months, func(i, j int) bool { return sum.Months[i].Month < sum.Months[j].Month })

	sum.Health = health(rows)
	return sum
}

func health(rows []Daily) *Health {
	if len(rows) < recentDays+baselineDays {
		return nil
	}

	sorted := append([]Daily(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date < sorted[j].Date })

	n := len(sorted)
	var recent, baseline Totals
	for _, d := range sorted[n-recentDays:] {
		recent.add(d)
	}
	for _, d := range sorted[n-recentDays-baselineDays : n-recentDays] {
		baseline.add(d)
	}

	h := &Health{
		RPM7:         recent.RPM,
		RPM28:        baseline.RPM,
		Revenue7Avg:  float64(recent.Revenue) / recentDays,
		Revenue28Avg: float64(baseline.Revenue) / baselineDays,
		Warnings:     []string{},
	}
	if h.RPM28 > 0 && h.RPM7 < h.RPM28*dropRatio {
		h.Warnings = append(h.Warnings, fmt.Sprintf(
			"RPM dropped: last 7 days ₩%.1f against ₩%.1f over the previous 28", h.RPM7, h.RPM28))
	}
	if h.Revenue28Avg > 0 && h.Revenue7Avg < h.Revenue28Avg*dropRatio {
		h.Warnings = append(h.Warnings, fmt.Sprintf(
			"revenue dropped: last 7 days ₩%.0f/day against ₩%.0f/day over the previous 28", h.Revenue7Avg, h.Revenue28Avg))
	}
	return h
}

// rpm is revenue per thousand views.
func rpm(revenue, views int64) float64 {
	if views == 0 {
		return 0
	}
	return float64(revenue) * 1000 / float64(views)
}
