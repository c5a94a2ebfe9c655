// Package analytics reads the daily channel metrics and the channel registry,
// and keeps the daily sheet filled: nightly collection from YouTube Analytics
// and backfill of missing channel ids.
package analytics

import (
	"context"
	"strconv"
	"strings"

	"github.com/digitaldrywood/opsboard/internal/apperr"
	"github.com/digitaldrywood/opsboard/internal/reconcile"
	"github.com/digitaldrywood/opsboard/internal/sheet"
)

const (
	DailySheet   = "일별데이터"
	ChannelSheet = "채널관리"
)

// DailyTable has free-form header text, so columns are positional.
var DailyTable = sheet.Table{
	Name:       DailySheet,
	Columns:    []string{"date", "channel_id", "channel", "views", "revenue", "rpm"},
	Key:        []string{"date", "channel"},
	Positional: true,
	HeaderText: []string{"날짜", "channel_id", "채널명", "조회수", "수익", "RPM"},
}

var ChannelTable = sheet.Table{
	Name: ChannelSheet,
	Columns: []string{
		"channel_id", "name", "topic", "status", "email", "source", "strategy", "owner", "memo",
	},
	Key:        []string{"channel_id"},
	Positional: true,
}

type Daily struct {
	Date      string  `json:"date"`
	ChannelID string  `json:"channel_id"`
	Channel   string  `json:"channel"`
	Views     int64   `json:"views"`
	Revenue   int64   `json:"revenue"`
	RPM       float64 `json:"rpm"`
}

func dailyFrom(rec sheet.Record) Daily {
	return Daily{
		Date:      strings.TrimSpace(rec.Get("date")),
		ChannelID: strings.TrimSpace(rec.Get("channel_id")),
		Channel:   strings.TrimSpace(rec.Get("channel")),
		Views:     parseInt(rec.Get("views")),
		Revenue:   parseInt(rec.Get("revenue")),
		RPM:       parseFloat(rec.Get("rpm")),
	}
}

type Channel struct {
	ChannelID string `json:"channel_id"`
	Name      string `json:"name"`
	Topic     string `json:"topic"`
	Status    string `json:"status"`
	Email     string `json:"email"`
	Source    string `json:"source"`
	Strategy  string `json:"strategy"`
	Owner     string `json:"owner"`
	Memo      string `json:"memo"`
}

func channelFrom(rec sheet.Record) Channel {
	return Channel{
		ChannelID: strings.TrimSpace(rec.Get("channel_id")),
		Name:      strings.TrimSpace(rec.Get("name")),
		Topic:     strings.TrimSpace(rec.Get("topic")),
		Status:    rec.Get("status"),
		Email:     rec.Get("email"),
		Source:    rec.Get("source"),
		Strategy:  rec.Get("strategy"),
		Owner:     rec.Get("owner"),
		Memo:      rec.Get("memo"),
	}
}

// Query narrows daily rows. Dates are inclusive YYYY-MM-DD bounds; Channel
// matches either the channel id or the channel name.
type Query struct {
	From    string
	To      string
	Channel string
}

func (q Query) match(d Daily) bool {
	if q.From != "" && d.Date < q.From {
		return false
	}
	if q.To != "" && d.Date > q.To {
		return false
	}
	if q.Channel != "" && d.ChannelID != q.Channel && d.Channel != q.Channel {
		return false
	}
	return true
}

type Service struct {
	engine *reconcile.Engine
}

func NewService(engine *reconcile.Engine) *Service {
	return &Service{engine: engine}
}

// Daily returns dated rows matching q, in sheet order.
func (s *Service) Daily(ctx context.Context, q Query) ([]Daily, error) {
	records, err := s.engine.List(ctx, DailyTable)
	if err != nil {
		return nil, err
	}

	rows := make([]Daily, 0, len(records))
	for _, rec := range records {
		d := dailyFrom(rec)
		if d.Date == "" || !q.match(d) {
			continue
		}
		rows = append(rows, d)
	}
	return rows, nil
}

// Channels returns registry rows that carry an id or a name.
func (s *Service) Channels(ctx context.Context) ([]Channel, error) {
	records, err := s.engine.List(ctx, ChannelTable)
	if err != nil {
		return nil, err
	}

	channels := make([]Channel, 0, len(records))
	for _, rec := range records {
		c := channelFrom(rec)
		if c.ChannelID == "" && c.Name == "" {
			continue
		}
		channels = append(channels, c)
	}
	return channels, nil
}

// Backfill fills empty channel_id cells of daily rows from the registry's
// name to id mapping and returns the number of rows updated. All cells are
// written in one batch.
func (s *Service) Backfill(ctx context.Context) (int, error) {
	records, err := s.engine.List(ctx, DailyTable)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	ids, err := s.nameToID(ctx)
	if err != nil {
		return 0, err
	}

	var patches []reconcile.RowPatch
	for _, rec := range records {
		d := dailyFrom(rec)
		if d.Date == "" || d.ChannelID != "" || d.Channel == "" {
			continue
		}
		id, ok := ids[d.Channel]
		if !ok {
			continue
		}
		patches = append(patches, reconcile.RowPatch{
			Record: rec,
			Fields: map[string]string{"channel_id": id},
		})
	}
	return s.engine.UpdateRows(ctx, DailyTable, patches)
}

func (s *Service) nameToID(ctx context.Context) (map[string]string, error) {
	channels, err := s.Channels(ctx)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]string, len(channels))
	for _, c := range channels {
		if c.ChannelID != "" && c.Name != "" {
			ids[c.Name] = c.ChannelID
		}
	}
	if len(ids) == 0 {
		return nil, apperr.Configuration("%s has no channel name/id pairs", ChannelSheet)
	}
	return ids, nil
}

// parseInt reads a count cell. Grouping commas are ignored and fractions are
// truncated; unreadable cells count as zero.
func parseInt(s string) int64 {
	return int64(parseFloat(s))
}

func parseFloat(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	s = strings.TrimPrefix(s, "₩")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
