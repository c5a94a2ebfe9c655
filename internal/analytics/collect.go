package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"go.uber.org/multierr"

	"github.com/digitaldrywood/opsboard/internal/google"
	"github.com/digitaldrywood/opsboard/internal/reconcile"
)

// MetricsSource reports one day of metrics for a single channel.
type MetricsSource interface {
	Day(ctx context.Context, date string) (google.DayMetrics, bool, error)
}

// Source is a channel the collector pulls metrics for.
type Source struct {
	ChannelID string
	Name      string
	Metrics   MetricsSource
}

type Outcome string

const (
	Created Outcome = "created"
	Skipped Outcome = "skipped"
	NoData  Outcome = "no_data"
	Failed  Outcome = "failed"
)

type Result struct {
	Channel string  `json:"channel"`
	Outcome Outcome `json:"outcome"`
	Row     Daily   `json:"row"`
	Error   string  `json:"error,omitempty"`
}

// Collector appends one daily row per channel. Rows are keyed on
// (date, channel name), so running it twice for a date appends nothing.
type Collector struct {
	engine  *reconcile.Engine
	sources []Source
	logger  *slog.Logger
}

func NewCollector(engine *reconcile.Engine, sources []Source, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{engine: engine, sources: sources, logger: logger}
}

// Collect processes every source even when some fail. The returned error
// combines the per-channel failures.
func (c *Collector) Collect(ctx context.Context, date string) ([]Result, error) {
	results := make([]Result, 0, len(c.sources))
	var errs error

	for _, src := range c.sources {
		res, err := c.collectOne(ctx, src, date)
		if err != nil {
			res.Outcome = Failed
			res.Error = err.Error()
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", src.Name, err))
			c.logger.Error("collect failed", "channel", src.Name, "date", date, "error", err)
		} else {
			c.logger.Info("collected", "channel", src.Name, "date", date, "outcome", res.Outcome,
				"views", res.Row.Views, "revenue", res.Row.Revenue)
		}
		results = append(results, res)

		if ctx.Err() != nil {
			break
		}
	}
	return results, errs
}

func (c *Collector) collectOne(ctx context.Context, src Source, date string) (Result, error) {
	res := Result{Channel: src.Name}
	key := reconcile.Key{"date": date, "channel": src.Name}

	if _, found, err := c.engine.Find(ctx, DailyTable, key); err != nil {
		return res, err
	} else if found {
		res.Outcome = Skipped
		return res, nil
	}

	m, ok, err := src.Metrics.Day(ctx, date)
	if err != nil {
		return res, err
	}
	if !ok {
		res.Outcome = NoData
		return res, nil
	}

	revenue := int64(math.Round(m.Revenue))
	row := Daily{
		Date:      date,
		ChannelID: src.ChannelID,
		Channel:   src.Name,
		Views:     m.Views,
		Revenue:   revenue,
		RPM:       math.Round(rpm(revenue, m.Views)*10) / 10,
	}

	_, err = c.engine.CreateIfAbsent(ctx, DailyTable, key, map[string]string{
		"channel_id": row.ChannelID,
		"views":      strconv.FormatInt(row.Views, 10),
		"revenue":    strconv.FormatInt(row.Revenue, 10),
		"rpm":        strconv.FormatFloat(row.RPM, 'f', -1, 64),
	})
	if errors.Is(err, reconcile.ErrExists) {
		res.Outcome = Skipped
		return res, nil
	}
	if err != nil {
		return res, err
	}

	res.Outcome = Created
	res.Row = row
	return res, nil
}
