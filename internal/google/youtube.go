package google

import (
	"context"
	"fmt"
	"strconv"

	"google.golang.org/api/option"
	"google.golang.org/api/youtubeanalytics/v2"

	"github.com/digitaldrywood/opsboard/internal/apperr"
)

// AnalyticsScopes are requested when authorizing a channel. Revenue metrics
// need the monetary scope.
var AnalyticsScopes = []string{
	youtubeanalytics.YtAnalyticsReadonlyScope,
	youtubeanalytics.YtAnalyticsMonetaryReadonlyScope,
}

// DayMetrics is one day of channel totals as reported by YouTube Analytics.
type DayMetrics struct {
	Date    string
	Views   int64
	Revenue float64
}

// AnalyticsClient reads daily metrics for the channel owning its credentials.
type AnalyticsClient struct {
	service  *youtubeanalytics.Service
	currency string
}

func NewAnalyticsClient(service *youtubeanalytics.Service, currency string) *AnalyticsClient {
	if currency == "" {
		currency = "KRW"
	}
	return &AnalyticsClient{service: service, currency: currency}
}

func OpenAnalytics(ctx context.Context, credentialsJSON []byte, currency string, opts ...option.ClientOption) (*AnalyticsClient, error) {
	creds, err := Credentials(ctx, credentialsJSON, AnalyticsScopes...)
	if err != nil {
		return nil, err
	}

	opts = append([]option.ClientOption{option.WithCredentials(creds)}, opts...)
	service, err := youtubeanalytics.NewService(ctx, opts...)
	if err != nil {
		return nil, apperr.Configuration("unable to create YouTube Analytics client: %v", err)
	}
	return NewAnalyticsClient(service, currency), nil
}

// Day returns views and estimated revenue for date (YYYY-MM-DD). The boolean
// is false when the API has no row for that day yet.
func (c *AnalyticsClient) Day(ctx context.Context, date string) (DayMetrics, bool, error) {
	resp, err := c.service.Reports.Query().
		Ids("channel==MINE").
		StartDate(date).
		EndDate(date).
		Metrics("views,estimatedRevenue").
		Dimensions("day").
		Currency(c.currency).
		Context(ctx).
		Do()
	if err != nil {
		return DayMetrics{}, false, apperr.Upstream(fmt.Sprintf("unable to query analytics for %s", date), err)
	}
	if len(resp.Rows) == 0 {
		return DayMetrics{}, false, nil
	}

	row := resp.Rows[0]
	if len(row) < 3 {
		return DayMetrics{}, false, apperr.Upstream("unexpected analytics row", fmt.Errorf("got %d columns", len(row)))
	}
	views, err := number(row[1])
	if err != nil {
		return DayMetrics{}, false, apperr.Upstream("unexpected views value", err)
	}
	revenue, err := number(row[2])
	if err != nil {
		return DayMetrics{}, false, apperr.Upstream("unexpected revenue value", err)
	}

	return DayMetrics{
		Date:    getStringValue(row, 0),
		Views:   int64(views),
		Revenue: revenue,
	}, true, nil
}

func number(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}
