package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
	"google.golang.org/api/youtubeanalytics/v2"

	"github.com/digitaldrywood/opsboard/internal/apperr"
	"github.com/digitaldrywood/opsboard/internal/sheet"
)

func testOptions(t *testing.T, handler http.HandlerFunc) []option.ClientOption {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return []option.ClientOption{
		option.WithEndpoint(srv.URL + "/"),
		option.WithHTTPClient(srv.Client()),
	}
}

func newSheetsClient(t *testing.T, handler http.HandlerFunc) *SheetsClient {
	t.Helper()
	service, err := sheets.NewService(context.Background(), testOptions(t, handler)...)
	require.NoError(t, err)
	return NewSheetsClient(service, "sheet-id")
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func TestReadRangeConvertsCells(t *testing.T) {
	client := newSheetsClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.True(t, strings.HasPrefix(r.URL.Path, "/v4/spreadsheets/sheet-id/values/"), r.URL.Path)
		writeJSON(w, http.StatusOK, `{"values": [["date", "views"], ["2024-06-01", 1234], []]}`)
	})

	rows, err := client.ReadRange(context.Background(), "'일별데이터'!A:F")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"date", "views"}, {"2024-06-01", "1234"}, {}}, rows)
}

func TestReadRangeMissingSheetIsEmpty(t *testing.T) {
	client := newSheetsClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"error": {"code": 400, "message": "Unable to parse range: '루틴기록'!A:D", "status": "INVALID_ARGUMENT"}}`)
	})

	rows, err := client.ReadRange(context.Background(), "'루틴기록'!A:D")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReadRangeUpstreamFailure(t *testing.T) {
	client := newSheetsClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, `{"error": {"code": 403, "message": "The caller does not have permission", "status": "PERMISSION_DENIED"}}`)
	})

	_, err := client.ReadRange(context.Background(), "'할일'!A:O")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
	assert.Equal(t, http.StatusInternalServerError, apperr.HTTPStatus(err))
}

func TestAppendRowUsesRawInsert(t *testing.T) {
	var body sheets.ValueRange
	client := newSheetsClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, ":append"), r.URL.Path)
		assert.Equal(t, "RAW", r.URL.Query().Get("valueInputOption"))
		assert.Equal(t, "INSERT_ROWS", r.URL.Query().Get("insertDataOption"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, http.StatusOK, `{}`)
	})

	err := client.AppendRow(context.Background(), "'할일'!A:O", []string{"T1", "", "=SUM(A1)"})
	require.NoError(t, err)
	require.Len(t, body.Values, 1)
	assert.Equal(t, []interface{}{"T1", "", "=SUM(A1)"}, body.Values[0])
}

func TestUpdateCellsSendsOneBatch(t *testing.T) {
	calls := 0
	var req sheets.BatchUpdateValuesRequest
	client := newSheetsClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.True(t, strings.HasSuffix(r.URL.Path, "/values:batchUpdate"), r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeJSON(w, http.StatusOK, `{}`)
	})

	err := client.UpdateCells(context.Background(), []sheet.CellUpdate{
		{Range: "'할일'!F3", Value: "DONE"},
		{Range: "'할일'!N3", Value: "2024-06-01T10:00:00.000Z"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "RAW", req.ValueInputOption)
	require.Len(t, req.Data, 2)
	assert.Equal(t, "'할일'!F3", req.Data[0].Range)
	assert.Equal(t, [][]interface{}{{"DONE"}}, req.Data[0].Values)

	require.NoError(t, client.UpdateCells(context.Background(), nil))
	assert.Equal(t, 1, calls, "an empty batch is not sent")
}

func TestOpenSheetsRequiresConfiguration(t *testing.T) {
	ctx := context.Background()

	_, err := OpenSheets(ctx, "", []byte(`{}`))
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))

	_, err = OpenSheets(ctx, "sheet-id", nil)
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))

	_, err = OpenSheets(ctx, "sheet-id", []byte("not json"))
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
}

func TestCredentialsAcceptsLegacyTokenFile(t *testing.T) {
	legacy := []byte(`{
		"token": "ya29.stale",
		"refresh_token": "1//refresh",
		"token_uri": "https://oauth2.googleapis.com/token",
		"client_id": "client.apps.googleusercontent.com",
		"client_secret": "secret",
		"scopes": ["https://www.googleapis.com/auth/yt-analytics.readonly"]
	}`)

	normalized, err := normalizeCredentials(legacy)
	require.NoError(t, err)
	var got authorizedUser
	require.NoError(t, json.Unmarshal(normalized, &got))
	assert.Equal(t, authorizedUser{
		Type:         "authorized_user",
		ClientID:     "client.apps.googleusercontent.com",
		ClientSecret: "secret",
		RefreshToken: "1//refresh",
	}, got)

	creds, err := Credentials(context.Background(), legacy, AnalyticsScopes...)
	require.NoError(t, err)
	assert.NotNil(t, creds.TokenSource)
}

func TestCallbackHandlerChecksState(t *testing.T) {
	codes := make(chan string, 1)
	h := callbackHandler("expected", codes)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=other&code=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, codes)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=expected", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=expected&code=abc", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", <-codes)
}

func TestAnalyticsDay(t *testing.T) {
	opts := testOptions(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "channel==MINE", q.Get("ids"))
		assert.Equal(t, "KRW", q.Get("currency"))
		assert.Equal(t, "views,estimatedRevenue", q.Get("metrics"))
		if q.Get("startDate") == "2024-06-02" {
			writeJSON(w, http.StatusOK, `{"rows": []}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"rows": [["2024-06-01", 15000, 23456.7]]}`)
	})
	service, err := youtubeanalytics.NewService(context.Background(), opts...)
	require.NoError(t, err)
	client := NewAnalyticsClient(service, "")

	day, ok, err := client.Day(context.Background(), "2024-06-01")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, DayMetrics{Date: "2024-06-01", Views: 15000, Revenue: 23456.7}, day)

	_, ok, err = client.Day(context.Background(), "2024-06-02")
	require.NoError(t, err)
	assert.False(t, ok)
}
