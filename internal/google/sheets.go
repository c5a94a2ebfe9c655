package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/digitaldrywood/opsboard/internal/apperr"
	"github.com/digitaldrywood/opsboard/internal/sheet"
)

const (
	valueInputRaw = "RAW"
	insertRows    = "INSERT_ROWS"
)

// SheetsClient is the Sheets v4 implementation of sheet.Store.
type SheetsClient struct {
	service       *sheets.Service
	spreadsheetID string
}

var _ sheet.Store = (*SheetsClient)(nil)

func NewSheetsClient(service *sheets.Service, spreadsheetID string) *SheetsClient {
	return &SheetsClient{
		service:       service,
		spreadsheetID: spreadsheetID,
	}
}

// OpenSheets builds a SheetsClient from a credential payload. Both service
// account keys and authorized_user tokens are accepted.
func OpenSheets(ctx context.Context, spreadsheetID string, credentialsJSON []byte, opts ...option.ClientOption) (*SheetsClient, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, apperr.Configuration("spreadsheet id is not configured")
	}

	creds, err := Credentials(ctx, credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, err
	}

	opts = append([]option.ClientOption{option.WithCredentials(creds)}, opts...)
	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, apperr.Configuration("unable to create Sheets client: %v", err)
	}
	return NewSheetsClient(service, spreadsheetID), nil
}

func (s *SheetsClient) ReadRange(ctx context.Context, rangeSpec string) ([][]string, error) {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, rangeSpec).Context(ctx).Do()
	if err != nil {
		if isMissingRange(err) {
			return nil, nil
		}
		return nil, apperr.Upstream(fmt.Sprintf("unable to read %s", rangeSpec), err)
	}

	rows := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j := range row {
			cells[j] = getStringValue(row, j)
		}
		rows[i] = cells
	}
	return rows, nil
}

func (s *SheetsClient) AppendRow(ctx context.Context, rangeSpec string, row []string) error {
	values := make([]interface{}, len(row))
	for i, v := range row {
		values[i] = v
	}

	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{values},
	}

	_, err := s.service.Spreadsheets.Values.Append(
		s.spreadsheetID,
		rangeSpec,
		valueRange,
	).ValueInputOption(valueInputRaw).InsertDataOption(insertRows).Context(ctx).Do()
	if err != nil {
		return apperr.Upstream(fmt.Sprintf("unable to append to %s", rangeSpec), err)
	}
	return nil
}

func (s *SheetsClient) UpdateCells(ctx context.Context, updates []sheet.CellUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	data := make([]*sheets.ValueRange, len(updates))
	for i, u := range updates {
		data[i] = &sheets.ValueRange{
			Range:  u.Range,
			Values: [][]interface{}{{u.Value}},
		}
	}

	req := &sheets.BatchUpdateValuesRequest{
		ValueInputOption: valueInputRaw,
		Data:             data,
	}
	_, err := s.service.Spreadsheets.Values.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return apperr.Upstream(fmt.Sprintf("unable to update %d cells", len(updates)), err)
	}
	return nil
}

// Title returns the spreadsheet's title. Used to verify access.
func (s *SheetsClient) Title(ctx context.Context) (string, error) {
	spreadsheet, err := s.service.Spreadsheets.Get(s.spreadsheetID).Fields("properties/title").Context(ctx).Do()
	if err != nil {
		return "", apperr.Upstream("unable to access spreadsheet", err)
	}
	return spreadsheet.Properties.Title, nil
}

// isMissingRange reports the 400 Sheets returns for a sheet that does not
// exist yet.
func isMissingRange(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	return gerr.Code == http.StatusBadRequest && strings.Contains(gerr.Message, "Unable to parse range")
}

func getStringValue(row []interface{}, index int) string {
	if len(row) <= index || row[index] == nil {
		return ""
	}
	if val, ok := row[index].(string); ok {
		return val
	}
	return fmt.Sprint(row[index])
}
