// Package source provides the spreadsheet adapters the engine fetches rows from.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsAdapter fetches ranges through the Google Sheets v4 API.
type SheetsAdapter struct {
	endpoint   string
	httpClient *http.Client
}

// SheetsOption configures a SheetsAdapter.
type SheetsOption func(*SheetsAdapter)

// WithEndpoint points the adapter at another API base URL.
func WithEndpoint(url string) SheetsOption {
	return func(a *SheetsAdapter) { a.endpoint = url }
}

// WithHTTPClient sets the transport used under the OAuth layer.
func WithHTTPClient(c *http.Client) SheetsOption {
	return func(a *SheetsAdapter) { a.httpClient = c }
}

// NewSheetsAdapter creates a Sheets adapter.
func NewSheetsAdapter(opts ...SheetsOption) *SheetsAdapter {
	a := &SheetsAdapter{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *SheetsAdapter) service(ctx context.Context, token string) (*sheets.Service, error) {
	var opts []option.ClientOption
	if a.endpoint != "" {
		opts = append(opts, option.WithEndpoint(a.endpoint))
	}

	switch {
	case token == "":
		opts = append(opts, option.WithoutAuthentication())
		if a.httpClient != nil {
			opts = append(opts, option.WithHTTPClient(a.httpClient))
		}
	case a.httpClient != nil:
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
		opts = append(opts, option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))))
	default:
		opts = append(opts, option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})))
	}

	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return svc, nil
}

// FetchRows implements core.SourceAdapter using formatted cell values.
func (a *SheetsAdapter) FetchRows(ctx context.Context, token, spreadsheetID, rangeSpec string) ([][]string, error) {
	svc, err := a.service(ctx, token)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Spreadsheets.Values.Get(spreadsheetID, rangeSpec).
		ValueRenderOption("FORMATTED_VALUE").
		MajorDimension("ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return nil, describeAPIError(err)
	}

	rows := make([][]string, len(resp.Values))
	for i, vals := range resp.Values {
		row := make([]string, len(vals))
		for j, v := range vals {
			if v != nil {
				row[j] = fmt.Sprint(v)
			}
		}
		rows[i] = row
	}
	return rows, nil
}

// ListSheets returns the sheet titles of a spreadsheet in tab order.
func (a *SheetsAdapter) ListSheets(ctx context.Context, token, spreadsheetID string) ([]string, error) {
	svc, err := a.service(ctx, token)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Spreadsheets.Get(spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return nil, describeAPIError(err)
	}

	titles := make([]string, 0, len(resp.Sheets))
	for _, s := range resp.Sheets {
		if s.Properties != nil {
			titles = append(titles, s.Properties.Title)
		}
	}
	return titles, nil
}

// describeAPIError names the failure class of a Sheets API error.
func describeAPIError(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Code {
	case http.StatusForbidden:
		return fmt.Errorf("permission denied by spreadsheet: %w", err)
	case http.StatusNotFound:
		return fmt.Errorf("spreadsheet not found: %w", err)
	case http.StatusTooManyRequests:
		return fmt.Errorf("sheets quota exceeded: %w", err)
	default:
		return err
	}
}
