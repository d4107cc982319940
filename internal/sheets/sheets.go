package sheets

import (
	"context"
	"fmt"
	"os"
	"time"

	"shelfsync/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// CellWrite is one cell mutation destined for a batched write-back.
type CellWrite struct {
	Range string
	Value interface{}
}

// Service wraps the Sheets API for a single spreadsheet and tab.
type Service struct {
	service       *sheets.Service
	spreadsheetID string
	layout        models.Layout
	backoff       RetryPolicy
	logger        zerolog.Logger
}

// NewService authenticates with a service-account credentials file and binds
// to one spreadsheet.
func NewService(ctx context.Context, credentialsFile, spreadsheetID string, layout models.Layout, logger *zerolog.Logger) (*Service, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	return &Service{
		service:       srv,
		spreadsheetID: spreadsheetID,
		layout:        layout,
		backoff:       RetryPolicy{MaxRetries: 4, InitialDelay: time.Second, MaxDelay: 30 * time.Second, BackoffFactor: 2},
		logger:        logger.With().Str("component", "sheets").Logger(),
	}, nil
}

// TestConnection reads a single cell to verify credentials and sharing.
func (s *Service) TestConnection(ctx context.Context) error {
	probe := s.layout.Cell(s.layout.ItemID, 1)
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, probe).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// Layout returns the column layout this service reads and writes.
func (s *Service) Layout() models.Layout {
	return s.layout
}

// ReadAllRows returns every data row in the mapped range, in sheet order.
func (s *Service) ReadAllRows(ctx context.Context) ([][]interface{}, error) {
	var values [][]interface{}
	err := s.withBackoff(ctx, "read rows", func() error {
		resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.layout.DataRange()).Context(ctx).Do()
		if err != nil {
			return err
		}
		values = resp.Values
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return values, nil
}

// BatchWriteCells applies every cell write in a single values.batchUpdate
// call. Cells target disjoint addresses, so intra-batch order is irrelevant.
func (s *Service) BatchWriteCells(ctx context.Context, writes []CellWrite) error {
	if len(writes) == 0 {
		return nil
	}

	data := make([]*sheets.ValueRange, 0, len(writes))
	for _, w := range writes {
		data = append(data, &sheets.ValueRange{
			Range:  w.Range,
			Values: [][]interface{}{{w.Value}},
		})
	}

	req := &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}

	err := s.withBackoff(ctx, "batch write", func() error {
		_, err := s.service.Spreadsheets.Values.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("batch write %d cells: %w", len(writes), err)
	}

	s.logger.Debug().Int("cells", len(writes)).Msg("batch write applied")
	return nil
}

// AppendRows adds rows after the current data block.
func (s *Service) AppendRows(ctx context.Context, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}

	valueRange := &sheets.ValueRange{Values: rows}
	err := s.withBackoff(ctx, "append rows", func() error {
		_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.layout.AppendRange(), valueRange).
			ValueInputOption("RAW").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("append %d rows: %w", len(rows), err)
	}
	return nil
}

func (s *Service) withBackoff(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	attempts := s.backoff.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || attempt == attempts {
			return lastErr
		}

		delay := s.backoff.NextDelay(attempt)
		s.logger.Warn().Err(lastErr).Str("op", op).Dur("delay", delay).Msg("sheets call throttled, backing off")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}
