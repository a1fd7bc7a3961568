package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// SheetsConfig configures the spreadsheet mirror. Credentials resolve in
// order: inline JSON, credentials file, GOOGLE_APPLICATION_CREDENTIALS.
type SheetsConfig struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// SheetsMirror appends transaction rows to a Google Sheets worksheet.
type SheetsMirror struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
}

var _ Mirror = (*SheetsMirror)(nil)

func NewSheetsMirror(ctx context.Context, cfg SheetsConfig) (*SheetsMirror, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheet := strings.TrimSpace(cfg.SheetName)
	if sheet == "" {
		sheet = "Transactions"
	}

	creds, err := resolveCredentials(cfg)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &SheetsMirror{svc: svc, spreadsheetID: cfg.SpreadsheetID, sheet: sheet}, nil
}

func resolveCredentials(cfg SheetsConfig) ([]byte, error) {
	if json := strings.TrimSpace(cfg.CredentialsJSON); json != "" {
		return []byte(json), nil
	}
	file := strings.TrimSpace(cfg.CredentialsFile)
	if file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if file == "" {
		return nil, errors.New("missing service account credentials")
	}
	creds, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return creds, nil
}

// Append writes the row below the last populated row of the sheet.
func (m *SheetsMirror) Append(ctx context.Context, row MirrorRow) error {
	rng := fmt.Sprintf("%s!A:H", m.sheet)
	vr := &gsheet.ValueRange{Values: [][]any{{
		row.ID, row.Date, row.Kind, row.Amount,
		row.DebitName, row.CreditName, row.Narration, row.Reference,
	}}}

	_, err := m.svc.Spreadsheets.Values.Append(m.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append to sheet %s: %w", m.sheet, err)
	}
	return nil
}
