package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"settlement/internal/cache"
	"settlement/internal/core"
	ports "settlement/internal/sheets"
)

var _ ports.ExpenseMirror = (*Client)(nil)

const (
	defaultSheetName   = "Expenses"
	defaultRowCacheTTL = 24 * time.Hour
	defaultRetryDelay  = 30 * time.Second
	retryAttempts      = 3
	dateLayout         = "2006-01-02 15:04"
)

// Config configures a mirror client.
type Config struct {
	SpreadsheetID string
	SheetName     string
	// Location renders expense timestamps in the sheet.
	Location *time.Location
	// RowCache maps expense IDs to sheet row numbers. Optional.
	RowCache *cache.LRUCache[int]
	// RetryDelay is the base backoff after a 429 response.
	RetryDelay time.Duration
}

// Client mirrors expenses into a Google Sheet with columns
// ID | Date | Amount | Categories.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
	loc           *time.Location
	rows          *cache.LRUCache[int]
	retryDelay    time.Duration
	logger        *slog.Logger
}

// NewFromCredentialsFile creates a client authenticated with a service
// account key file.
func NewFromCredentialsFile(ctx context.Context, cfg Config, credentialsFile string) (*Client, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return New(ctx, cfg,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

// New creates a client with explicit client options.
func New(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	if strings.TrimSpace(cfg.SheetName) == "" {
		cfg.SheetName = defaultSheetName
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.RowCache == nil {
		cfg.RowCache = cache.NewLRUCache[int](1000, defaultRowCacheTTL)
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = defaultRetryDelay
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheet:         cfg.SheetName,
		loc:           cfg.Location,
		rows:          cfg.RowCache,
		retryDelay:    cfg.RetryDelay,
		logger:        slog.Default().With("component", "sheets", "sheet", cfg.SheetName),
	}, nil
}

// AppendExpense implements ports.ExpenseMirror. Redelivered events update
// the existing row instead of adding a duplicate.
func (c *Client) AppendExpense(ctx context.Context, e core.Expense) (string, error) {
	if err := e.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}

	values := &gsheet.ValueRange{Values: [][]any{c.rowValues(e)}}

	row, err := c.findRow(ctx, e.ID)
	switch {
	case err == nil:
		ref := fmt.Sprintf("%s!A%d:D%d", c.a1Sheet(), row, row)
		if err := c.do(ctx, func() error {
			_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, ref, values).
				ValueInputOption("USER_ENTERED").Context(ctx).Do()
			return err
		}); err != nil {
			return "", fmt.Errorf("update row %d in sheet %s: %w", row, c.sheet, err)
		}
		return ref, nil
	case !errors.Is(err, ports.ErrRowNotFound):
		return "", err
	}

	var resp *gsheet.AppendValuesResponse
	if err := c.do(ctx, func() error {
		var err error
		resp, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.a1Sheet()+"!A:D", values).
			ValueInputOption("USER_ENTERED").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).Do()
		return err
	}); err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.sheet, err)
	}

	var ref string
	if resp.Updates != nil {
		ref = resp.Updates.UpdatedRange
		if row, ok := rowFromRange(ref); ok {
			c.rows.Set(rowKey(e.ID), row)
		}
	}
	c.logger.InfoContext(ctx, "Expense appended to sheet", "expense_id", e.ID, "range", ref)
	return ref, nil
}

// UpdateCategories implements ports.ExpenseMirror.
func (c *Client) UpdateCategories(ctx context.Context, id int64, categories []string) error {
	row, err := c.findRow(ctx, id)
	if err != nil {
		return err
	}

	ref := fmt.Sprintf("%s!D%d", c.a1Sheet(), row)
	values := &gsheet.ValueRange{Values: [][]any{{strings.Join(categories, ", ")}}}
	if err := c.do(ctx, func() error {
		_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, ref, values).
			ValueInputOption("RAW").Context(ctx).Do()
		return err
	}); err != nil {
		return fmt.Errorf("update categories at %s: %w", ref, err)
	}
	return nil
}

func (c *Client) rowValues(e core.Expense) []any {
	return []any{
		strconv.FormatInt(e.ID, 10),
		e.OccurredAt.In(c.loc).Format(dateLayout),
		core.FormatAmount(e.Amount),
		strings.Join(e.Categories, ", "),
	}
}

// findRow returns the 1-based sheet row holding expense id. A cache miss
// scans the ID column and refreshes the cache for every row seen.
func (c *Client) findRow(ctx context.Context, id int64) (int, error) {
	key := rowKey(id)
	if row, ok := c.rows.Get(key); ok {
		return row, nil
	}

	var resp *gsheet.ValueRange
	if err := c.do(ctx, func() error {
		var err error
		resp, err = c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.a1Sheet()+"!A:A").Context(ctx).Do()
		return err
	}); err != nil {
		return 0, fmt.Errorf("read ID column of %s: %w", c.sheet, err)
	}

	found := 0
	for i, cells := range resp.Values {
		if len(cells) == 0 {
			continue
		}
		cell := strings.TrimSpace(fmt.Sprint(cells[0]))
		if _, err := strconv.ParseInt(cell, 10, 64); err != nil {
			continue
		}
		c.rows.Set(cell, i+1)
		if cell == key {
			found = i + 1
		}
	}
	if found == 0 {
		return 0, fmt.Errorf("expense %d: %w", id, ports.ErrRowNotFound)
	}
	return found, nil
}

// do runs fn, retrying with backoff while the API rate-limits us.
func (c *Client) do(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
				c.logger.WarnContext(ctx, "rate limited, will retry", "error", err)
				return true
			}
			return false
		}),
		retry.Attempts(retryAttempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

// a1Sheet quotes the sheet name for use in A1 notation.
func (c *Client) a1Sheet() string {
	return "'" + strings.ReplaceAll(c.sheet, "'", "''") + "'"
}

func rowKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

var rangeRowRe = regexp.MustCompile(`![A-Z]+(\d+)`)

// rowFromRange extracts the first row number from an A1 range such as
// "Expenses!A12:D12".
func rowFromRange(ref string) (int, bool) {
	m := rangeRowRe.FindStringSubmatch(ref)
	if m == nil {
		return 0, false
	}
	row, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return row, true
}
