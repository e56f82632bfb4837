package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"settlement/internal/cache"
	"settlement/internal/core"
	ports "settlement/internal/sheets"
)

// fakeSheet serves the subset of the Sheets values API used by Client.
type fakeSheet struct {
	mu          sync.Mutex
	rows        [][]string
	gets        int
	rateLimited int
}

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.rateLimited > 0 {
		f.rateLimited--
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":429,"message":"quota exceeded"}}`)
		return
	}

	_, rng, _ := strings.Cut(r.URL.Path, "/values/")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet:
		f.gets++
		values := make([][]any, len(f.rows))
		for i, row := range f.rows {
			values[i] = []any{row[0]}
		}
		json.NewEncoder(w).Encode(map[string]any{"range": rng, "values": values})

	case r.Method == http.MethodPost && strings.HasSuffix(rng, ":append"):
		var vr gsheet.ValueRange
		json.NewDecoder(r.Body).Decode(&vr)
		f.rows = append(f.rows, toRow(vr.Values[0]))
		n := len(f.rows)
		json.NewEncoder(w).Encode(map[string]any{
			"updates": map[string]any{"updatedRange": fmt.Sprintf("'Expenses'!A%d:D%d", n, n)},
		})

	case r.Method == http.MethodPut:
		var vr gsheet.ValueRange
		json.NewDecoder(r.Body).Decode(&vr)
		row, ok := rowFromRange(rng)
		if !ok || row > len(f.rows) {
			http.Error(w, `{"error":{"code":400,"message":"bad range"}}`, http.StatusBadRequest)
			return
		}
		if strings.Contains(rng, "!D") {
			f.rows[row-1][3] = fmt.Sprint(vr.Values[0][0])
		} else {
			f.rows[row-1] = toRow(vr.Values[0])
		}
		json.NewEncoder(w).Encode(map[string]any{"updatedRange": rng})

	default:
		http.Error(w, "unexpected request", http.StatusNotFound)
	}
}

func toRow(cells []any) []string {
	row := make([]string, 4)
	for i := range row {
		if i < len(cells) {
			row[i] = fmt.Sprint(cells[i])
		}
	}
	return row
}

func newTestClient(t *testing.T, sheet *fakeSheet) *Client {
	t.Helper()
	srv := httptest.NewServer(sheet)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), Config{
		SpreadsheetID: "sheet-id",
		Location:      time.UTC,
		RowCache:      cache.NewLRUCache[int](10, time.Hour),
		RetryDelay:    time.Millisecond,
	}, goption.WithEndpoint(srv.URL+"/"), goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func testExpense(id int64, amount string, cats ...string) core.Expense {
	return core.Expense{
		ID:         id,
		Amount:     decimal.RequireFromString(amount),
		Categories: cats,
		OccurredAt: time.Date(2025, 5, 10, 13, 45, 0, 0, time.UTC),
	}
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil || err.Error() != "missing spreadsheet ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewFromCredentialsFile_Missing(t *testing.T) {
	_, err := NewFromCredentialsFile(context.Background(), Config{SpreadsheetID: "x"}, "/non/existent.json")
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAppendExpense(t *testing.T) {
	sheet := &fakeSheet{rows: [][]string{{"ID", "Date", "Amount", "Categories"}}}
	c := newTestClient(t, sheet)

	ref, err := c.AppendExpense(context.Background(), testExpense(7, "150.5", "еда"))
	if err != nil {
		t.Fatalf("AppendExpense() error = %v", err)
	}
	if ref != "'Expenses'!A2:D2" {
		t.Errorf("ref = %q", ref)
	}
	want := []string{"7", "2025-05-10 13:45", "150.50", "еда"}
	if got := sheet.rows[1]; strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("row = %v, want %v", got, want)
	}
	if row, ok := c.rows.Get("7"); !ok || row != 2 {
		t.Errorf("row cache = %d/%v, want 2", row, ok)
	}
}

func TestAppendExpense_RedeliveryUpdatesRow(t *testing.T) {
	sheet := &fakeSheet{rows: [][]string{{"ID", "Date", "Amount", "Categories"}}}
	c := newTestClient(t, sheet)
	ctx := context.Background()

	if _, err := c.AppendExpense(ctx, testExpense(1, "10")); err != nil {
		t.Fatal(err)
	}
	if _, err := c.AppendExpense(ctx, testExpense(1, "12")); err != nil {
		t.Fatal(err)
	}
	if len(sheet.rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(sheet.rows))
	}
	if sheet.rows[1][2] != "12.00" {
		t.Errorf("amount = %q, want 12.00", sheet.rows[1][2])
	}
}

func TestAppendExpense_Invalid(t *testing.T) {
	c := &Client{}
	_, err := c.AppendExpense(context.Background(), core.Expense{Amount: decimal.NewFromInt(1)})
	if !errors.Is(err, core.ErrZeroTime) {
		t.Errorf("expected ErrZeroTime, got %v", err)
	}
}

func TestUpdateCategories(t *testing.T) {
	sheet := &fakeSheet{rows: [][]string{
		{"ID", "Date", "Amount", "Categories"},
		{"3", "2025-05-09 10:00", "5.00", ""},
		{"4", "2025-05-09 11:00", "6.00", ""},
	}}
	c := newTestClient(t, sheet)
	ctx := context.Background()

	if err := c.UpdateCategories(ctx, 4, []string{"еда", "кафе"}); err != nil {
		t.Fatalf("UpdateCategories() error = %v", err)
	}
	if sheet.rows[2][3] != "еда, кафе" {
		t.Errorf("categories = %q", sheet.rows[2][3])
	}

	// The first lookup cached every ID it saw.
	if err := c.UpdateCategories(ctx, 3, []string{"x"}); err != nil {
		t.Fatal(err)
	}
	if sheet.gets != 1 {
		t.Errorf("ID column read %d times, want 1", sheet.gets)
	}

	err := c.UpdateCategories(ctx, 99, []string{"x"})
	if !errors.Is(err, ports.ErrRowNotFound) {
		t.Errorf("expected ErrRowNotFound, got %v", err)
	}
}

func TestRateLimitIsRetried(t *testing.T) {
	sheet := &fakeSheet{rows: [][]string{{"ID"}}, rateLimited: 2}
	c := newTestClient(t, sheet)

	if _, err := c.AppendExpense(context.Background(), testExpense(1, "1")); err != nil {
		t.Fatalf("AppendExpense() error = %v", err)
	}
	if len(sheet.rows) != 2 {
		t.Errorf("rows = %d, want 2", len(sheet.rows))
	}
}

func TestRateLimitGivesUp(t *testing.T) {
	sheet := &fakeSheet{rows: [][]string{{"ID"}}, rateLimited: 10}
	c := newTestClient(t, sheet)

	if _, err := c.AppendExpense(context.Background(), testExpense(1, "1")); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestRowFromRange(t *testing.T) {
	tests := []struct {
		in   string
		row  int
		isOK bool
	}{
		{"Expenses!A12:D12", 12, true},
		{"'My Sheet'!D3", 3, true},
		{"Expenses", 0, false},
	}
	for _, tt := range tests {
		row, ok := rowFromRange(tt.in)
		if row != tt.row || ok != tt.isOK {
			t.Errorf("rowFromRange(%q) = %d, %v; want %d, %v", tt.in, row, ok, tt.row, tt.isOK)
		}
	}
}
