package memory

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"settlement/internal/core"
	"settlement/internal/ledger"
)

var _ ledger.Store = (*Store)(nil)

// Store keeps the ledger in process memory.
type Store struct {
	mu     sync.Mutex
	nextID int64
	items  []core.Expense
}

func New() *Store {
	return &Store{nextID: 1}
}

// NewFromFile seeds the store from a file of "<RFC3339 time> <amount>
// [label;label...]" lines. Missing files yield an empty store.
func NewFromFile(path string) (*Store, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	s := New()
	for i, line := range lines {
		e, err := parseSeedLine(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", filepath.Base(path), i+1, err)
		}
		if _, err := s.Insert(context.Background(), e); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", filepath.Base(path), i+1, err)
		}
	}
	return s, nil
}

// Insert stores the expense and assigns the next ID.
func (s *Store) Insert(_ context.Context, e core.Expense) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.nextID
	s.nextID++
	e.Categories = append([]string{}, e.Categories...)
	s.items = append(s.items, e)
	return e.ID, nil
}

func (s *Store) MostRecent(_ context.Context) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return core.Expense{}, core.ErrNoExpenses
	}
	latest := s.items[0]
	for _, e := range s.items[1:] {
		if e.NewerThan(latest) {
			latest = e
		}
	}
	return clone(latest), nil
}

func (s *Store) FindInRange(_ context.Context, start, end time.Time) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Expense
	for _, e := range s.items {
		if e.OccurredAt.Before(start) || e.OccurredAt.After(end) {
			continue
		}
		out = append(out, clone(e))
	}
	return out, nil
}

func (s *Store) AddCategory(_ context.Context, id int64, label string) error {
	if strings.TrimSpace(label) == "" {
		return core.ErrEmptyLabel
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i] = s.items[i].WithCategory(label)
			return nil
		}
	}
	return fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
}

// Len returns the number of stored expenses.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func clone(e core.Expense) core.Expense {
	e.Categories = append([]string{}, e.Categories...)
	return e
}

func parseSeedLine(line string) (core.Expense, error) {
	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 2 {
		return core.Expense{}, fmt.Errorf("expected '<time> <amount> [labels]', got %q", line)
	}
	at, err := time.Parse(time.RFC3339, fields[0])
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse time: %w", err)
	}
	amount, err := core.ParseAmount(fields[1])
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse amount %q: %w", fields[1], err)
	}
	e := core.Expense{Amount: amount, OccurredAt: at, Categories: []string{}}
	if len(fields) == 3 {
		for _, label := range strings.Split(fields[2], ";") {
			if label = strings.TrimSpace(label); label != "" {
				e.Categories = append(e.Categories, label)
			}
		}
	}
	return e, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
