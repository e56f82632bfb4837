package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement/internal/amqp"
	"settlement/internal/config"
	"settlement/internal/core"
	"settlement/internal/ledger/memory"
	"settlement/internal/log"
)

var msk = time.FixedZone("MSK", 3*60*60)

type sent struct {
	chatID int64
	text   string
}

type recordingSender struct {
	messages []sent
	failOn   map[int]bool // zero-based call index
	calls    int
}

func (r *recordingSender) SendText(_ context.Context, chatID int64, text string) error {
	defer func() { r.calls++ }()
	if r.failOn[r.calls] {
		return errors.New("send failed")
	}
	r.messages = append(r.messages, sent{chatID, text})
	return nil
}

type recordingPublisher struct {
	events []*amqp.ExpenseEventMessage
	err    error
}

func (p *recordingPublisher) PublishExpenseEvent(_ context.Context, msg *amqp.ExpenseEventMessage) error {
	p.events = append(p.events, msg)
	return p.err
}

type fixture struct {
	store     *memory.Store
	sender    *recordingSender
	publisher *recordingPublisher
	svc       *ExpenseService
	now       time.Time
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	f := &fixture{
		store:     memory.New(),
		sender:    &recordingSender{},
		publisher: &recordingPublisher{},
		now:       now,
	}
	// Stored times carry the default +3h shift, so UTC days are MSK days.
	f.svc = NewExpenseService(f.store, f.sender, Options{
		Location:  time.UTC,
		Publisher: f.publisher,
		Logger:    log.New(log.Config{Output: &bytes.Buffer{}}),
		Now:       func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) send(t *testing.T, text string, at time.Time) {
	t.Helper()
	require.NoError(t, f.svc.HandleMessage(context.Background(), InboundMessage{ChatID: 42, Text: text, SentAt: at}))
}

func TestHandleMessage_AmountCreatesExpense(t *testing.T) {
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, now)

	for _, text := range []string{"12.50", "7", "3,25"} {
		f.send(t, text, now)
	}

	require.Equal(t, 3, f.store.Len())
	latest, err := f.store.MostRecent(context.Background())
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("3.25").Equal(latest.Amount))
	assert.Empty(t, latest.Categories)
	assert.True(t, now.Add(3*time.Hour).Equal(latest.OccurredAt))
	assert.Empty(t, f.sender.messages, "recording an expense sends no reply")

	require.Len(t, f.publisher.events, 3)
	assert.Equal(t, amqp.EventRecorded, f.publisher.events[2].Type)
	assert.Equal(t, "3.25", f.publisher.events[2].Amount)
}

func TestHandleMessage_ForwardedTimeWins(t *testing.T) {
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	fwd := now.Add(-48 * time.Hour)

	require.NoError(t, f.svc.HandleMessage(context.Background(), InboundMessage{
		ChatID: 1, Text: "10", SentAt: now, ForwardedAt: &fwd,
	}))
	latest, err := f.store.MostRecent(context.Background())
	require.NoError(t, err)
	assert.True(t, fwd.Add(3*time.Hour).Equal(latest.OccurredAt))
}

func TestHandleMessage_CategoryAttachesToMostRecent(t *testing.T) {
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, now)

	f.send(t, "100", now.Add(-time.Minute))
	f.send(t, "12.50", now)
	f.send(t, "еда", now)

	latest, err := f.store.MostRecent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"еда"}, latest.Categories)
	assert.Equal(t, 2, f.store.Len(), "a label never creates an expense")

	// Same label twice is appended twice.
	f.send(t, "еда", now)
	latest, _ = f.store.MostRecent(context.Background())
	assert.Equal(t, []string{"еда", "еда"}, latest.Categories)

	last := f.publisher.events[len(f.publisher.events)-1]
	assert.Equal(t, amqp.EventCategorized, last.Type)
	assert.Equal(t, []string{"еда", "еда"}, last.Categories)
	assert.Empty(t, f.sender.messages)
}

func TestHandleMessage_CategoryWithoutExpenseIsNoop(t *testing.T) {
	f := newFixture(t, time.Now())

	err := f.svc.HandleMessage(context.Background(), InboundMessage{ChatID: 1, Text: "еда", SentAt: time.Now()})
	require.NoError(t, err)
	assert.Zero(t, f.store.Len())
	assert.Empty(t, f.sender.messages)
	assert.Empty(t, f.publisher.events)
}

func TestHandleMessage_UnrecognizedIsSilent(t *testing.T) {
	f := newFixture(t, time.Now())

	for _, text := range []string{"", "12 руб", "/abc", "hello!", "/-3"} {
		f.send(t, text, time.Now())
	}
	assert.Zero(t, f.store.Len())
	assert.Empty(t, f.sender.messages)
}

func TestHandleMessage_ReportSameDay(t *testing.T) {
	now := time.Date(2025, 5, 10, 20, 0, 0, 0, msk)
	f := newFixture(t, now)
	// Shifted by +3h at record time: 10:00 and 11:00 MSK on the 10th.
	f.send(t, "100", now.Add(-13*time.Hour))
	f.send(t, "50.5", now.Add(-12*time.Hour))

	f.send(t, "/yesterday", now)

	require.Len(t, f.sender.messages, 2)
	assert.Contains(t, f.sender.messages[0].text, "Дата : 2025-05-10")
	assert.Contains(t, f.sender.messages[0].text, "Итого: 150.5 рублей")
	assert.Equal(t, "Итоговая сумма : 150.5 рублей", f.sender.messages[1].text)
	assert.Equal(t, int64(42), f.sender.messages[1].chatID)
}

func TestHandleMessage_ReportEmptyRange(t *testing.T) {
	f := newFixture(t, time.Date(2025, 5, 10, 20, 0, 0, 0, msk))
	f.send(t, "/14", f.now)

	require.Len(t, f.sender.messages, 1)
	assert.Equal(t, "Итоговая сумма : 0 рублей", f.sender.messages[0].text)
}

func TestHandleMessage_ReportDaysMostRecentFirst(t *testing.T) {
	now := time.Date(2025, 5, 10, 20, 0, 0, 0, msk)
	f := newFixture(t, now)
	f.send(t, "1", now.Add(-3*24*time.Hour))
	f.send(t, "2", now.Add(-1*24*time.Hour))
	f.send(t, "3", now.Add(-2*24*time.Hour))

	f.send(t, "/lastweek", now)

	require.Len(t, f.sender.messages, 4)
	assert.Contains(t, f.sender.messages[0].text, "Итого: 2 рублей")
	assert.Contains(t, f.sender.messages[1].text, "Итого: 3 рублей")
	assert.Contains(t, f.sender.messages[2].text, "Итого: 1 рублей")
	assert.Equal(t, "Итоговая сумма : 6 рублей", f.sender.messages[3].text)
}

func TestHandleMessage_SendFailureDoesNotStopReport(t *testing.T) {
	now := time.Date(2025, 5, 10, 20, 0, 0, 0, msk)
	f := newFixture(t, now)
	f.send(t, "1", now.Add(-2*24*time.Hour))
	f.send(t, "2", now.Add(-1*24*time.Hour))
	f.sender.failOn = map[int]bool{0: true}

	f.send(t, "/lastweek", now)

	require.Len(t, f.sender.messages, 2)
	assert.Contains(t, f.sender.messages[0].text, "Итого: 1 рублей")
	assert.Equal(t, "Итоговая сумма : 3 рублей", f.sender.messages[1].text)
}

func TestHandleMessage_SalaryWindow(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, msk)
	f := newFixture(t, now)
	// Sent at 14 Feb 23:30 MSK and 15 Feb 00:30 MSK.
	f.send(t, "5", time.Date(2025, 2, 14, 23, 30, 0, 0, msk))
	f.send(t, "7", time.Date(2025, 2, 15, 0, 30, 0, 0, msk))

	f.send(t, "/salary", now)

	require.Len(t, f.sender.messages, 2)
	assert.Contains(t, f.sender.messages[0].text, "Дата : 2025-02-15")
	assert.Equal(t, "Итоговая сумма : 7 рублей", f.sender.messages[1].text)
}

func TestHandleMessage_PublishFailureIsIgnored(t *testing.T) {
	f := newFixture(t, time.Now())
	f.publisher.err = errors.New("broker down")

	f.send(t, "10", time.Now())
	assert.Equal(t, 1, f.store.Len())
}

type brokenStore struct{ memory.Store }

func (*brokenStore) Insert(context.Context, core.Expense) (int64, error) {
	return 0, errors.New("disk full")
}

func (*brokenStore) MostRecent(context.Context) (core.Expense, error) {
	return core.Expense{}, errors.New("disk gone")
}

func TestHandleMessage_StoreErrorsAreReturned(t *testing.T) {
	svc := NewExpenseService(&brokenStore{}, &recordingSender{}, Options{
		Logger: log.New(log.Config{Output: &bytes.Buffer{}}),
	})
	ctx := context.Background()

	err := svc.HandleMessage(ctx, InboundMessage{Text: "10", SentAt: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert expense")

	err = svc.HandleMessage(ctx, InboundMessage{Text: "еда", SentAt: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load most recent expense")
}

func newServiceFromConfig(t *testing.T, cfg config.Config, now time.Time) (*ExpenseService, *recordingSender, *memory.Store) {
	t.Helper()
	require.NoError(t, cfg.Validate())
	store := memory.New()
	sender := &recordingSender{}
	svc := NewExpenseService(store, sender, Options{
		Location:  cfg.Location(),
		TimeShift: &cfg.TimeShift,
		Payday:    cfg.Payday,
		Logger:    log.New(log.Config{Output: &bytes.Buffer{}}),
		Now:       func() time.Time { return now },
	})
	return svc, sender, store
}

func TestHandleMessage_LateEveningStaysOnSameDay(t *testing.T) {
	sentAt := time.Date(2024, 5, 10, 23, 30, 0, 0, msk)
	now := time.Date(2024, 5, 11, 12, 0, 0, 0, msk)

	moscowNoShift := config.Defaults()
	moscowNoShift.DataBackend = "memory"
	moscowNoShift.Timezone = "Europe/Moscow"
	moscowNoShift.TimeShift = 0

	defaults := config.Defaults()
	defaults.DataBackend = "memory"

	tests := []struct {
		name string
		cfg  config.Config
	}{
		{"defaults", defaults},
		{"moscow without shift", moscowNoShift},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, sender, _ := newServiceFromConfig(t, tt.cfg, now)
			ctx := context.Background()

			require.NoError(t, svc.HandleMessage(ctx, InboundMessage{ChatID: 1, Text: "100", SentAt: sentAt}))
			require.NoError(t, svc.HandleMessage(ctx, InboundMessage{ChatID: 1, Text: "/yesterday", SentAt: now}))

			require.Len(t, sender.messages, 2)
			assert.True(t, strings.HasPrefix(sender.messages[0].text, "Дата : 2024-05-10\n"), sender.messages[0].text)
			assert.Equal(t, "Итоговая сумма : 100 рублей", sender.messages[1].text)
		})
	}
}

func TestNewExpenseService_ZeroShiftIsHonoured(t *testing.T) {
	sentAt := time.Date(2024, 5, 10, 20, 30, 0, 0, time.UTC)
	zero := time.Duration(0)
	store := memory.New()
	svc := NewExpenseService(store, &recordingSender{}, Options{
		Location:  time.UTC,
		TimeShift: &zero,
		Logger:    log.New(log.Config{Output: &bytes.Buffer{}}),
	})

	require.NoError(t, svc.HandleMessage(context.Background(), InboundMessage{Text: "100", SentAt: sentAt}))
	latest, err := store.MostRecent(context.Background())
	require.NoError(t, err)
	assert.True(t, sentAt.Equal(latest.OccurredAt), "stored %v", latest.OccurredAt)
}

func TestNewExpenseServiceDefaults(t *testing.T) {
	svc := NewExpenseService(memory.New(), &recordingSender{}, Options{})
	assert.Equal(t, core.DefaultTimeShift, svc.shift)
	assert.Equal(t, 15, svc.payday)
	assert.NotNil(t, svc.now)
	assert.Nil(t, svc.publisher)
}
