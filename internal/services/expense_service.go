package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"settlement/internal/amqp"
	"settlement/internal/command"
	"settlement/internal/core"
	"settlement/internal/ledger"
	"settlement/internal/log"
	"settlement/internal/report"
)

// InboundMessage is a text message received from the chat transport.
type InboundMessage struct {
	ChatID      int64
	Text        string
	SentAt      time.Time
	ForwardedAt *time.Time // original send time when the message was forwarded
}

// Publisher receives expense events after each successful write.
type Publisher interface {
	PublishExpenseEvent(ctx context.Context, msg *amqp.ExpenseEventMessage) error
}

// Options tunes an ExpenseService. Zero values fall back to defaults.
type Options struct {
	// Location is the zone stored times are grouped into days in.
	Location *time.Location
	// TimeShift is added to message times on record. nil means
	// core.DefaultTimeShift; a zero shift stores times as sent.
	TimeShift *time.Duration
	Payday    int
	Publisher Publisher
	Logger    *log.Logger
	Now       func() time.Time
}

// ExpenseService classifies incoming messages and dispatches them to the
// ledger and the report builder.
type ExpenseService struct {
	mu        sync.Mutex
	store     ledger.Store
	sender    ledger.Sender
	reports   *report.Builder
	publisher Publisher
	loc       *time.Location
	shift     time.Duration
	payday    int
	now       func() time.Time
	logger    *log.Logger
	events    *log.StructuredLogger
}

func NewExpenseService(store ledger.Store, sender ledger.Sender, opts Options) *ExpenseService {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	shift := core.DefaultTimeShift
	if opts.TimeShift != nil {
		shift = *opts.TimeShift
	}
	if opts.Payday == 0 {
		opts.Payday = command.DefaultPayday
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	logger := opts.Logger.WithComponent(log.ComponentExpense)

	return &ExpenseService{
		store:     store,
		sender:    sender,
		reports:   report.NewBuilder(store, opts.Location),
		publisher: opts.Publisher,
		loc:       opts.Location,
		shift:     shift,
		payday:    opts.Payday,
		now:       opts.Now,
		logger:    logger,
		events:    log.NewStructuredLogger(logger),
	}
}

// HandleMessage processes one inbound message. Messages are handled one at a
// time. Unrecognized text and category labels without any recorded expense
// are ignored without a reply; store failures are returned.
func (s *ExpenseService) HandleMessage(ctx context.Context, msg InboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent := command.Classify(msg.Text)
	switch intent.Kind {
	case command.Amount:
		return s.recordExpense(ctx, msg, intent.Amount)
	case command.Category:
		return s.attachCategory(ctx, msg.ChatID, intent.Label)
	case command.Report:
		return s.sendReport(ctx, msg.ChatID, intent.Window)
	default:
		s.logger.DebugContext(ctx, "Ignoring message",
			log.FieldChatID, msg.ChatID,
			log.FieldIntent, intent.Kind.String(),
			log.FieldReason, intent.Reason)
		return nil
	}
}

func (s *ExpenseService) recordExpense(ctx context.Context, msg InboundMessage, amount decimal.Decimal) error {
	e := core.NewExpense(amount, msg.SentAt, msg.ForwardedAt, s.shift)
	id, err := s.store.Insert(ctx, e)
	if err != nil {
		s.events.LogError(ctx, "Failed to record expense", err, log.OpRecord, log.NewFields().WithChat(msg.ChatID))
		return fmt.Errorf("insert expense: %w", err)
	}
	e.ID = id

	s.events.LogExpenseRecorded(ctx, msg.ChatID, id, core.FormatAmount(amount))
	s.publish(ctx, amqp.EventRecorded, e)
	return nil
}

// attachCategory appends label to the most recent expense.
func (s *ExpenseService) attachCategory(ctx context.Context, chatID int64, label string) error {
	latest, err := s.store.MostRecent(ctx)
	if errors.Is(err, core.ErrNoExpenses) {
		s.logger.WarnContext(ctx, "No expense to attach category to",
			log.FieldChatID, chatID,
			log.FieldCategory, label)
		return nil
	}
	if err != nil {
		s.events.LogError(ctx, "Failed to load most recent expense", err, log.OpAttach, log.NewFields().WithChat(chatID))
		return fmt.Errorf("load most recent expense: %w", err)
	}

	if err := s.store.AddCategory(ctx, latest.ID, label); err != nil {
		s.events.LogError(ctx, "Failed to attach category", err, log.OpAttach, log.NewFields().WithChat(chatID))
		return fmt.Errorf("add category to expense %d: %w", latest.ID, err)
	}

	s.events.LogCategoryAttached(ctx, chatID, latest.ID, label)
	s.publish(ctx, amqp.EventCategorized, latest.WithCategory(label))
	return nil
}

// sendReport sends one message per day in the window, most recent day
// first, followed by the grand total. A failed send does not stop the rest.
func (s *ExpenseService) sendReport(ctx context.Context, chatID int64, window command.Window) error {
	end := s.now()
	start := window.Start(end, s.loc, s.payday)

	summary, err := s.reports.Build(ctx, start, end)
	if err != nil {
		s.events.LogError(ctx, "Failed to build report", err, log.OpReport, log.NewFields().WithChat(chatID))
		return fmt.Errorf("build %s report: %w", window, err)
	}

	for _, text := range report.Messages(summary) {
		if err := s.sender.SendText(ctx, chatID, text); err != nil {
			s.events.LogError(ctx, "Failed to send report message", err, log.OpSend, log.NewFields().WithChat(chatID))
		}
	}

	s.events.LogReportSent(ctx, chatID, window.String(),
		start.In(s.loc).Format(time.RFC3339), end.In(s.loc).Format(time.RFC3339),
		len(summary.Days), summary.Count(), core.FormatAmount(summary.Total))
	return nil
}

func (s *ExpenseService) publish(ctx context.Context, t amqp.EventType, e core.Expense) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishExpenseEvent(ctx, amqp.NewExpenseEventMessage(t, e)); err != nil {
		// The ledger write already succeeded.
		s.logger.ErrorContext(ctx, "Failed to publish expense event",
			log.FieldExpenseID, e.ID,
			"event", string(t),
			log.FieldError, err)
	}
}
