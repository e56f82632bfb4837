package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldUpdateID   = "update_id"
	FieldChatID     = "chat_id"
	FieldIntent     = "intent"
	FieldReason     = "reason"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldExpenseID  = "expense_id"
	FieldAmount     = "amount"
	FieldCategory   = "category"
	FieldWindow     = "window"
	FieldRangeStart = "range_start"
	FieldRangeEnd   = "range_end"
	FieldDays       = "days"
	FieldCount      = "count"
	FieldTotal      = "total"
	FieldDuration   = "duration_ms"
	FieldSheetsRef  = "sheets_ref"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentBot     = "telegram"
	ComponentExpense = "expense"
	ComponentReport  = "report"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentSheets  = "sheets"
	ComponentCache   = "cache"
	ComponentBackend = "backend"
	ComponentConfig  = "config"
)

// Operations defines standard operation names
const (
	OpClassify = "classify"
	OpRecord   = "record"
	OpAttach   = "attach_category"
	OpReport   = "report"
	OpSend     = "send"
	OpPublish  = "publish"
	OpSync     = "sync"
	OpValidate = "validate"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithChat adds the chat the message came from
func (f LogFields) WithChat(chatID int64) LogFields {
	f[FieldChatID] = chatID
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithExpense adds expense-related fields
func (f LogFields) WithExpense(id int64, amount string) LogFields {
	f[FieldExpenseID] = id
	f[FieldAmount] = amount
	return f
}

// WithRange adds report window fields
func (f LogFields) WithRange(window, start, end string) LogFields {
	f[FieldWindow] = window
	f[FieldRangeStart] = start
	f[FieldRangeEnd] = end
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
