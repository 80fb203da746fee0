package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldError         = "error"
	FieldErrorKind     = "error_kind"
	FieldOperation     = "operation"
	FieldDuration      = "duration_ms"
	FieldMode          = "mode"
	FieldTool          = "tool"
	FieldEnvelopeID    = "envelope_id"
	FieldTransactionID = "transaction_id"
	FieldCategory      = "category"
	FieldAmountCents   = "amount_cents"
	FieldType          = "type"
	FieldDirection     = "direction"
	FieldTable         = "table"
	FieldRows          = "rows"
	FieldSyncID        = "sync_id"
	FieldPath          = "path"
	FieldDatabase      = "database"
)

// Components defines standard component names
const (
	ComponentApp         = "app"
	ComponentLedger      = "ledger"
	ComponentStorage     = "storage"
	ComponentBackend     = "backend"
	ComponentReplication = "replication"
	ComponentService     = "service"
	ComponentTools       = "tools"
	ComponentAMQP        = "amqp"
)

// Operations defines standard operation names
const (
	OpStartup  = "startup"
	OpSync     = "sync"
	OpShutdown = "shutdown"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
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

// WithEnvelope adds envelope-related fields
func (f LogFields) WithEnvelope(id int64, category string) LogFields {
	f[FieldEnvelopeID] = id
	if category != "" {
		f[FieldCategory] = category
	}
	return f
}

// WithTransaction adds transaction-related fields
func (f LogFields) WithTransaction(id, envelopeID int64, amountCents int64, typ string) LogFields {
	f[FieldTransactionID] = id
	f[FieldEnvelopeID] = envelopeID
	f[FieldAmountCents] = amountCents
	f[FieldType] = typ
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
