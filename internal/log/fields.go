package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldErrorType  = "error_type"
	FieldOperation  = "operation"
	FieldOwner      = "owner"
	FieldRecordID   = "record_id"
	FieldToken      = "token"
	FieldCount      = "count"
	FieldStatus     = "status"
	FieldKind       = "kind"
	FieldCategory   = "category"
	FieldAmount     = "amount"

	FieldSubscription = "subscription"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentSession  = "session"
	ComponentGateway  = "gateway"
	ComponentStorage  = "storage"
	ComponentAMQP     = "amqp"
	ComponentIdentity = "identity"
	ComponentLive     = "live"
	ComponentBackend  = "backend"
	ComponentWorker   = "worker"
	ComponentFeed     = "feed"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpClearAll = "clear_all"
	OpView     = "view"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation = "validation_error"
	ErrorTypeMutation   = "mutation_error"
	ErrorTypeSync       = "sync_error"
	ErrorTypeAuth       = "auth_error"
	ErrorTypeInternal   = "internal_error"
	ErrorTypeBroker     = "broker_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithErrorType(t string) LogFields {
	f[FieldErrorType] = t
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithOwner(owner string) LogFields {
	f[FieldOwner] = owner
	return f
}

func (f LogFields) WithRecord(id string) LogFields {
	if id != "" {
		f[FieldRecordID] = id
	}
	return f
}

func (f LogFields) WithHTTPRequest(method, path, clientIP string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	if clientIP != "" {
		f[FieldClientIP] = clientIP
	}
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	return f
}

// WithEntry adds the descriptive fields of a record being written.
func (f LogFields) WithEntry(kind, category, amount string) LogFields {
	f[FieldKind] = kind
	f[FieldCategory] = category
	f[FieldAmount] = amount
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
