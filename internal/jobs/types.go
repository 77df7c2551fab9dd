package jobs

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gci-tools/reportes-console/internal/platform/apierr"
)

// Well-known states. The set is server-defined and open; the client only
// needs the terminal ones to know when to stop caring.
const (
	StateQueued   = "EN_COLA"
	StateRunning  = "EJECUTANDO"
	StateOK       = "OK"
	StateError    = "ERROR"
	StateCanceled = "CANCELADO"
)

func IsTerminal(state string) bool {
	switch strings.ToUpper(strings.TrimSpace(state)) {
	case StateOK, StateError, StateCanceled:
		return true
	}
	return false
}

// Request is a job submission. Immutable once sent; the client never retries
// it on its own.
type Request struct {
	ReportCode  string         `json:"reporte_codigo"`
	User        string         `json:"usuario,omitempty"`
	InputPath   string         `json:"ruta_input,omitempty"`
	Parameters  map[string]any `json:"parametros"`
	MaxAttempts int            `json:"max_intentos"`
}

// Record is the server-owned view of one job. The client holds a read-only
// cached copy; it is never written back.
type Record struct {
	RequestID     string     `json:"request_id"`
	ReportCode    string     `json:"reporte_codigo"`
	User          string     `json:"usuario"`
	State         string     `json:"estado"`
	Progress      int        `json:"progreso"`
	StatusMessage string     `json:"mensaje_estado"`
	OutputPath    string     `json:"ruta_output"`
	ErrorDetail   string     `json:"error_detalle"`
	RequestedAt   time.Time  `json:"fecha_solicitud"`
	StartedAt     *time.Time `json:"fecha_inicio"`
	FinishedAt    *time.Time `json:"fecha_fin"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Event is one append-only timeline entry belonging to a job.
type Event struct {
	Kind      string    `json:"tipo_evento"`
	Detail    string    `json:"detalle"`
	Origin    string    `json:"origen"`
	CreatedAt time.Time `json:"created_at"`
}

type recordPage struct {
	Items []Record `json:"items"`
	Total int      `json:"total"`
}

// ParseParameters turns user-entered parameter text into the request's
// parameter object. Only a JSON object is accepted; arrays, scalars and
// malformed text fail with a validation error before any network I/O.
// Empty text means "no parameters".
func ParseParameters(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return map[string]any{}, nil
	}
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, apierr.Validation("parameters must be a JSON object, e.g. {\"periodo\": \"2026-02\"}")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, apierr.Validation("parameters must be a JSON object, not an array or scalar")
	}
	return obj, nil
}

// DisplayProgress clamps a record's progress to [0, 100] for rendering. The
// record itself keeps whatever the server reported.
func DisplayProgress(r *Record) int {
	if r == nil {
		return 0
	}
	p := r.Progress
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
