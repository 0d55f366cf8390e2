package logging

import (
	"context"
	"log/slog"

	"subservient/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID is the standardized structured logging key for the pipeline run identifier.
	FieldRunID = "run_id"
	// FieldVideo is the standardized structured logging key for the video file being processed.
	FieldVideo = "video"
	// FieldLanguage is the standardized structured logging key for the subtitle language.
	FieldLanguage = "language"
	// FieldSlot is the ledger slot index of a candidate.
	FieldSlot = "slot"
	// FieldPopularity is the catalog download count used as the candidate identity.
	FieldPopularity = "popularity"
	// FieldFromState and FieldToState describe a ledger or pair state transition.
	FieldFromState = "from_state"
	FieldToState   = "to_state"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint carries the suggested next step for the operator.
	FieldErrorHint = "error_hint"
	// FieldErrorCategory carries services.Category for the logged error.
	FieldErrorCategory = "error_category"
	// FieldDecisionType names the decision being logged.
	FieldDecisionType = "decision_type"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if video, ok := services.VideoFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldVideo, video))
	}
	if lang, ok := services.LanguageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldLanguage, lang))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
