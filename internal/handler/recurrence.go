package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/volunteerd/internal/recurrence"
)

type previewRequest struct {
	StartTime  time.Time          `json:"start_time" validate:"required"`
	EndTime    time.Time          `json:"end_time" validate:"required"`
	Recurrence *recurrenceRequest `json:"recurrence" validate:"required"`
}

type previewResponse struct {
	RRule       string                  `json:"rrule"`
	Description string                  `json:"description"`
	Count       int                     `json:"count"`
	Occurrences []recurrence.Occurrence `json:"occurrences"`
}

// PreviewRecurrence expands a rule without persisting anything, so staff
// can check the dates before creating a series.
func PreviewRecurrence(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req previewRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, logger, err)
			return
		}
		rule, err := req.Recurrence.rule()
		if err != nil {
			writeError(w, logger, err)
			return
		}

		occs, err := recurrence.Expand(rule, req.StartTime, req.EndTime)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, previewResponse{
			RRule:       rule.String(),
			Description: rule.Describe(),
			Count:       len(occs),
			Occurrences: occs,
		})
	}
}
