package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/volunteerd/internal/model"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorMapping pairs a domain error with its HTTP status and wire code.
// Order matters: the first match wins.
var errorMapping = []struct {
	err    error
	status int
	code   string
}{
	{model.ErrBatchCreateFailed, http.StatusInternalServerError, "batch_create_failed"},
	{model.ErrInvalidRule, http.StatusBadRequest, "invalid_rule"},
	{model.ErrInvalidWindow, http.StatusBadRequest, "invalid_window"},
	{model.ErrRecurrenceTooLarge, http.StatusBadRequest, "recurrence_too_large"},
	{model.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{model.ErrNotFound, http.StatusNotFound, "not_found"},
	{model.ErrOpportunityFull, http.StatusConflict, "opportunity_full"},
	{model.ErrOpportunityClosed, http.StatusConflict, "opportunity_closed"},
	{model.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
}

// writeError maps err onto the error taxonomy. Server-side failures are
// logged and their details withheld from the client.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, code := http.StatusInternalServerError, "internal"
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			status, code = m.status, m.code
			break
		}
	}

	message := err.Error()
	if status >= 500 {
		logger.Error("request failed", "code", code, "error", err)
		message = "internal server error"
		if code == "batch_create_failed" {
			message = "no instances were created"
		}
	}
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

// decodeJSON reads a JSON body into v and validates it. Malformed input is
// reported as model.ErrInvalidInput unless the decoder surfaced a more
// specific domain error.
func decodeJSON(r *http.Request, v any) error {
	return decodeBody(r, v, false)
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty. An
// empty body leaves v at its zero value.
func decodeOptionalJSON(r *http.Request, v any) error {
	return decodeBody(r, v, true)
}

func decodeBody(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, model.ErrInvalidRule) {
			return err
		}
		return fmt.Errorf("%w: invalid JSON: %v", model.ErrInvalidInput, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", model.ErrInvalidInput, describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

func parsePathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", model.ErrInvalidInput, name)
	}
	return id, nil
}

func parseIDParam(r *http.Request) (int64, error) {
	return parsePathID(r, "id")
}

func parseQueryID(r *http.Request, name string) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", model.ErrInvalidInput, name)
	}
	return id, nil
}

func parseQueryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s", model.ErrInvalidInput, name)
	}
	return n, nil
}
