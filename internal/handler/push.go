package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dukerupert/volunteerd/internal/auth"
	"github.com/dukerupert/volunteerd/internal/model"
	"github.com/dukerupert/volunteerd/internal/store"
)

// VAPIDKeySource is the part of push.Service browsers need to subscribe.
type VAPIDKeySource interface {
	VAPIDPublicKey() string
}

// PushHandler registers the caller's browsers for shift reminders. keys is
// nil when push is not configured.
type PushHandler struct {
	subs   *store.PushStore
	keys   VAPIDKeySource
	logger *slog.Logger
}

func NewPushHandler(ps *store.PushStore, keys VAPIDKeySource, logger *slog.Logger) *PushHandler {
	return &PushHandler{subs: ps, keys: keys, logger: logger.With("component", "push")}
}

var errPushDisabled = fmt.Errorf("%w: push notifications are not configured", model.ErrNotFound)

func (h *PushHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	if h.keys == nil {
		writeError(w, h.logger, errPushDisabled)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.keys.VAPIDPublicKey()})
}

type subscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required,url,max=2048"`
	Keys     struct {
		P256dh string `json:"p256dh" validate:"required"`
		Auth   string `json:"auth" validate:"required"`
	} `json:"keys"`
}

func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	if h.keys == nil {
		writeError(w, h.logger, errPushDisabled)
		return
	}
	var req subscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	sub, err := h.subs.Subscribe(r.Context(), auth.UserID(r.Context()), req.Endpoint, req.Keys.P256dh, req.Keys.Auth)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required"`
}

func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req unsubscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.subs.Unsubscribe(r.Context(), auth.UserID(r.Context()), req.Endpoint); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PushHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	subs, err := h.subs.ListByVolunteer(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if subs == nil {
		subs = []model.PushSubscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}
