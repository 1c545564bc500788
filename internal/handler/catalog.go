package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/volunteerd/internal/store"
)

// CatalogHandler serves one tag catalog, skills or interests.
type CatalogHandler struct {
	tags   *store.TagStore
	logger *slog.Logger
}

func NewCatalogHandler(tags *store.TagStore, name string, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{tags: tags, logger: logger.With("component", name)}
}

type tagRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	tags, err := h.tags.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

func (h *CatalogHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	tag, err := h.tags.Create(r.Context(), req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, tag)
}

func (h *CatalogHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.tags.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
