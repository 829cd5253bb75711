package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/memeboard/internal/apperror"
	"github.com/sakif/memeboard/internal/auth"
	"github.com/sakif/memeboard/internal/model"
	"github.com/sakif/memeboard/internal/service"
)

// Catalog is the part of service.CatalogService the meme handlers use.
type Catalog interface {
	Create(ctx context.Context, author *model.User, content string) (*model.Meme, error)
	Get(ctx context.Context, id int64) (*model.Meme, error)
	ListWithInteractions(ctx context.Context, key model.SortKey) ([]model.Meme, error)
}

// Ledger is the part of service.LedgerService the interaction handler uses.
type Ledger interface {
	Record(ctx context.Context, memeID int64, user *model.User, typ, comment string) (*service.Recorded, error)
}

// MemeHandler serves the board: listing, reading, posting and reacting.
type MemeHandler struct {
	catalog Catalog
	ledger  Ledger
	logger  *slog.Logger
}

func NewMemeHandler(catalog Catalog, ledger Ledger, logger *slog.Logger) *MemeHandler {
	return &MemeHandler{
		catalog: catalog,
		ledger:  ledger,
		logger:  logger,
	}
}

// HandleList returns every meme with its interactions.
//
// HTTP: GET /api/memes?sort=score|new|interactions
func (h *MemeHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	key, ok := model.ParseSortKey(r.URL.Query().Get("sort"))
	if !ok {
		writeError(w, h.logger, r, apperror.ValidationFailed("sort",
			`sort must be one of "score", "new" or "interactions"`))
		return
	}

	memes, err := h.catalog.ListWithInteractions(r.Context(), key)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, memes)
}

// HandleGet returns one meme with its interactions.
//
// HTTP: GET /api/memes/{id}
func (h *MemeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	meme, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meme)
}

// Content rules (non-empty after trim, length) live in the service so the
// specific EmptyContent condition reaches the client.
type createMemeRequest struct {
	Content string `json:"content"`
}

// HandleCreate posts a meme as the caller.
//
// HTTP: POST /api/memes  {"content": "..."} (auth required)
func (h *MemeHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	var req createMemeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	meme, err := h.catalog.Create(r.Context(), user, req.Content)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, meme)
}

type recordInteractionRequest struct {
	Type    string `json:"type" validate:"required"`
	Comment string `json:"comment"`
}

// HandleRecordInteraction records the caller's reaction to a meme.
//
// HTTP: POST /api/memes/{id}/interactions  {"type": "refute", "comment": "..."} (auth required)
func (h *MemeHandler) HandleRecordInteraction(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	id, err := idParam(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	var req recordInteractionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	rec, err := h.ledger.Record(r.Context(), id, user, req.Type, req.Comment)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}
