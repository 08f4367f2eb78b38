package item

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/smitius/flea-market/internal/observability"
)

const maxJSONBodyBytes = 1 << 20

// Store is what the handler needs from the item repository.
type Store interface {
	List(ctx context.Context, query ListQuery) ([]Item, error)
	Get(ctx context.Context, id string) (Item, error)
	IncrementViewCount(ctx context.Context, id string) error
	Create(ctx context.Context, input ItemInput) (Item, error)
	Update(ctx context.Context, id string, input ItemInput) (Item, error)
	Delete(ctx context.Context, id string) ([]string, error)
	AddImage(ctx context.Context, itemID, filename string, isPrimary bool) (ItemImage, error)
	DeleteImage(ctx context.Context, itemID, imageID string) (string, error)
	SetPrimaryImage(ctx context.Context, itemID, imageID string) error
}

// FileStore is the slice of the media store used when image records
// come and go.
type FileStore interface {
	Exists(filename string) bool
	Remove(filename string) error
}

type Handler struct {
	store  Store
	files  FileStore
	logger *observability.Logger
}

func NewHandler(store Store, files FileStore, logger *observability.Logger) *Handler {
	return &Handler{store: store, files: files, logger: logger}
}

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	query := ListQuery{
		Search: strings.TrimSpace(r.URL.Query().Get("q")),
		Sort:   strings.TrimSpace(r.URL.Query().Get("sort")),
	}

	switch query.Sort {
	case "", SortNewest, SortPriceAsc, SortPriceDesc, SortViews:
	default:
		writeError(w, http.StatusBadRequest, "unknown sort order")
		return
	}
	if len(query.Search) > 100 {
		writeError(w, http.StatusBadRequest, "search query is too long")
		return
	}

	items, err := h.store.List(r.Context(), query)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}

	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	it, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "item not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to load item")
		return
	}

	// The counter is advisory; a failed bump must not break the page.
	if err := h.store.IncrementViewCount(r.Context(), id); err != nil {
		h.logger.Error("view_count_failed", map[string]any{"item_id": id, "error": err.Error()})
	} else {
		it.ViewCount++
	}

	writeJSON(w, http.StatusOK, it)
}

func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	it, err := h.store.Create(r.Context(), input)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to create item")
		return
	}

	writeJSON(w, http.StatusCreated, it)
}

func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	it, err := h.store.Update(r.Context(), id, input)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "item not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to update item")
		return
	}

	writeJSON(w, http.StatusOK, it)
}

func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	filenames, err := h.store.Delete(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "item not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to delete item")
		return
	}

	for _, name := range filenames {
		if err := h.files.Remove(name); err != nil {
			h.logger.Error("image_file_remove_failed", map[string]any{"filename": name, "error": err.Error()})
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

type addImageRequest struct {
	Filename  string `json:"filename"`
	IsPrimary bool   `json:"is_primary"`
}

func (h *Handler) AddImage(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("id")
	if _, err := uuid.Parse(itemID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body addImageRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	body.Filename = strings.TrimSpace(body.Filename)
	if body.Filename == "" || len(body.Filename) > 128 || strings.ContainsAny(body.Filename, "/\\") {
		writeError(w, http.StatusBadRequest, "filename is invalid")
		return
	}
	if !h.files.Exists(body.Filename) {
		writeError(w, http.StatusBadRequest, "file has not been uploaded")
		return
	}

	img, err := h.store.AddImage(r.Context(), itemID, body.Filename, body.IsPrimary)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "item not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to add image")
		return
	}

	writeJSON(w, http.StatusCreated, img)
}

func (h *Handler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("id")
	imageID := r.PathValue("imageID")
	if _, err := uuid.Parse(itemID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	if _, err := uuid.Parse(imageID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid image id")
		return
	}

	filename, err := h.store.DeleteImage(r.Context(), itemID, imageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "image not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to delete image")
		return
	}

	if err := h.files.Remove(filename); err != nil {
		h.logger.Error("image_file_remove_failed", map[string]any{"filename": filename, "error": err.Error()})
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SetPrimaryImage(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("id")
	imageID := r.PathValue("imageID")
	if _, err := uuid.Parse(itemID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	if _, err := uuid.Parse(imageID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid image id")
		return
	}

	if err := h.store.SetPrimaryImage(r.Context(), itemID, imageID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "image not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to set primary image")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseInput(w http.ResponseWriter, r *http.Request) (ItemInput, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var input ItemInput
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return ItemInput{}, false
	}

	input.Name = strings.TrimSpace(input.Name)
	input.Description = strings.TrimSpace(input.Description)

	if input.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return ItemInput{}, false
	}
	if !utf8.ValidString(input.Name) || utf8.RuneCountInString(input.Name) > 100 {
		writeError(w, http.StatusBadRequest, "name is invalid")
		return ItemInput{}, false
	}
	if !utf8.ValidString(input.Description) || utf8.RuneCountInString(input.Description) > 2000 {
		writeError(w, http.StatusBadRequest, "description is invalid")
		return ItemInput{}, false
	}
	if input.Price < 0 {
		writeError(w, http.StatusBadRequest, "price must be >= 0")
		return ItemInput{}, false
	}

	return input, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
