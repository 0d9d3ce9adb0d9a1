package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rpattn/shipflow/internal/repository"
	"github.com/rpattn/shipflow/internal/tabular"

	"github.com/google/uuid"
)

// Handler exposes upload acceptance and status polling over HTTP.
type Handler struct {
	service *Service
	uploads repository.UploadRepository
}

// NewHTTPHandler wraps the coordinator with upload endpoints.
func NewHTTPHandler(service *Service, uploads repository.UploadRepository) http.Handler {
	return &Handler{service: service, uploads: uploads}
}

type acceptResponse struct {
	UploadID     uuid.UUID `json:"uploadId"`
	RecordsTotal int       `json:"recordsTotal"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && strings.TrimSuffix(r.URL.Path, "/") == "/uploads":
		h.handleAccept(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/uploads/"):
		h.handleStatus(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleAccept returns as soon as the upload is registered and the row
// count is known; processing continues out-of-band.
func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, fmt.Sprintf("invalid form data: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, fmt.Sprintf("file required: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read file: %v", err), http.StatusBadRequest)
		return
	}

	upload, recordsTotal, err := h.service.Accept(r.Context(), header.Filename, payload)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, tabular.ErrUnsupportedFormat) {
			status = http.StatusUnsupportedMediaType
		}
		http.Error(w, err.Error(), status)
		return
	}

	writeJSON(w, http.StatusAccepted, acceptResponse{
		UploadID:     upload.ID,
		RecordsTotal: recordsTotal,
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	idRaw := strings.TrimPrefix(r.URL.Path, "/uploads/")
	id, err := uuid.Parse(strings.TrimSuffix(idRaw, "/"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid upload id: %v", err), http.StatusBadRequest)
		return
	}

	upload, err := h.uploads.GetByID(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, upload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
