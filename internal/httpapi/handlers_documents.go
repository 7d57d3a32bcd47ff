package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/flightclaims/claims-engine/internal/claims"
	"github.com/flightclaims/claims-engine/internal/documents"
	"github.com/flightclaims/claims-engine/internal/platform/apierr"
)

// DocumentHandlers implements claim evidence upload and download. Both
// enforce that only the owning customer or staff may touch a claim's
// files, and every download is audited via Store.LogAccess.
type DocumentHandlers struct {
	claimStore *claims.Store
	docStore   *documents.Store
	pipeline   *documents.Pipeline
}

func NewDocumentHandlers(claimStore *claims.Store, docStore *documents.Store, pipeline *documents.Pipeline) *DocumentHandlers {
	return &DocumentHandlers{claimStore: claimStore, docStore: docStore, pipeline: pipeline}
}

func documentErr(err error) *apierr.Error {
	switch {
	case errors.Is(err, documents.ErrNotFound):
		return apierr.NotFound("file", "")
	case errors.Is(err, documents.ErrFileTooLarge):
		return apierr.FileTooLarge(documents.MaxUploadBytes)
	case errors.Is(err, documents.ErrMimeMismatch):
		return apierr.MimeMismatch("", "")
	case errors.Is(err, documents.ErrIntegrityFail):
		return apierr.IntegrityCheckFailed("uploaded file")
	default:
		return apierr.Internal("document operation failed", err)
	}
}

type fileMetadataResponse struct {
	ID           string `json:"id"`
	ClaimID      string `json:"claim_id"`
	DocumentType string `json:"document_type"`
	ContentType  string `json:"content_type"`
	SizeBytes    int64  `json:"size_bytes"`
	UploadedBy   string `json:"uploaded_by"`
	CreatedAt    string `json:"created_at"`
}

func toFileMetadataResponse(m documents.FileMetadata) fileMetadataResponse {
	return fileMetadataResponse{
		ID:           m.ID,
		ClaimID:      m.ClaimID,
		DocumentType: string(m.DocumentType),
		ContentType:  m.ContentType,
		SizeBytes:    m.SizeBytes,
		UploadedBy:   m.UploadedBy,
		CreatedAt:    m.CreatedAt.Format(timeLayout),
	}
}

// authorizedClaim loads the target claim and verifies the actor may touch
// its files, returning the claim's UUID for convenience.
func (h *DocumentHandlers) authorizedClaim(r *http.Request, actor Actor) (uuid.UUID, *apierr.Error) {
	claimID, apiErr := parseClaimID(r)
	if apiErr != nil {
		return uuid.UUID{}, apiErr
	}
	claim, err := h.claimStore.FindByID(r.Context(), claimID)
	if err != nil {
		return uuid.UUID{}, claimErr(err)
	}
	if !ownsOrStaff(actor, claim.CustomerID) {
		return uuid.UUID{}, apierr.Forbidden("you may not access this claim's files")
	}
	return claimID, nil
}

const maxUploadMemory = 32 << 20 // buffer threshold for multipart parsing; body itself is bounded by BodyLimit

// Upload accepts a multipart/form-data request with a "document_type"
// field and a "file" part, runs it through the evidence pipeline, and
// returns the persisted metadata.
func (h *DocumentHandlers) Upload(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	claimID, apiErr := h.authorizedClaim(r, actor)
	if apiErr != nil {
		WriteError(w, r, apiErr)
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		WriteError(w, r, apierr.InvalidInput("body", "expected multipart/form-data"))
		return
	}
	docType := documents.DocumentType(r.FormValue("document_type"))
	if docType == "" {
		WriteError(w, r, apierr.MissingParameter("document_type"))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		WriteError(w, r, apierr.MissingParameter("file"))
		return
	}
	defer file.Close()

	metadata, err := h.pipeline.Upload(r.Context(), claimID, actor.CustomerID, docType, io.LimitReader(file, documents.MaxUploadBytes+1))
	if err != nil {
		WriteError(w, r, documentErr(err))
		return
	}
	WriteJSON(w, r, http.StatusCreated, toFileMetadataResponse(metadata))
}

// List returns every live file attached to a claim.
func (h *DocumentHandlers) List(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	claimID, apiErr := h.authorizedClaim(r, actor)
	if apiErr != nil {
		WriteError(w, r, apiErr)
		return
	}

	files, err := h.docStore.ListByClaim(r.Context(), claimID)
	if err != nil {
		WriteError(w, r, apierr.DatabaseError("list claim files", err))
		return
	}
	out := make([]fileMetadataResponse, 0, len(files))
	for _, f := range files {
		out = append(out, toFileMetadataResponse(f))
	}
	WriteJSON(w, r, http.StatusOK, out)
}

// Download streams a decrypted file back to an authorized caller and
// records the access for audit.
func (h *DocumentHandlers) Download(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	claimID, apiErr := h.authorizedClaim(r, actor)
	if apiErr != nil {
		WriteError(w, r, apiErr)
		return
	}

	fileID, err := uuid.Parse(chi.URLParam(r, "fileID"))
	if err != nil {
		WriteError(w, r, apierr.InvalidFormat("fileID", "uuid"))
		return
	}

	metadata, err := h.docStore.FindByID(r.Context(), fileID)
	if err != nil {
		WriteError(w, r, documentErr(err))
		return
	}
	if metadata.ClaimID != claimID.String() {
		WriteError(w, r, apierr.NotFound("file", fileID.String()))
		return
	}

	reader, err := h.pipeline.Download(r.Context(), fileID, metadata.StoragePath)
	if err != nil {
		WriteError(w, r, documentErr(err))
		return
	}

	if err := h.docStore.LogAccess(r.Context(), fileID, actor.CustomerID, "download"); err != nil {
		WriteError(w, r, apierr.DatabaseError("log file access", err))
		return
	}

	w.Header().Set("Content-Type", metadata.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}
