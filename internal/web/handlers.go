package web

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/docflow/internal/blobstore"
	"github.com/example/docflow/internal/domain"
	"github.com/example/docflow/internal/engine"
)

// Handlers contains the HTTP handlers of the control surface.
type Handlers struct {
	engine *engine.Engine
	store  blobstore.Store
	signer *blobstore.URLSigner
}

// NewHandlers creates the API handlers.
func NewHandlers(eng *engine.Engine, store blobstore.Store, signer *blobstore.URLSigner) *Handlers {
	return &Handlers{engine: eng, store: store, signer: signer}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: encoding response: %v", err)
	}
}

// StartBatch handles POST /client/{definitionName}: validates the blob
// list, starts a workflow instance, and returns a polling handle.
func (h *Handlers) StartBatch(w http.ResponseWriter, r *http.Request) {
	definition := chi.URLParam(r, "definitionName")

	var req StartBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Blobs) == 0 {
		http.Error(w, "Invalid request: 'blobs' must be a non-empty array.", http.StatusBadRequest)
		return
	}

	items := make([]domain.WorkItem, 0, len(req.Blobs))
	for i, blob := range req.Blobs {
		item := domain.NewWorkItem(blob.Name, blob.Container, blob.URL)
		if err := item.Validate(); err != nil {
			http.Error(w, fmt.Sprintf("Invalid blob at index %d: %v", i, err), http.StatusBadRequest)
			return
		}
		items = append(items, item)
	}

	instanceID, err := h.engine.StartWorkflow(r.Context(), definition, items)
	if err != nil {
		if errors.Is(err, domain.ErrDefinitionNotFound) {
			http.Error(w, "Unknown workflow definition: "+definition, http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to start workflow: "+err.Error(), http.StatusInternalServerError)
		return
	}

	log.Printf("web: started %s instance %s with %d blob(s)", definition, instanceID, len(items))
	writeJSON(w, http.StatusAccepted, StartBatchResponse{
		ID:                instanceID,
		StatusQueryGetURI: "/runtime/instances/" + instanceID,
	})
}

// GetInstance handles GET /runtime/instances/{id}: 200 with the result
// when the instance is terminal, 202 while it is still running.
func (h *Handlers) GetInstance(w http.ResponseWriter, r *http.Request) {
	instanceID := chi.URLParam(r, "id")

	inst, err := h.engine.GetStatus(r.Context(), instanceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Instance not found: "+instanceID, http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to get status: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := InstanceStatusResponse{ID: inst.ID, Status: inst.Status.String()}
	status := http.StatusAccepted
	if inst.Status.IsTerminal() {
		status = http.StatusOK
		resp.Output = inst.Output
		resp.Error = inst.ErrorMessage
	}
	writeJSON(w, status, resp)
}

// UploadBlob handles POST /uploadBlob with base64 file content.
func (h *Handlers) UploadBlob(w http.ResponseWriter, r *http.Request) {
	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Container == "" || req.Filename == "" || req.FileContent == "" {
		http.Error(w, "Missing required fields: container, filename, fileContent", http.StatusBadRequest)
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.FileContent)
	if err != nil {
		http.Error(w, "fileContent is not valid base64: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.store.Write(r.Context(), req.Container, req.Filename, data); err != nil {
		if errors.Is(err, blobstore.ErrUnknownTier) || errors.Is(err, blobstore.ErrInvalidName) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to store blob: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		Success:   true,
		Container: req.Container,
		Filename:  req.Filename,
		SizeBytes: len(data),
	})
}

// DeleteBlobs handles POST /deleteBlobs. Deleting a blob that is already
// gone counts as success.
func (h *Handlers) DeleteBlobs(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	deleted := 0
	for _, blob := range req.Blobs {
		err := h.store.Delete(r.Context(), blob.Container, blob.Name)
		switch {
		case err == nil:
			deleted++
		case errors.Is(err, blobstore.ErrNotFound):
		case errors.Is(err, blobstore.ErrUnknownTier), errors.Is(err, blobstore.ErrInvalidName):
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		default:
			http.Error(w, "Failed to delete blob: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	writeJSON(w, http.StatusOK, DeleteResponse{Success: true, Deleted: deleted})
}

// ListBlobs handles GET /getBlobsByContainer: every tier mapped to its
// blobs, each with a signed time-limited access URL.
func (h *Handlers) ListBlobs(w http.ResponseWriter, r *http.Request) {
	out := make(map[string][]BlobListing)
	for _, tier := range h.store.Tiers() {
		blobs, err := h.store.List(r.Context(), tier)
		if err != nil {
			http.Error(w, "Failed to list tier "+tier+": "+err.Error(), http.StatusInternalServerError)
			return
		}
		listings := make([]BlobListing, 0, len(blobs))
		for _, blob := range blobs {
			listings = append(listings, BlobListing{
				Name: blob.Name,
				URL:  h.signer.Sign(tier, blob.Name),
			})
		}
		out[tier] = listings
	}
	writeJSON(w, http.StatusOK, out)
}

// DownloadBlob handles GET /blob/{container}/{name}: serves the blob
// bytes when the signature checks out.
func (h *Handlers) DownloadBlob(w http.ResponseWriter, r *http.Request) {
	tier := chi.URLParam(r, "container")
	name := chi.URLParam(r, "name")

	q := r.URL.Query()
	if err := h.signer.Verify(tier, name, q.Get("exp"), q.Get("sig")); err != nil {
		if errors.Is(err, blobstore.ErrExpiredURL) {
			http.Error(w, "URL expired", http.StatusForbidden)
			return
		}
		http.Error(w, "Invalid signature", http.StatusForbidden)
		return
	}

	data, err := h.store.Read(r.Context(), tier, name)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			http.Error(w, "Blob not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to read blob: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}
