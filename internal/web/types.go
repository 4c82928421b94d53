package web

import "encoding/json"

// StartBatchRequest is the body of POST /client/{definitionName}.
type StartBatchRequest struct {
	Blobs []BlobRef `json:"blobs"`
}

// BlobRef references one document in a start-batch request.
type BlobRef struct {
	Name      string `json:"name"`
	Container string `json:"container"`
	URL       string `json:"url,omitempty"`
}

// StartBatchResponse returns the handle for polling the new instance.
type StartBatchResponse struct {
	ID                string `json:"id"`
	StatusQueryGetURI string `json:"statusQueryGetUri"`
}

// InstanceStatusResponse is the body of GET /runtime/instances/{id}.
type InstanceStatusResponse struct {
	ID     string          `json:"instanceId"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// UploadRequest is the body of POST /uploadBlob.
type UploadRequest struct {
	Container   string `json:"container"`
	Filename    string `json:"filename"`
	FileContent string `json:"fileContent"` // base64
}

// UploadResponse confirms a stored blob.
type UploadResponse struct {
	Success   bool   `json:"success"`
	Container string `json:"container"`
	Filename  string `json:"filename"`
	SizeBytes int    `json:"sizeBytes"`
}

// DeleteRequest is the body of POST /deleteBlobs.
type DeleteRequest struct {
	Blobs []BlobRef `json:"blobs"`
}

// DeleteResponse confirms the deletions.
type DeleteResponse struct {
	Success bool `json:"success"`
	Deleted int  `json:"deleted"`
}

// BlobListing is one entry of GET /getBlobsByContainer, carrying a
// time-limited access URL.
type BlobListing struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}
