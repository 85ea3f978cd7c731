package dto

import "github.com/google/uuid"

// DocumentRefreshMessage is the in-process pub/sub payload emitted when
// a document's content changes. Consumers invalidate cached answers and
// rebuild the document's summary.
type DocumentRefreshMessage struct {
	DocumentId uuid.UUID `json:"document_id"`
}

type RefreshDocumentResponse struct {
	DocumentId uuid.UUID `json:"document_id"`
	Queued     bool      `json:"queued"`
}
