// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// DocumentIngestTask represents one uploaded document waiting to be ingested.
type DocumentIngestTask struct {
	DocumentID string `json:"document_id"`
	UserID     uint   `json:"user_id"`
	FileName   string `json:"file_name"`
	MediaType  string `json:"media_type"`
	StorageKey string `json:"storage_key"`
}
