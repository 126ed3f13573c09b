package model

import "time"

// DuplicateStatus is the resolution state of a DuplicateRecord.
type DuplicateStatus string

const (
	DuplicatePending DuplicateStatus = "pending"
	DuplicateMerged  DuplicateStatus = "merged"
	DuplicateIgnored DuplicateStatus = "ignored"
)

// DuplicateRecord links a primary bookmark to a suspected duplicate of it.
// The duplicate side may only be deleted while the record is pending.
type DuplicateRecord struct {
	ID          string          `json:"id"`
	PrimaryID   string          `json:"primaryId"`
	DuplicateID string          `json:"duplicateId"`
	Similarity  float64         `json:"similarity"`
	Status      DuplicateStatus `json:"status"`
	DetectedAt  time.Time       `json:"detectedAt"`
}

// NewDuplicateRecord creates a pending record detected now.
func NewDuplicateRecord(primaryID, duplicateID string, similarity float64) DuplicateRecord {
	return DuplicateRecord{
		ID:          GenerateUUID(),
		PrimaryID:   primaryID,
		DuplicateID: duplicateID,
		Similarity:  similarity,
		Status:      DuplicatePending,
		DetectedAt:  time.Now(),
	}
}
