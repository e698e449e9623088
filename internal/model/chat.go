package model

import "time"

// Chat maps a conversation to the uploaded document it is grounded on.
// FileKey is the object-storage key and doubles as the vector index
// namespace after ASCII normalization.
type Chat struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;index" json:"user_id"`
	PDFName      string    `gorm:"size:256;not null" json:"pdf_name"`
	PDFURL       string    `gorm:"size:512;not null" json:"pdf_url"`
	FileKey      string    `gorm:"size:256;not null;index" json:"file_key"`
	ResourceType string    `gorm:"size:16" json:"resource_type"`
	CreatedAt    time.Time `json:"created_at"`
}
