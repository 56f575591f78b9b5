package entity

import (
	"github.com/google/uuid"
)

// Document is one submitted file.
type Document struct {
	ID        uuid.UUID `json:"id"`
	Filename  string    `json:"filename"`
	Format    string    `json:"format"`
	PageCount int       `json:"page_count"`
	SizeBytes int64     `json:"size_bytes"`
}

// Page is one rasterized page of a document. Err is set when the page
// could not be rendered; downstream stages skip such pages. TextLayer holds
// embedded PDF text when the page has any.
type Page struct {
	Index     int    `json:"index"`
	ImagePath string `json:"image_path"`
	DPI       int    `json:"dpi"`
	TextLayer string `json:"-"`
	Err       error  `json:"-"`
}
