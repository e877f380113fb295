package handler

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/config"
)

// Service is the interface for a web handler service.
type Service interface {
	Init(app *fiber.App, cfg *config.Config, db *gorm.DB)
}

// Page is the envelope of every paged listing.
type Page struct {
	Items    any   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

// Paging is embedded in query structs of paged listings.
type Paging struct {
	Page     int `query:"page"      validate:"omitempty,min=1"`
	PageSize int `query:"page_size" validate:"omitempty,min=1,max=500"`
}

// Bounds returns the effective page and page size.
func (p Paging) Bounds() (int, int) {
	page, size := p.Page, p.PageSize
	if page < 1 {
		page = 1
	}

	if size < 1 {
		size = DefaultPageSize
	}

	return page, size
}
