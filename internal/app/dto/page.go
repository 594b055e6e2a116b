package dto

import (
	"time"

	domainpage "helpdesk/internal/domain/page"
)

// Page never exposes the access token.
type Page struct {
	PageID      string    `json:"page_id"`
	PageName    string    `json:"page_name"`
	ConnectedAt time.Time `json:"connected_at"`
}

type PageList struct {
	Pages []Page `json:"pages"`
}

func NewPage(reg *domainpage.Registration) Page {
	return Page{
		PageID:      reg.PageID,
		PageName:    reg.PageName,
		ConnectedAt: reg.ConnectedAt,
	}
}
