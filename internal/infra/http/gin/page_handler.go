package ginserver

import (
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"helpdesk/internal/app/dto"
	pagesvc "helpdesk/internal/app/services/pages"
	domainpage "helpdesk/internal/domain/page"
	"helpdesk/internal/infra/channel/facebook"
)

type PageHTTP interface {
	LoginURL(c *gin.Context)
	Connect(c *gin.Context)
	List(c *gin.Context)
	Disconnect(c *gin.Context)
}

// PageHandler covers the connect flow: hand out the OAuth dialog URL, exchange
// the returned code, list and disconnect registrations.
type PageHandler struct {
	Service *pagesvc.Service
	Channel *facebook.Client
	Logger  *slog.Logger
}

func (h PageHandler) LoginURL(c *gin.Context) {
	if _, ok := requireAuth(c); !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": h.Channel.LoginURL()})
}

func (h PageHandler) Connect(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	registered, err := h.Service.Connect(c.Request.Context(), p.ID, req.Code)
	if err != nil {
		if errors.Is(err, pagesvc.ErrCodeRequired) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "oauth code is required"})
			return
		}
		if h.Logger != nil {
			h.Logger.Error("page connect failed", "error", err)
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not connect pages"})
		return
	}
	c.JSON(http.StatusOK, newPageList(registered))
}

func (h PageHandler) List(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	regs, err := h.Service.List(c.Request.Context(), p.ID)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("page list failed", "error", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, newPageList(regs))
}

func (h PageHandler) Disconnect(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	pageID := c.Param("pageId")
	if pageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page id is required"})
		return
	}
	if err := h.Service.Disconnect(c.Request.Context(), p.ID, pageID); err != nil {
		if errors.Is(err, domainpage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "page not found"})
			return
		}
		if h.Logger != nil {
			h.Logger.Error("page disconnect failed", "page_id", pageID, "error", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.Status(http.StatusNoContent)
}

func newPageList(regs []*domainpage.Registration) dto.PageList {
	list := dto.PageList{Pages: make([]dto.Page, 0, len(regs))}
	for _, reg := range regs {
		list.Pages = append(list.Pages, dto.NewPage(reg))
	}
	return list
}

var _ PageHTTP = (*PageHandler)(nil)
