package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/draftforge/preview/internal/sandbox"
	"github.com/draftforge/preview/internal/shared/id"
)

const maxSelectorLen = 1024

// Handlers exposes the preview control surface over HTTP.
type Handlers struct {
	previews *PreviewManager
}

// NewHandlers creates the handler set.
func NewHandlers(previews *PreviewManager) *Handlers {
	return &Handlers{previews: previews}
}

// Root handles the liveness check.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "draftforge-preview",
		"version": "0.1.0",
	})
}

// Health handles the detailed health check.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"previews": h.previews.Count(),
	})
}

// CreatePreview builds a new sandboxed preview.
func (h *Handlers) CreatePreview(c *gin.Context) {
	var req struct {
		Content string            `json:"content"`
		Pages   map[string]string `json:"pages"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validateContent(req.Content, false); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for path, content := range req.Pages {
		if err := validateContent(content, true); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("page %q: %s", path, err)})
			return
		}
	}

	p, err := h.previews.Create(c.Request.Context(), req.Content, req.Pages)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ready, readyErrors := p.Controller().Ready()
	c.JSON(http.StatusCreated, gin.H{
		"preview_id":   string(p.ID),
		"ready":        ready,
		"ready_errors": readyErrors,
	})
}

// ListPreviews lists live previews.
func (h *Handlers) ListPreviews(c *gin.Context) {
	previews := h.previews.List()
	out := make([]gin.H, 0, len(previews))
	for _, p := range previews {
		ready, _ := p.Controller().Ready()
		out = append(out, gin.H{
			"preview_id":   string(p.ID),
			"ready":        ready,
			"current_page": p.Controller().CurrentPage(),
			"has_errors":   p.Controller().HasErrors(),
			"created_at":   p.Created().UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"previews": out, "count": len(out)})
}

// GetPreview returns one preview's state.
func (h *Handlers) GetPreview(c *gin.Context) {
	p, ok := h.preview(c)
	if !ok {
		return
	}
	ready, readyErrors := p.Controller().Ready()
	c.JSON(http.StatusOK, gin.H{
		"preview_id":   string(p.ID),
		"ready":        ready,
		"ready_errors": readyErrors,
		"current_page": p.Controller().CurrentPage(),
		"has_errors":   p.Controller().HasErrors(),
		"created_at":   p.Created().UTC().Format(time.RFC3339),
	})
}

// ClosePreview tears one preview down.
func (h *Handlers) ClosePreview(c *gin.Context) {
	pv := id.PreviewID(c.Param("id"))
	if !h.previews.Close(pv) {
		c.JSON(http.StatusNotFound, gin.H{"error": "preview not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "preview_id": string(pv)})
}

// SetContent replaces the preview's document content.
func (h *Handlers) SetContent(c *gin.Context) {
	p, ok := h.preview(c)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validateContent(req.Content, true); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := p.Controller().SetContent(c.Request.Context(), req.Content); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Refresh rebuilds the preview from its last content.
func (h *Handlers) Refresh(c *gin.Context) {
	p, ok := h.preview(c)
	if !ok {
		return
	}
	if err := p.Controller().Refresh(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// PushManifest registers pages and pre-warms the sandbox cache.
func (h *Handlers) PushManifest(c *gin.Context) {
	p, ok := h.preview(c)
	if !ok {
		return
	}
	var req struct {
		Pages map[string]string `json:"pages" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for path, content := range req.Pages {
		if err := validateContent(content, true); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("page %q: %s", path, err)})
			return
		}
	}
	p.RegisterPages(req.Pages)
	if err := p.Controller().PushManifest(req.Pages); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "pages": len(req.Pages)})
}

// GetHTML returns the sandbox document's current rendering.
func (h *Handlers) GetHTML(c *gin.Context) {
	p, ok := h.preview(c)
	if !ok {
		return
	}
	doc := p.Agent().Document()
	if doc == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "preview has no content"})
		return
	}
	html, err := doc.HTML()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

// Click drives a click on an element inside the sandbox.
func (h *Handlers) Click(c *gin.Context) {
	h.interact(c, func(p *Preview, selector string) error {
		return p.Agent().Click(selector)
	})
}

// Submit drives a form submission inside the sandbox.
func (h *Handlers) Submit(c *gin.Context) {
	h.interact(c, func(p *Preview, selector string) error {
		return p.Agent().Submit(selector)
	})
}

func (h *Handlers) interact(c *gin.Context, drive func(*Preview, string) error) {
	p, ok := h.preview(c)
	if !ok {
		return
	}
	var req struct {
		Selector string `json:"selector" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validateSelector(req.Selector); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := drive(p, req.Selector); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// UpdateElement replaces an element's inner content.
func (h *Handlers) UpdateElement(c *gin.Context) {
	p, ok := h.preview(c)
	if !ok {
		return
	}
	var req struct {
		Selector string `json:"selector" binding:"required"`
		HTML     string `json:"html"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validateSelector(req.Selector); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.elementOp(c, p, func() error {
		return p.Agent().Document().UpdateElement(req.Selector, req.HTML)
	})
}

// DeleteElement removes an element from the document.
func (h *Handlers) DeleteElement(c *gin.Context) {
	h.selectorOp(c, func(p *Preview, selector string) error {
		return p.Agent().Document().DeleteElement(selector)
	})
}

// DuplicateElement clones an element after itself.
func (h *Handlers) DuplicateElement(c *gin.Context) {
	h.selectorOp(c, func(p *Preview, selector string) error {
		return p.Agent().Document().DuplicateElement(selector)
	})
}

func (h *Handlers) selectorOp(c *gin.Context, op func(*Preview, string) error) {
	p, ok := h.preview(c)
	if !ok {
		return
	}
	var req struct {
		Selector string `json:"selector" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validateSelector(req.Selector); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.elementOp(c, p, func() error { return op(p, req.Selector) })
}

func (h *Handlers) elementOp(c *gin.Context, p *Preview, op func() error) {
	if p.Agent().Document() == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "preview has no content"})
		return
	}
	if err := op(); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// QueryElements evaluates an XPath expression against the document.
func (h *Handlers) QueryElements(c *gin.Context) {
	p, ok := h.preview(c)
	if !ok {
		return
	}
	var req struct {
		XPath string `json:"xpath" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	doc := p.Agent().Document()
	if doc == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "preview has no content"})
		return
	}
	values, err := doc.XPath(req.XPath)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"values": values, "count": len(values)})
}

// GetErrors pulls the sandbox's current error buffer.
func (h *Handlers) GetErrors(c *gin.Context) {
	p, ok := h.preview(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	recs, err := p.Controller().QueryErrors(ctx)
	if err != nil {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"errors": recs, "count": len(recs)})
}

// ClearErrors empties the sandbox error buffer.
func (h *Handlers) ClearErrors(c *gin.Context) {
	p, ok := h.preview(c)
	if !ok {
		return
	}
	if err := p.Controller().ClearErrors(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SendCommand runs an ad hoc command inside the sandbox.
func (h *Handlers) SendCommand(c *gin.Context) {
	p, ok := h.preview(c)
	if !ok {
		return
	}
	var req struct {
		Command string `json:"command" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	handled, err := p.Controller().SendCommand(ctx, req.Command)
	if err != nil {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"handled": handled})
}

// CompleteOverlay finishes an overlay-routed intent with the dialog's
// result.
func (h *Handlers) CompleteOverlay(c *gin.Context) {
	p, ok := h.preview(c)
	if !ok {
		return
	}
	token := id.OverlayToken(c.Param("token"))
	var req struct {
		Result map[string]any `json:"result"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := p.Controller().CompleteOverlay(token, req.Result); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handlers) preview(c *gin.Context) (*Preview, bool) {
	pv := id.PreviewID(c.Param("id"))
	p, ok := h.previews.Get(pv)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "preview not found"})
		return nil, false
	}
	return p, true
}

func validateSelector(selector string) error {
	s := strings.TrimSpace(selector)
	if s == "" {
		return fmt.Errorf("selector must not be empty")
	}
	if len(s) > maxSelectorLen {
		return fmt.Errorf("selector exceeds %d characters", maxSelectorLen)
	}
	return nil
}

func validateContent(content string, required bool) error {
	if content == "" {
		if required {
			return fmt.Errorf("content must not be empty")
		}
		return nil
	}
	if len(content) > sandbox.MaxHTMLSize {
		return fmt.Errorf("content exceeds maximum size of %d bytes", sandbox.MaxHTMLSize)
	}
	return nil
}
