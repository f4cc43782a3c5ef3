package handlers

import (
	"fmt"
	"io"
	"net/http"

	"lottery/internal/faults"
	"lottery/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
)

// MaxUploadBytes bounds anchored files.
const MaxUploadBytes = 10 << 20

// UploadAnchor stores the uploaded file and links it to the caller.
func (h *HTTPHandler) UploadAnchor(c *gin.Context) {
	const op = "anchor file"
	kind := models.AnchorKind(c.Param("kind"))

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.fail(c, faults.Wrap(faults.KindValidation, op, fmt.Errorf("retrieving file: %w", err)))
		return
	}
	defer file.Close()

	if header.Size > MaxUploadBytes {
		h.fail(c, faults.Validation(op, "file is larger than %d bytes", MaxUploadBytes))
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, MaxUploadBytes+1))
	if err != nil {
		h.fail(c, faults.Wrap(faults.KindValidation, op, fmt.Errorf("reading file: %w", err)))
		return
	}
	if len(data) > MaxUploadBytes {
		h.fail(c, faults.Validation(op, "file is larger than %d bytes", MaxUploadBytes))
		return
	}

	id, err := h.anchors.AnchorFile(c.Request.Context(), currentSession(c).Session, kind, data)
	if err != nil {
		h.fail(c, err)
		return
	}
	logger.Infof("Anchored %s (%d bytes) as %s", header.Filename, len(data), id)
	c.JSON(http.StatusCreated, gin.H{"kind": kind, "cid": id})
}

// LinkAnchor links an already uploaded content id, typically one returned by a
// failed upload.
func (h *HTTPHandler) LinkAnchor(c *gin.Context) {
	kind := models.AnchorKind(c.Param("kind"))
	var req struct {
		CID models.ContentID `json:"cid"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, faults.Wrap(faults.KindValidation, "link anchor", err))
		return
	}
	if err := h.anchors.LinkAnchor(c.Request.Context(), currentSession(c).Session, kind, req.CID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"kind": kind, "cid": req.CID})
}

// GetAnchor returns the current anchor of the caller, or of ?owner= when given.
func (h *HTTPHandler) GetAnchor(c *gin.Context) {
	kind := models.AnchorKind(c.Param("kind"))

	var who models.Identity
	if owner := c.Query("owner"); owner != "" {
		id, err := models.ParseIdentity(owner)
		if err != nil {
			h.fail(c, faults.Wrap(faults.KindValidation, "read anchor", err))
			return
		}
		who = id
	} else {
		id, err := currentSession(c).Session.EnsureIdentity(c.Request.Context())
		if err != nil {
			h.fail(c, err)
			return
		}
		who = id
	}

	id, ok, err := h.anchors.ReadCurrentAnchor(c.Request.Context(), who, kind)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no anchor set", "owner": who.Hex(), "kind": kind})
		return
	}
	c.JSON(http.StatusOK, gin.H{"owner": who.Hex(), "kind": kind, "cid": id})
}
