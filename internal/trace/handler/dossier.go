package handler

import (
	"errors"
	"net/http"

	"github.com/agrotrace/agrotrace/internal/dossier"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DossierHandler serves off-chain dossier payloads by content hash.
type DossierHandler struct {
	store  dossier.Store
	logger *zap.Logger
}

// NewDossierHandler creates a DossierHandler.
func NewDossierHandler(store dossier.Store, logger *zap.Logger) *DossierHandler {
	return &DossierHandler{store: store, logger: logger}
}

// Register mounts the dossier routes on the given router group.
func (h *DossierHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/dossiers/:hash", h.GetDossier)
}

// GetDossier handles GET /dossiers/:hash.
func (h *DossierHandler) GetDossier(c *gin.Context) {
	hash := c.Param("hash")
	if len(hash) != 64 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hash must be a 64-char hex digest"})
		return
	}

	payload, err := h.store.Get(c.Request.Context(), hash)
	if err != nil {
		if errors.Is(err, dossier.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "dossier not found"})
			return
		}
		h.logger.Error("get dossier", zap.String("hash", hash), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query dossier"})
		return
	}

	c.Data(http.StatusOK, "application/json", payload)
}
