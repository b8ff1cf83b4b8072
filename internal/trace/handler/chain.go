package handler

import (
	"net/http"

	"github.com/agrotrace/agrotrace/internal/genealogy"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ChainHandler exposes the explorer read path: full genealogy resolution for
// a batch id.
type ChainHandler struct {
	resolver *genealogy.Resolver
	cache    *genealogy.Cache
	logger   *zap.Logger
}

// NewChainHandler creates a ChainHandler. cache may be nil to disable
// resolution caching.
func NewChainHandler(resolver *genealogy.Resolver, cache *genealogy.Cache, logger *zap.Logger) *ChainHandler {
	return &ChainHandler{resolver: resolver, cache: cache, logger: logger}
}

// Register mounts the chain routes on the given router group.
func (h *ChainHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/chain/:batch_id", h.ResolveChain)
}

// ResolveChain handles GET /chain/:batch_id — returns the deduplicated,
// chronologically ordered provenance chain. An unknown batch yields an empty
// chain with status 200, not an error.
func (h *ChainHandler) ResolveChain(c *gin.Context) {
	batchID := c.Param("batch_id")

	if h.cache != nil {
		if chain, ok := h.cache.Get(batchID); ok {
			RecordResolution(true)
			c.JSON(http.StatusOK, gin.H{
				"batch_id": batchID,
				"chain":    chain,
			})
			return
		}
	}

	chain, err := h.resolver.Resolve(c.Request.Context(), batchID)
	if err != nil {
		h.logger.Error("resolve genealogy", zap.String("batch_id", batchID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve chain"})
		return
	}

	RecordResolution(false)
	if h.cache != nil {
		h.cache.Set(batchID, chain)
	}

	// Empty slice, not null, for batches with no history.
	if chain == nil {
		chain = []genealogy.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{
		"batch_id": batchID,
		"chain":    chain,
	})
}
