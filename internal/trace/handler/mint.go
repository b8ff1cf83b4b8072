package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/agrotrace/agrotrace/internal/dossier"
	"github.com/agrotrace/agrotrace/internal/genealogy"
	"github.com/agrotrace/agrotrace/internal/identity"
	"github.com/agrotrace/agrotrace/internal/ledger"
	"github.com/agrotrace/agrotrace/pkg/canonical"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MintHandler exposes the write side of the ledger: event submissions that
// hash the dossier payload, persist it off-chain, and mint a block.
type MintHandler struct {
	minter   *ledger.Minter
	dossiers dossier.Store
	tokens   *identity.TokenIssuer
	cache    *genealogy.Cache
	logger   *zap.Logger
}

// NewMintHandler creates a MintHandler.
func NewMintHandler(minter *ledger.Minter, dossiers dossier.Store, tokens *identity.TokenIssuer, logger *zap.Logger) *MintHandler {
	return &MintHandler{minter: minter, dossiers: dossiers, tokens: tokens, logger: logger}
}

// SetChainCache attaches the explorer's resolution cache so freshly minted
// batches are re-resolved on the next read.
func (h *MintHandler) SetChainCache(c *genealogy.Cache) { h.cache = c }

// Register mounts the event routes on the given router group.
func (h *MintHandler) Register(rg *gin.RouterGroup) {
	ev := rg.Group("/events")
	{
		// Generic submission: any verified role, event type from the body.
		ev.POST("", RequireToken(h.tokens), h.MintEvent)

		// Typed convenience routes with fixed event types and role checks.
		ev.POST("/harvests", RequireToken(h.tokens, ledger.RoleProducer),
			h.typedMint(ledger.EventGenesis, false))
		ev.POST("/pickups", RequireToken(h.tokens, ledger.RoleTransporter),
			h.typedMint(ledger.EventTransportPickup, false))
		ev.POST("/deliveries", RequireToken(h.tokens, ledger.RoleTransporter),
			h.typedMint(ledger.EventTransportDelivery, false))
		ev.POST("/transformations", RequireToken(h.tokens, ledger.RoleProcessor),
			h.typedMint(ledger.EventTransformation, true))
	}
}

type mintRequest struct {
	BatchID   string          `json:"batch_id" binding:"required"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload" binding:"required"`
	Inputs    []ledger.Input  `json:"inputs"`
}

// MintEvent handles POST /events.
func (h *MintHandler) MintEvent(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.EventType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event_type is required"})
		return
	}
	h.mint(c, req)
}

// typedMint returns a handler bound to a fixed event type. requireInputs
// rejects submissions without parent batches, which a transformation must
// always have.
func (h *MintHandler) typedMint(eventType string, requireInputs bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req mintRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.EventType != "" && req.EventType != eventType {
			c.JSON(http.StatusBadRequest, gin.H{"error": "event_type is fixed to " + eventType + " on this route"})
			return
		}
		if requireInputs && len(req.Inputs) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "inputs are required for " + eventType})
			return
		}
		req.EventType = eventType
		h.mint(c, req)
	}
}

// mint runs the shared pipeline: canonical hash, off-chain payload store,
// block mint, cache invalidation, receipt.
func (h *MintHandler) mint(c *gin.Context, req mintRequest) {
	ctx := c.Request.Context()
	claims := roleClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing role claims"})
		return
	}

	dataHash, err := canonical.Hash(req.Payload)
	if err != nil {
		RecordMintFailure("hashing")
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "payload is not serializable"})
		return
	}

	if err := h.dossiers.Put(ctx, dataHash, req.Payload); err != nil {
		h.logger.Error("store dossier", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store dossier"})
		return
	}

	block, err := h.minter.Mint(ctx, claims.Role, req.BatchID, dataHash, req.EventType, req.Inputs, req.Payload)
	if err != nil {
		if errors.Is(err, ledger.ErrIntegrity) {
			RecordMintFailure("integrity")
			c.JSON(http.StatusConflict, gin.H{"error": "ledger contention, retry the submission"})
			return
		}
		RecordMintFailure("internal")
		h.logger.Error("mint block", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mint block"})
		return
	}

	RecordBlockMinted(block.EventType)
	if h.cache != nil {
		// Full flush: the new block is part of every descendant batch's
		// resolved chain, not just its own.
		h.cache.Flush()
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":  "Success",
		"tx_hash": block.BlockHash,
		"signer":  block.Signer,
		"block":   block,
	})
}
