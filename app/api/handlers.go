package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SuperrNaruto/you2down/app/database"
	"github.com/SuperrNaruto/you2down/app/sources"
	"github.com/SuperrNaruto/you2down/app/strategy"
)

func NewHandler(itemRepo database.ItemRepository, companionRepo database.CompanionRepository,
	resolver *strategy.Resolver, configCache *sources.ConfigCache, version string) *Handler {
	return &Handler{
		itemRepo:      itemRepo,
		companionRepo: companionRepo,
		resolver:      resolver,
		configCache:   configCache,
		version:       version,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
	}

	health["loaded_sources"] = h.configCache.GetConfigCount()

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	itemCounts, err := h.itemRepo.CountByStatus(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "count_items", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	companionCounts, err := h.companionRepo.CountByStatus(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "count_companions", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":      itemCounts,
		"companions": companionCounts,
	})
}

func (h *Handler) APIListSources(c *gin.Context) {
	checkpoints, err := h.resolver.List(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "list_checkpoints", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	srcs := make([]map[string]interface{}, 0, len(checkpoints))
	for _, checkpoint := range checkpoints {
		info := map[string]interface{}{
			"source_id":           checkpoint.SourceID,
			"strategy":            checkpoint.Strategy,
			"strategy_overridden": checkpoint.StrategyOverridden,
			"last_item_count":     checkpoint.LastItemCount,
			"last_new_item_count": checkpoint.LastNewItemCount,
		}
		if checkpoint.LastCheckedAt != nil {
			info["last_checked_at"] = checkpoint.LastCheckedAt.Format(time.RFC3339)
		}
		if config, err := h.configCache.GetConfig(checkpoint.SourceID); err == nil {
			info["name"] = config.Name
			info["kind"] = config.Kind
		}
		srcs = append(srcs, info)
	}

	c.JSON(http.StatusOK, gin.H{
		"sources": srcs,
		"count":   len(srcs),
	})
}

func (h *Handler) APISetStrategy(c *gin.Context) {
	sourceID := c.Param("id")

	var body struct {
		Strategy string `json:"strategy"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	err := h.resolver.SetStrategy(c.Request.Context(), sourceID, database.Strategy(body.Strategy))
	if err != nil {
		if errors.Is(err, strategy.ErrInvalidStrategy) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.Error("Failed to set strategy", "source_id", sourceID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	slog.Info("Source strategy updated", "source_id", sourceID, "strategy", body.Strategy)
	c.JSON(http.StatusOK, gin.H{
		"source_id": sourceID,
		"strategy":  body.Strategy,
	})
}

func (h *Handler) APIRetryItem(c *gin.Context) {
	id := c.Param("id")

	retried, err := h.itemRepo.RetryFailed(c.Request.Context(), id)
	if err != nil {
		slog.Error("Failed to retry media item", "item_id", id, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if !retried {
		c.JSON(http.StatusConflict, gin.H{"error": "Item is not in failed status"})
		return
	}

	slog.Info("Media item queued for retry", "item_id", id)
	c.JSON(http.StatusOK, gin.H{"item_id": id, "status": "requeued"})
}

func (h *Handler) APIGetItem(c *gin.Context) {
	id := c.Param("id")

	item, err := h.itemRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		slog.Error("Database error", "operation", "get_item", "item_id", id, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if item == nil {
		c.Status(http.StatusNotFound)
		return
	}

	companions, err := h.companionRepo.ListByItem(c.Request.Context(), id)
	if err != nil {
		slog.Error("Database error", "operation", "list_companions", "item_id", id, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"item":       item,
		"companions": companions,
	})
}
