package routes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"recipe-vault-backend/internal/config"
	"recipe-vault-backend/internal/logger"
	"recipe-vault-backend/internal/store"
	"recipe-vault-backend/models"
	"recipe-vault-backend/services"
	"recipe-vault-backend/utils"
)

// ListRecipes returns the whole catalog, annotating recipes uploaded
// within the configured window as new.
func ListRecipes(catalog *store.VersionedStore[models.Recipe], newWindow time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		recipes, _, err := catalog.Load(c.Request.Context())
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load catalog", nil)
			return
		}

		cutoff := time.Now().UTC().Add(-newWindow)
		for key, recipe := range recipes {
			if uploaded, err := time.Parse(time.RFC3339, recipe.UploadedAt); err == nil && uploaded.After(cutoff) {
				recipe.IsNew = true
				recipes[key] = recipe
			}
		}

		c.JSON(http.StatusOK, recipes)
	}
}

// DeleteRecipe removes a recipe from the catalog and the embedding
// index, plus its re-hosted image. Deleting an already-gone key is a
// success: the client wanted it gone and it is.
func DeleteRecipe(deleter *services.AtomicDeleter, images *services.ImageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		if _, err := strconv.Atoi(key); err != nil {
			utils.RespondWithError(c, http.StatusBadRequest, "invalid_recipe_key",
				"Recipe key must be numeric", nil)
			return
		}

		if err := deleter.Delete(c.Request.Context(), key); err != nil {
			if errors.Is(err, services.ErrRetryBudgetExhausted) {
				utils.RespondWithConflict(c, "Catalog is busy, please retry the delete")
				return
			}
			utils.RespondWithInternalError(c, "Failed to delete recipe", nil)
			return
		}

		// The image is a side asset; its absence never fails the delete.
		if images != nil {
			if err := images.Delete(c.Request.Context(), key); err != nil {
				logger.Warn("failed to delete recipe image", "key", key, "error", err.Error())
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": fmt.Sprintf("Recipe %s deleted successfully", key),
		})
	}
}

type selectImageRequest struct {
	ImageURL string `json:"imageUrl"`
}

// SelectRecipeImage records the user's pick from the image candidates:
// the source image is fetched and re-hosted, then the recipe is updated
// under the usual bounded conditional-write loop. A permanently failing
// catalog update rolls the stored image back.
func SelectRecipeImage(catalog *store.VersionedStore[models.Recipe], images *services.ImageService, maxRetries int) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		ctx := c.Request.Context()

		var req selectImageRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.ImageURL == "" {
			utils.RespondWithBadRequest(c, "imageUrl is required", nil)
			return
		}

		current, _, err := catalog.Load(ctx)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load catalog", nil)
			return
		}
		if _, exists := current[key]; !exists {
			utils.RespondWithNotFound(c, "Recipe not found")
			return
		}

		stored, err := images.StoreFromURL(ctx, req.ImageURL, key)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to store recipe image", gin.H{"error": err.Error()})
			return
		}
		if stored.UsedFallback {
			logger.Warn("image selection fell back to placeholder",
				"key", key, "fetch_error", stored.FetchError)
		}

		for attempt := 0; attempt < maxRetries; attempt++ {
			snapshot, version, err := catalog.Load(ctx)
			if err != nil {
				utils.RespondWithInternalError(c, "Failed to load catalog", nil)
				return
			}

			recipe, exists := snapshot[key]
			if !exists {
				// Deleted while we were fetching; drop the stored image.
				rollbackImage(ctx, images, key)
				utils.RespondWithNotFound(c, "Recipe not found")
				return
			}

			recipe.ImageURL = req.ImageURL
			recipe.ImageSearchResults = nil

			working := make(map[string]models.Recipe, len(snapshot))
			for k, v := range snapshot {
				working[k] = v
			}
			working[key] = recipe

			saved, err := catalog.Save(ctx, working, version)
			if err != nil {
				rollbackImage(ctx, images, key)
				utils.RespondWithInternalError(c, "Failed to update recipe", nil)
				return
			}
			if saved {
				c.JSON(http.StatusOK, gin.H{"success": true, "recipe": recipe})
				return
			}

			if attempt < maxRetries-1 {
				if err := store.Sleep(ctx, store.Backoff(attempt)); err != nil {
					rollbackImage(ctx, images, key)
					utils.RespondWithInternalError(c, "Request cancelled", nil)
					return
				}
			}
		}

		rollbackImage(ctx, images, key)
		utils.RespondWithConflict(c, "Catalog is busy, please retry the image selection")
	}
}

func rollbackImage(ctx context.Context, images *services.ImageService, key string) {
	if err := images.Delete(ctx, key); err != nil {
		logger.Warn("image rollback failed", "key", key, "error", err.Error())
	}
}

// GetClientConfig exposes the settings the frontend needs.
func GetClientConfig(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"similarity_threshold": cfg.SimilarityThreshold,
			"max_upload_files":     cfg.MaxUploadFiles,
			"max_file_size":        cfg.MaxFileSize,
			"new_recipe_hours":     cfg.NewRecipeHours,
		})
	}
}
