package routes

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"recipe-vault-backend/internal/config"
	"recipe-vault-backend/internal/store"
	"recipe-vault-backend/middleware"
	"recipe-vault-backend/models"
	"recipe-vault-backend/services"
	"recipe-vault-backend/utils"
)

// Deps bundles everything the HTTP surface needs. All state lives in
// the object store and Redis; handlers hold no state of their own.
type Deps struct {
	Config  *config.Config
	Objects store.ObjectStore
	Catalog *store.VersionedStore[models.Recipe]

	Status  *services.StatusService
	Deleter *services.AtomicDeleter
	Images  *services.ImageService
	Export  *services.ExportService
	Sweeper *services.Sweeper

	Queue *asynq.Client
	Redis *redis.Client
	Auth  *middleware.AuthMiddleware
}

// Setup registers all routes.
func Setup(router *gin.Engine, d Deps) {
	newWindow := time.Duration(d.Config.NewRecipeHours) * time.Hour

	router.GET("/health", Health(d.Objects, d.Redis, d.Config.CatalogKey))

	router.POST("/auth/login", Login(d.Config, d.Auth))

	router.GET("/recipes", ListRecipes(d.Catalog, newWindow))
	router.GET("/upload-status/:job_id", CheckUploadStatus(d.Status))
	router.POST("/upload", HandleUpload(d.Config, d.Objects, d.Status, d.Queue))
	router.DELETE("/recipe/:key", DeleteRecipe(d.Deleter, d.Images))
	router.POST("/recipe/:key/image", SelectRecipeImage(d.Catalog, d.Images, d.Config.MaxRetries))
	router.GET("/api/config", GetClientConfig(d.Config))

	admin := router.Group("/", d.Auth.RequireAuth())
	admin.GET("/export", HandleExport(d.Export))
	admin.POST("/admin/sweep", RunSweep(d.Sweeper))
}

// Health reports liveness plus reachability of the two backing
// services. A missing catalog document is healthy; it just hasn't been
// bootstrapped yet.
func Health(objects store.ObjectStore, rdb *redis.Client, catalogKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		storeStatus := "ok"
		if _, _, err := objects.Get(ctx, catalogKey); err != nil && !errors.Is(err, store.ErrNotFound) {
			storeStatus = "unreachable"
		}

		redisStatus := "ok"
		if rdb != nil {
			if _, err := rdb.Ping(ctx).Result(); err != nil {
				redisStatus = "unreachable"
			}
		}

		status := http.StatusOK
		overall := "healthy"
		if storeStatus != "ok" || redisStatus != "ok" {
			status = http.StatusServiceUnavailable
			overall = "degraded"
		}

		c.JSON(status, gin.H{
			"status":    overall,
			"store":     storeStatus,
			"redis":     redisStatus,
			"timestamp": time.Now().UTC(),
		})
	}
}

// RunSweep triggers an on-demand index reconciliation.
func RunSweep(sweeper *services.Sweeper) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := sweeper.Run(c.Request.Context()); err != nil {
			utils.RespondWithInternalError(c, "Sweep failed", gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Sweep completed"})
	}
}
