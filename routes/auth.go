package routes

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"recipe-vault-backend/internal/config"
	"recipe-vault-backend/internal/logger"
	"recipe-vault-backend/middleware"
	"recipe-vault-backend/utils"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates the admin and returns a bearer token. There is a
// single admin identity; the hash lives in config, not in any user
// store.
func Login(cfg *config.Config, auth *middleware.AuthMiddleware) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Email and password are required", nil)
			return
		}

		if !strings.EqualFold(req.Email, cfg.AdminEmail) {
			utils.RespondWithUnauthorized(c, "Invalid credentials")
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(cfg.AdminPasswordHash), []byte(req.Password)); err != nil {
			logger.Warn("failed admin login attempt", "ip", c.ClientIP())
			utils.RespondWithUnauthorized(c, "Invalid credentials")
			return
		}

		token, err := auth.IssueToken(req.Email)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to issue token", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"token_type": "Bearer",
			"expires_in": cfg.JWTExpiresIn,
		})
	}
}
