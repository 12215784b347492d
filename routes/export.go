package routes

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"recipe-vault-backend/services"
	"recipe-vault-backend/utils"
)

// HandleExport renders the catalog as a download. The format query
// accepts "json", "excel" or "both" (excel by default).
func HandleExport(export *services.ExportService) gin.HandlerFunc {
	return func(c *gin.Context) {
		format := c.DefaultQuery("format", "excel")
		switch format {
		case "json", "excel", "both":
		default:
			utils.RespondWithBadRequest(c, "format must be json, excel or both", nil)
			return
		}

		result, err := export.Export(c.Request.Context(), format)
		if err != nil {
			utils.RespondWithInternalError(c, "Export failed", gin.H{"error": err.Error()})
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		c.Header("X-Record-Count", fmt.Sprintf("%d", result.RecordCount))
		c.Data(http.StatusOK, result.ContentType, result.Data)
	}
}
