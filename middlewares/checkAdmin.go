package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func CheckAdmin(c *gin.Context) {
	if !c.GetBool("admin") {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
		return
	}
}
