package controllers

import (
	"errors"
	"net/http"

	"github.com/CarMarket/pushsync/initializers"
	"github.com/CarMarket/pushsync/models"
	"github.com/CarMarket/pushsync/platform"
	"github.com/CarMarket/pushsync/tokentable"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StorePushToken registers the caller's device token. Other active tokens
// of the same device type are deactivated; the row is upserted signed in.
func StorePushToken(c *gin.Context) {
	userID := c.MustGet("currentUserID").(string)

	var request models.PushTokenRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if !platform.ValidToken(request.Token) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid push token format"})
		return
	}

	ctx := c.Request.Context()
	table := tokentable.NewPostgresTable(initializers.DB)

	if err := table.DeactivateOthers(ctx, userID, request.DeviceType, request.Token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store push token", "details": err.Error()})
		return
	}

	row, err := table.Upsert(ctx, models.PushToken{
		UserID:     userID,
		Token:      request.Token,
		DeviceType: request.DeviceType,
		SignedIn:   true,
		Active:     true,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store push token", "details": err.Error()})
		return
	}

	zap.S().Infow("stored push token", "userId", userID, "tokenId", row.ID, "token", platform.Redact(row.Token))
	c.JSON(http.StatusOK, gin.H{"message": "Push token stored successfully", "pushToken": row})
}

// SignOutPushToken marks the device row signed out. The row is kept so a
// later sign-in can reuse it.
func SignOutPushToken(c *gin.Context) {
	userID := c.MustGet("currentUserID").(string)

	var request models.PushTokenSignOutRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	table := tokentable.NewPostgresTable(initializers.DB)
	err := table.SetSignedIn(c.Request.Context(), userID, request.Token, false)
	if errors.Is(err, tokentable.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Push token not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sign out push token", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Push token signed out"})
}

func GetPushToken(c *gin.Context) {
	userID := c.MustGet("currentUserID").(string)

	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token query parameter is required"})
		return
	}

	table := tokentable.NewPostgresTable(initializers.DB)
	row, err := table.Find(c.Request.Context(), userID, token)
	if errors.Is(err, tokentable.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Push token not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load push token", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, row)
}
