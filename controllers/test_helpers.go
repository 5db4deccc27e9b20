package controllers

import (
	"database/sql"
	"net/http/httptest"
	"testing"

	"github.com/CarMarket/pushsync/initializers"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/gin-gonic/gin"
)

// SetupTestDB creates a mock database and sets it as the global DB for testing
func SetupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}

	originalDB := initializers.DB
	initializers.DB = goqu.New("postgres", db)

	cleanup := func() {
		db.Close()
		initializers.DB = originalDB
	}

	return db, mock, cleanup
}

// SetupTestContext creates a test Gin context with a response recorder
func SetupTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	return c, w
}

// SetAuthenticatedUser sets what the CheckAuth middleware puts in the context
func SetAuthenticatedUser(c *gin.Context, userID string, isAdmin bool) {
	c.Set("currentUserID", userID)
	c.Set("admin", isAdmin)
}
