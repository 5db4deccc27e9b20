package main

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/CarMarket/pushsync/controllers"
	"github.com/CarMarket/pushsync/initializers"
	"github.com/CarMarket/pushsync/middlewares"
	"github.com/CarMarket/pushsync/realtime"
	"github.com/CarMarket/pushsync/services"
	"github.com/CarMarket/pushsync/tokentable"
)

func init() {
	initializers.InitLogger()
	initializers.LoadEnv()
	initializers.ConnectDB()
	services.InitPushNotificationService(tokentable.NewPostgresTable(initializers.DB))
}

func main() {
	defer zap.L().Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cleanup := services.NewCleanupScheduler(tokentable.NewPostgresTable(initializers.DB))
	if err := cleanup.Start(); err != nil {
		zap.S().Fatalw("failed to schedule token cleanup", "error", err)
	}
	defer cleanup.Stop()

	listener, err := realtime.NewListener(os.Getenv("DB_URL"))
	if err != nil {
		zap.S().Warnw("realtime notifications disabled", "error", err)
	} else {
		defer listener.Close()
		go listener.Run(ctx)
	}

	router := gin.Default()

	getKey := func(c *gin.Context) string {
		if gin.Mode() == gin.DebugMode {
			return c.FullPath()
		}
		return c.ClientIP()
	}

	router.GET("/ping", middlewares.RateLimitMiddleware(2, 2, getKey), controllers.Ping)

	auth := router.Group("/")
	auth.Use(middlewares.CheckAuth)
	auth.Use(middlewares.RateLimitMiddleware(10, 10, getKey))
	{
		// push token routes
		auth.POST("/users/push-token", controllers.StorePushToken)
		auth.PATCH("/users/push-token/sign-out", controllers.SignOutPushToken)
		auth.GET("/users/push-token", controllers.GetPushToken)

		// notification routes
		auth.GET("/users/:user_id/notifications", controllers.GetUserNotifications)
		auth.GET("/users/:user_id/notifications/unread-count", controllers.GetUnreadNotificationCount)
		auth.PATCH("/users/:user_id/notifications/mark-all-read", controllers.MarkAllNotificationsAsRead)
		auth.PATCH("/users/:user_id/notifications/:notification_id/read", controllers.MarkNotificationRead)
		if listener != nil {
			auth.GET("/users/:user_id/notifications/stream", controllers.StreamNotifications(listener))
		}

		//admin only routes
		admin := auth.Group("/")
		admin.Use(middlewares.CheckAdmin)
		admin.Use(middlewares.RateLimitMiddleware(5, 5, getKey))
		{
			admin.POST("/notifications/send", controllers.SendPushNotification)
		}
	}

	if err := router.Run(); err != nil {
		zap.S().Fatalw("server stopped", "error", err)
	}
}
