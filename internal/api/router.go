package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRouter initializes the Gin router and sets up the routes
func SetupRouter(h *Handler, corsOrigin string, development bool) *gin.Engine {
	r := gin.New()
	if development {
		r.Use(gin.Logger())
	}
	r.Use(Recovery(), CORSMiddleware(corsOrigin), ErrorMiddleware())

	r.GET("/health", h.Health)
	r.GET("/ws", h.WebSocket)

	api := r.Group("/api")

	// Public routes
	api.POST("/auth/signup", h.Signup)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/forgot-password", h.ForgotPassword)
	api.POST("/auth/reset-password", h.ResetPassword)
	api.POST("/admin/login", h.AdminLogin)
	api.GET("/settings/public", h.PublicSettings)

	// Either role
	shared := api.Group("", RequireAny(h.Auth))
	shared.GET("/tasks", h.ListTasks)

	// User routes
	user := api.Group("", RequireUser(h.Auth))
	user.POST("/tasks/:id/complete", h.CompleteTask)
	user.POST("/mining/start", h.StartMining)
	user.POST("/mining/boost", h.BoostMining)
	user.POST("/mining/complete", h.CompleteMining)
	user.GET("/mining/session/:id", h.GetSession)
	user.GET("/mining/sessions", h.ListSessions)
	user.GET("/withdrawals", h.ListWithdrawals)
	user.POST("/withdrawals", h.RequestWithdrawal)
	user.GET("/notifications", h.ListNotifications)
	user.PUT("/notifications/read-all", h.MarkAllNotificationsRead)
	user.PUT("/notifications/:id/read", h.MarkNotificationRead)
	user.DELETE("/notifications/:id", h.DeleteNotification)
	user.GET("/users/profile", h.GetProfile)
	user.PUT("/users/profile", h.UpdateProfile)
	user.DELETE("/users/profile", h.DeleteProfile)
	user.PUT("/users/change-password", h.ChangePassword)
	user.GET("/users/referrals", h.ListReferrals)
	user.GET("/announcements", h.ListAnnouncements)

	// Admin routes
	admin := api.Group("", RequireAdmin(h.Auth))
	admin.POST("/tasks", h.CreateTask)
	admin.PUT("/tasks/:id", h.UpdateTask)
	admin.DELETE("/tasks/:id", h.DeleteTask)
	admin.PUT("/withdrawals/:id/process", h.ProcessWithdrawal)
	admin.POST("/notifications", h.SendNotification)
	admin.GET("/admin/withdrawals", h.AdminListWithdrawals)
	admin.GET("/admin/stats", h.Stats)
	admin.GET("/admin/settings", h.PublicSettings)
	admin.PUT("/admin/settings", h.UpdateSettings)
	admin.GET("/admin/users", h.ListUsers)
	admin.PUT("/admin/users/:id/balance", h.SetUserBalance)
	admin.GET("/admin/announcements", h.AdminListAnnouncements)
	admin.POST("/admin/announcements", h.CreateAnnouncement)
	admin.PUT("/admin/announcements/:id", h.UpdateAnnouncement)
	admin.DELETE("/admin/announcements/:id", h.DeleteAnnouncement)

	return r
}
