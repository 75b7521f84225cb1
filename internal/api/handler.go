package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SIMPLYBOYS/sage_mining/internal/admin"
	"github.com/SIMPLYBOYS/sage_mining/internal/auth"
	"github.com/SIMPLYBOYS/sage_mining/internal/errors"
	"github.com/SIMPLYBOYS/sage_mining/internal/mining"
	"github.com/SIMPLYBOYS/sage_mining/internal/notify"
	"github.com/SIMPLYBOYS/sage_mining/internal/referral"
	"github.com/SIMPLYBOYS/sage_mining/internal/settings"
	"github.com/SIMPLYBOYS/sage_mining/internal/tasks"
	"github.com/SIMPLYBOYS/sage_mining/internal/users"
	"github.com/SIMPLYBOYS/sage_mining/internal/websocket"
	"github.com/SIMPLYBOYS/sage_mining/internal/withdrawal"
)

// Handler holds the services behind the HTTP routes.
type Handler struct {
	Auth          *auth.Manager
	Users         *users.Service
	Tasks         *tasks.Catalog
	Mining        *mining.Engine
	Withdrawals   *withdrawal.Queue
	Referrals     *referral.Service
	Notifier      *notify.Notifier
	Announcements *notify.Announcements
	Settings      *settings.Service
	Admin         *admin.Service
	Hub           *websocket.Hub
}

func ok(c *gin.Context, status int, body gin.H) {
	body["success"] = true
	c.JSON(status, body)
}

// bind decodes the JSON body into req, reporting message on malformed input.
func bind(c *gin.Context, req interface{}, message string) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.Error(errors.Validation(message))
		return false
	}
	return true
}

func (h *Handler) Health(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"status": "ok"})
}

// Auth

func (h *Handler) Signup(c *gin.Context) {
	var req users.SignupInput
	if !bind(c, &req, "All fields are required") {
		return
	}
	session, err := h.Users.Signup(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"user": session.User, "token": session.Token})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req, "Email and password are required") {
		return
	}
	session, err := h.Users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{"user": session.User, "token": session.Token})
}

func (h *Handler) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if !bind(c, &req, "Email is required") {
		return
	}
	if _, err := h.Users.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Password reset email sent"})
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if !bind(c, &req, "Reset token and new password are required") {
		return
	}
	if err := h.Users.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Password reset successfully"})
}

func (h *Handler) AdminLogin(c *gin.Context) {
	var req struct {
		Password string `json:"password"`
	}
	if !bind(c, &req, "Password is required") {
		return
	}
	token, err := h.Admin.Login(req.Password)
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{"token": token})
}

// Tasks

func (h *Handler) ListTasks(c *gin.Context) {
	list, err := h.Tasks.List(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{"tasks": list})
}

func (h *Handler) CreateTask(c *gin.Context) {
	var req tasks.Input
	if !bind(c, &req, "Invalid task") {
		return
	}
	task, err := h.Tasks.Create(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"task": task})
}

func (h *Handler) UpdateTask(c *gin.Context) {
	var req tasks.Update
	if !bind(c, &req, "Invalid task") {
		return
	}
	task, err := h.Tasks.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{"task": task})
}

func (h *Handler) DeleteTask(c *gin.Context) {
	if err := h.Tasks.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Task deleted"})
}

func (h *Handler) CompleteTask(c *gin.Context) {
	completion, err := h.Mining.CompleteTask(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"reward":         completion.Reward,
		"newBalance":     completion.NewBalance,
		"tasksCompleted": completion.TasksCompleted,
	})
}

// Mining

type sessionRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

func (h *Handler) StartMining(c *gin.Context) {
	var req struct {
		TaskID string `json:"taskId" binding:"required"`
	}
	if !bind(c, &req, "Task ID is required") {
		return
	}
	session, err := h.Mining.Start(c.Request.Context(), currentUserID(c), req.TaskID)
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"session": session})
}

func (h *Handler) BoostMining(c *gin.Context) {
	var req sessionRequest
	if !bind(c, &req, "Session ID is required") {
		return
	}
	session, err := h.Mining.Boost(c.Request.Context(), currentUserID(c), req.SessionID)
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{"session": session, "newReward": session.Reward, "boostCount": session.BoostCount})
}

func (h *Handler) CompleteMining(c *gin.Context) {
	var req sessionRequest
	if !bind(c, &req, "Session ID is required") {
		return
	}
	completion, err := h.Mining.Complete(c.Request.Context(), currentUserID(c), req.SessionID)
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"reward":           completion.Reward,
		"newBalance":       completion.NewBalance,
		"tasksCompleted":   completion.TasksCompleted,
		"alreadyCompleted": completion.AlreadyCompleted,
	})
}

func (h *Handler) GetSession(c *gin.Context) {
	session, err := h.Mining.Session(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{"session": session})
}

// ListSessions returns active sessions, or all of them with ?all=true.
func (h *Handler) ListSessions(c *gin.Context) {
	activeOnly := c.Query("all") != "true"
	sessions, err := h.Mining.Sessions(c.Request.Context(), currentUserID(c), activeOnly)
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{"sessions": sessions})
}

// Withdrawals

func (h *Handler) ListWithdrawals(c *gin.Context) {
	list, err := h.Withdrawals.ListForUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{"withdrawals": list})
}

func (h *Handler) RequestWithdrawal(c *gin.Context) {
	var req struct {
		Amount int64 `json:"amount"`
	}
	if !bind(c, &req, "Valid amount is required") {
		return
	}
	w, balance, err := h.Withdrawals.Request(c.Request.Context(), currentUserID(c), req.Amount)
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"withdrawal": w, "newBalance": balance})
}

func (h *Handler) ProcessWithdrawal(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
		Reason string `json:"reason"`
	}
	if !bind(c, &req, "Status is required") {
		return
	}
	w, err := h.Withdrawals.Process(c.Request.Context(), c.Param("id"), req.Status, req.Reason)
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{"withdrawal": w})
}

func (h *Handler) AdminListWithdrawals(c *gin.Context) {
	list, err := h.Withdrawals.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{"withdrawals": list})
}

// Notifications

func (h *Handler) ListNotifications(c *gin.Context) {
	list, err := h.Notifier.List(c.Request.Context(), currentUserID(c))
	if err != nil {
		c.Error(err)
		return
	}
	unread := 0
	for _, n := range list {
		if !n.Read {
			unread++
		}
	}
	ok(c, http.StatusOK, gin.H{"notifications": list, "unreadCount": unread})
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	if err := h.Notifier.MarkRead(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{})
}

func (h *Handler) MarkAllNotificationsRead(c *gin.Context) {
	n, err := h.Notifier.MarkAllRead(c.Request.Context(), currentUserID(c))
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{"updated": n})
}

func (h *Handler) DeleteNotification(c *gin.Context) {
	if err := h.Notifier.Delete(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{})
}

func (h *Handler) SendNotification(c *gin.Context) {
	var req admin.Message
	if !bind(c, &req, "Title and message are required") {
		return
	}
	n, err := h.Admin.Send(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"recipients": n})
}

// Users

func (h *Handler) GetProfile(c *gin.Context) {
	user, err := h.Users.Profile(c.Request.Context(), currentUserID(c))
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{"user": user, "balanceUSD": h.Settings.USDValue(user.TokenBalance)})
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var req struct {
		FullName string `json:"fullName"`
		WalletID string `json:"walletId"`
	}
	if !bind(c, &req, "Invalid profile") {
		return
	}
	user, err := h.Users.UpdateProfile(c.Request.Context(), currentUserID(c), req.FullName, req.WalletID)
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{"user": user})
}

func (h *Handler) DeleteProfile(c *gin.Context) {
	if err := h.Users.DeleteAccount(c.Request.Context(), currentUserID(c)); err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Account deleted"})
}

func (h *Handler) ChangePassword(c *gin.Context) {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !bind(c, &req, "Current password and new password are required") {
		return
	}
	if err := h.Users.ChangePassword(c.Request.Context(), currentUserID(c), req.CurrentPassword, req.NewPassword); err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Password changed successfully"})
}

func (h *Handler) ListReferrals(c *gin.Context) {
	summary, err := h.Referrals.ListForReferrer(c.Request.Context(), currentUserID(c))
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"referralCode":       summary.ReferralCode,
		"referrals":          summary.Referrals,
		"totalReferrals":     summary.TotalReferrals,
		"completedReferrals": summary.CompletedReferrals,
		"rewardsEarned":      summary.RewardsEarned,
	})
}

// Announcements

func (h *Handler) ListAnnouncements(c *gin.Context) {
	list, err := h.Announcements.ListActive(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{"announcements": list})
}

func (h *Handler) AdminListAnnouncements(c *gin.Context) {
	list, err := h.Announcements.List(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{"announcements": list})
}

func (h *Handler) CreateAnnouncement(c *gin.Context) {
	var req struct {
		Title   string `json:"title"`
		Message string `json:"message"`
	}
	if !bind(c, &req, "Title and message are required") {
		return
	}
	a, err := h.Announcements.Create(c.Request.Context(), req.Title, req.Message)
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"announcement": a})
}

func (h *Handler) UpdateAnnouncement(c *gin.Context) {
	var req notify.AnnouncementUpdate
	if !bind(c, &req, "Invalid announcement") {
		return
	}
	a, err := h.Announcements.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{"announcement": a})
}

func (h *Handler) DeleteAnnouncement(c *gin.Context) {
	if err := h.Announcements.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{})
}

// Settings and admin

func (h *Handler) PublicSettings(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"settings": h.Settings.Get()})
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	var req settings.Update
	if !bind(c, &req, "Invalid settings") {
		return
	}
	updated, err := h.Settings.Update(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{"settings": updated})
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.Admin.Stats(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{"stats": stats})
}

func (h *Handler) ListUsers(c *gin.Context) {
	list, err := h.Admin.Users(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{"users": list})
}

func (h *Handler) SetUserBalance(c *gin.Context) {
	var req struct {
		NewBalance *int64 `json:"newBalance"`
	}
	if !bind(c, &req, "Valid new balance is required") {
		return
	}
	if req.NewBalance == nil {
		c.Error(errors.Validation("Valid new balance is required"))
		return
	}
	user, err := h.Admin.SetBalance(c.Request.Context(), c.Param("id"), *req.NewBalance)
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{"user": user})
}

// WebSocket upgrades an authenticated user connection. Browsers cannot set
// headers on websocket requests, so ?token= is accepted as well.
func (h *Handler) WebSocket(c *gin.Context) {
	token, found := auth.TokenFromRequest(c.Request)
	if !found {
		token = c.Query("token")
	}
	claims, err := authenticate(h.Auth, token, auth.RoleUser)
	if err != nil {
		c.Error(err)
		return
	}
	h.Hub.HandleWebSocket(c.Writer, c.Request, claims.Subject)
}
