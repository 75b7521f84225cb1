package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SIMPLYBOYS/sage_mining/internal/admin"
	"github.com/SIMPLYBOYS/sage_mining/internal/auth"
	"github.com/SIMPLYBOYS/sage_mining/internal/db"
	"github.com/SIMPLYBOYS/sage_mining/internal/errors"
	"github.com/SIMPLYBOYS/sage_mining/internal/mailer"
	"github.com/SIMPLYBOYS/sage_mining/internal/mining"
	"github.com/SIMPLYBOYS/sage_mining/internal/notify"
	"github.com/SIMPLYBOYS/sage_mining/internal/referral"
	"github.com/SIMPLYBOYS/sage_mining/internal/settings"
	"github.com/SIMPLYBOYS/sage_mining/internal/tasks"
	"github.com/SIMPLYBOYS/sage_mining/internal/users"
	"github.com/SIMPLYBOYS/sage_mining/internal/websocket"
	"github.com/SIMPLYBOYS/sage_mining/internal/withdrawal"
)

const (
	adminPassword = "admin-secret"
	testWallet    = "0x52908400098527886E0F7030069857D2E4169EE7"
)

type testServer struct {
	router *gin.Engine
	store  *db.MemoryDB
	h      *Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := db.NewMemoryDB()
	am := auth.NewManager("test-secret", time.Hour)
	hub := websocket.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	notifier := notify.NewNotifier(store, hub)
	cfg := settings.NewService(store)
	refs := referral.NewService(store, notifier, 100)
	adm, err := admin.NewService(store, am, adminPassword, cfg, notifier)
	require.NoError(t, err)

	h := &Handler{
		Auth:          am,
		Users:         users.NewService(store, am, refs, mailer.LogMailer{}, time.Hour),
		Tasks:         tasks.NewCatalog(store, notifier),
		Mining:        mining.NewEngine(store, mining.SteppedBoost{Cap: 20, StepPercent: 10}, notifier, refs, 24*time.Hour),
		Withdrawals:   withdrawal.NewQueue(store, cfg, notifier, mailer.LogMailer{}),
		Referrals:     refs,
		Notifier:      notifier,
		Announcements: notify.NewAnnouncements(store, notifier),
		Settings:      cfg,
		Admin:         adm,
		Hub:           hub,
	}
	return &testServer{router: SetupRouter(h, "*", false), store: store, h: h}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	return w.Code, response
}

func errorCode(response map[string]interface{}) string {
	e, _ := response["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}

func (s *testServer) signup(t *testing.T, name, email, referralCode string) (string, map[string]interface{}) {
	t.Helper()
	status, resp := s.do(t, "POST", "/api/auth/signup", "", gin.H{
		"fullName": name, "email": email, "password": "password1", "walletId": testWallet, "referralCode": referralCode,
	})
	require.Equal(t, http.StatusCreated, status, resp)
	return resp["token"].(string), resp["user"].(map[string]interface{})
}

func (s *testServer) adminToken(t *testing.T) string {
	t.Helper()
	status, resp := s.do(t, "POST", "/api/admin/login", "", gin.H{"password": adminPassword})
	require.Equal(t, http.StatusOK, status, resp)
	return resp["token"].(string)
}

func (s *testServer) createTask(t *testing.T, admin string, body gin.H) string {
	t.Helper()
	status, resp := s.do(t, "POST", "/api/tasks", admin, body)
	require.Equal(t, http.StatusCreated, status, resp)
	return resp["task"].(map[string]interface{})["id"].(string)
}

// finishCountdown moves a session's end time into the past.
func (s *testServer) finishCountdown(t *testing.T, sessionID string) {
	t.Helper()
	ctx := context.Background()
	session, err := s.store.GetSession(ctx, sessionID)
	require.NoError(t, err)
	session.EndTime = time.Now().Add(-time.Second)
	require.NoError(t, s.store.BoostSession(ctx, session, session.BoostCount))
}

func TestErrorMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	testCases := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"validation", errors.Validation("Title and message are required"), 400, "VALIDATION_ERROR", "Title and message are required"},
		{"unauthorized", errMissingToken, 401, "UNAUTHORIZED", "Invalid or missing authentication token"},
		{"forbidden", errAdminOnly, 403, "FORBIDDEN", "Admin access required"},
		{"not found", &errors.NotFoundError{Resource: "session", Identifier: "x"}, 404, "SESSION_NOT_FOUND", "Session not found"},
		{"conflict", errors.ErrSessionAlreadyActive, 409, "SESSION_EXISTS", "Mining session already active for this task"},
		{"insufficient", &errors.InsufficientBalanceError{Requested: 5, Available: 1}, 409, "INSUFFICIENT_BALANCE", "Insufficient balance"},
		{"database", &errors.DatabaseError{Operation: "query", Err: fmt.Errorf("boom")}, 500, "SERVER_ERROR", "Internal server error"},
		{"wrapped", fmt.Errorf("outer: %w", errors.ErrUserExists), 409, "USER_EXISTS", "User with this email already exists"},
		{"unknown", fmt.Errorf("boom"), 500, "SERVER_ERROR", "Internal server error"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(ErrorMiddleware())
			r.GET("/", func(c *gin.Context) { c.Error(tc.err) })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

			assert.Equal(t, tc.status, w.Code)
			var response map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, false, response["success"])
			assert.Equal(t, tc.code, errorCode(response))
			assert.Equal(t, tc.message, response["error"].(map[string]interface{})["message"])
		})
	}
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery())
	r.GET("/", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "SERVER_ERROR")
}

func TestHealthAndCORS(t *testing.T) {
	s := newTestServer(t)
	status, resp := s.do(t, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, resp["success"])

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest("OPTIONS", "/api/tasks", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAccountFlow(t *testing.T) {
	s := newTestServer(t)
	token, user := s.signup(t, "Ada Lovelace", "ada@example.com", "")
	assert.Equal(t, "ada@example.com", user["email"])
	assert.Nil(t, user["passwordHash"])

	status, resp := s.do(t, "POST", "/api/auth/signup", "", gin.H{"email": "ada@example.com"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(resp))

	status, resp = s.do(t, "POST", "/api/auth/signup", "", gin.H{
		"fullName": "Ada", "email": "ada@example.com", "password": "password1", "walletId": testWallet,
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "USER_EXISTS", errorCode(resp))

	status, resp = s.do(t, "POST", "/api/auth/login", "", gin.H{"email": "ada@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "INVALID_CREDENTIALS", errorCode(resp))

	status, resp = s.do(t, "GET", "/api/users/profile", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Ada Lovelace", resp["user"].(map[string]interface{})["fullName"])

	status, resp = s.do(t, "PUT", "/api/users/profile", token, gin.H{"fullName": "Ada King"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Ada King", resp["user"].(map[string]interface{})["fullName"])

	status, _ = s.do(t, "PUT", "/api/users/change-password", token, gin.H{"currentPassword": "password1", "newPassword": "changed1"})
	require.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, "POST", "/api/auth/login", "", gin.H{"email": "ada@example.com", "password": "changed1"})
	assert.Equal(t, http.StatusOK, status)

	status, resp = s.do(t, "POST", "/api/auth/forgot-password", "", gin.H{"email": "ghost@example.com"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "USER_NOT_FOUND", errorCode(resp))

	status, resp = s.do(t, "POST", "/api/auth/reset-password", "", gin.H{"token": "bogus", "newPassword": "another1"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_RESET_TOKEN", errorCode(resp))

	status, _ = s.do(t, "DELETE", "/api/users/profile", token, nil)
	require.Equal(t, http.StatusOK, status)
	status, resp = s.do(t, "GET", "/api/users/profile", token, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "USER_NOT_FOUND", errorCode(resp))
}

func TestAuthorization(t *testing.T) {
	s := newTestServer(t)
	userToken, _ := s.signup(t, "Ada Lovelace", "ada@example.com", "")
	adminToken := s.adminToken(t)

	expiring := auth.NewManager("test-secret", -time.Minute)
	expired, err := expiring.GenerateToken("someone", auth.RoleUser)
	require.NoError(t, err)

	testCases := []struct {
		name   string
		method string
		path   string
		token  string
		status int
		code   string
	}{
		{"no token", "GET", "/api/users/profile", "", 401, "UNAUTHORIZED"},
		{"legacy token", "GET", "/api/users/profile", "jwt_1_1700000000", 401, "UNAUTHORIZED"},
		{"expired token", "GET", "/api/users/profile", expired, 401, "TOKEN_EXPIRED"},
		{"user on admin route", "GET", "/api/admin/stats", userToken, 403, "FORBIDDEN"},
		{"admin on user route", "GET", "/api/users/profile", adminToken, 403, "FORBIDDEN"},
		{"wrong admin password", "POST", "/api/admin/login", "", 401, "INVALID_CREDENTIALS"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var body interface{}
			if tc.method == "POST" {
				body = gin.H{"password": "wrong"}
			}
			status, resp := s.do(t, tc.method, tc.path, tc.token, body)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, errorCode(resp))
		})
	}

	for _, token := range []string{userToken, adminToken} {
		status, _ := s.do(t, "GET", "/api/tasks", token, nil)
		assert.Equal(t, http.StatusOK, status)
	}
}

func TestMiningFlow(t *testing.T) {
	s := newTestServer(t)
	adminToken := s.adminToken(t)
	adaToken, ada := s.signup(t, "Ada Lovelace", "ada@example.com", "")
	bobToken, _ := s.signup(t, "Bob Stone", "bob@example.com", ada["referralCode"].(string))
	taskID := s.createTask(t, adminToken, gin.H{"title": "Mine", "description": "Wait", "reward": 500})

	status, resp := s.do(t, "POST", "/api/mining/start", bobToken, gin.H{"taskId": taskID})
	require.Equal(t, http.StatusCreated, status, resp)
	sessionID := resp["session"].(map[string]interface{})["id"].(string)

	status, resp = s.do(t, "POST", "/api/mining/start", bobToken, gin.H{"taskId": taskID})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "SESSION_EXISTS", errorCode(resp))

	status, resp = s.do(t, "POST", "/api/mining/start", bobToken, gin.H{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(resp))

	status, resp = s.do(t, "POST", "/api/mining/boost", bobToken, gin.H{"sessionId": sessionID})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(550), resp["newReward"])

	status, resp = s.do(t, "POST", "/api/mining/complete", bobToken, gin.H{"sessionId": sessionID})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "SESSION_NOT_COMPLETE", errorCode(resp))

	status, resp = s.do(t, "GET", "/api/mining/session/"+sessionID, adaToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "SESSION_NOT_FOUND", errorCode(resp))

	s.finishCountdown(t, sessionID)
	status, resp = s.do(t, "POST", "/api/mining/complete", bobToken, gin.H{"sessionId": sessionID})
	require.Equal(t, http.StatusOK, status, resp)
	assert.Equal(t, float64(550), resp["reward"])
	assert.Equal(t, float64(550), resp["newBalance"])
	assert.Equal(t, false, resp["alreadyCompleted"])

	status, resp = s.do(t, "POST", "/api/mining/complete", bobToken, gin.H{"sessionId": sessionID})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, resp["alreadyCompleted"])
	assert.Equal(t, float64(550), resp["newBalance"])

	status, resp = s.do(t, "GET", "/api/users/referrals", adaToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), resp["completedReferrals"])
	assert.Equal(t, float64(100), resp["rewardsEarned"])

	status, resp = s.do(t, "GET", "/api/users/profile", adaToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(100), resp["user"].(map[string]interface{})["tokenBalance"])
}

func TestConcurrentCompletion(t *testing.T) {
	s := newTestServer(t)
	adminToken := s.adminToken(t)
	token, user := s.signup(t, "Ada Lovelace", "ada@example.com", "")
	taskID := s.createTask(t, adminToken, gin.H{"title": "Mine", "description": "Wait", "reward": 300})

	_, resp := s.do(t, "POST", "/api/mining/start", token, gin.H{"taskId": taskID})
	sessionID := resp["session"].(map[string]interface{})["id"].(string)
	s.finishCountdown(t, sessionID)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body, _ := json.Marshal(gin.H{"sessionId": sessionID})
			req := httptest.NewRequest("POST", "/api/mining/complete", bytes.NewReader(body))
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			s.router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusOK, w.Code)
		}()
	}
	wg.Wait()

	u, err := s.store.GetUserByID(context.Background(), user["id"].(string))
	require.NoError(t, err)
	assert.Equal(t, int64(300), u.TokenBalance)
}

func TestOneShotTask(t *testing.T) {
	s := newTestServer(t)
	adminToken := s.adminToken(t)
	token, _ := s.signup(t, "Ada Lovelace", "ada@example.com", "")
	taskID := s.createTask(t, adminToken, gin.H{"title": "Follow", "description": "d", "reward": 50, "type": "twitter", "link": "@sage"})

	status, resp := s.do(t, "POST", "/api/tasks/"+taskID+"/complete", token, nil)
	require.Equal(t, http.StatusOK, status, resp)
	assert.Equal(t, float64(50), resp["newBalance"])

	status, resp = s.do(t, "POST", "/api/tasks/"+taskID+"/complete", token, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "TASK_ALREADY_COMPLETED", errorCode(resp))

	status, resp = s.do(t, "POST", "/api/mining/start", token, gin.H{"taskId": taskID})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_TASK_TYPE", errorCode(resp))

	status, _ = s.do(t, "DELETE", "/api/tasks/"+taskID, adminToken, nil)
	assert.Equal(t, http.StatusOK, status)
	status, resp = s.do(t, "PUT", "/api/tasks/"+taskID, adminToken, gin.H{"title": "x"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "TASK_NOT_FOUND", errorCode(resp))
}

func TestWithdrawalFlow(t *testing.T) {
	s := newTestServer(t)
	adminToken := s.adminToken(t)
	token, user := s.signup(t, "Ada Lovelace", "ada@example.com", "")
	userID := user["id"].(string)

	status, _ := s.do(t, "PUT", "/api/admin/users/"+userID+"/balance", adminToken, gin.H{"newBalance": 150})
	require.Equal(t, http.StatusOK, status)

	status, _ = s.do(t, "PUT", "/api/admin/settings", adminToken, gin.H{"minWithdrawal": 200})
	require.Equal(t, http.StatusOK, status)

	status, resp := s.do(t, "POST", "/api/withdrawals", token, gin.H{"amount": 150})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "MINIMUM_WITHDRAWAL", errorCode(resp))

	status, _ = s.do(t, "PUT", "/api/admin/settings", adminToken, gin.H{"minWithdrawal": 100})
	require.Equal(t, http.StatusOK, status)

	status, resp = s.do(t, "POST", "/api/withdrawals", token, gin.H{"amount": 500})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INSUFFICIENT_BALANCE", errorCode(resp))

	status, resp = s.do(t, "POST", "/api/withdrawals", token, gin.H{"amount": 120})
	require.Equal(t, http.StatusCreated, status, resp)
	assert.Equal(t, float64(30), resp["newBalance"])
	withdrawalID := resp["withdrawal"].(map[string]interface{})["id"].(string)

	status, resp = s.do(t, "GET", "/api/admin/withdrawals?status=pending", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, resp["withdrawals"], 1)

	status, resp = s.do(t, "PUT", "/api/withdrawals/"+withdrawalID+"/process", adminToken, gin.H{"status": "rejected", "reason": "duplicate"})
	require.Equal(t, http.StatusOK, status, resp)
	assert.Equal(t, "rejected", resp["withdrawal"].(map[string]interface{})["status"])

	status, resp = s.do(t, "PUT", "/api/withdrawals/"+withdrawalID+"/process", adminToken, gin.H{"status": "completed"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "WITHDRAWAL_NOT_PENDING", errorCode(resp))

	status, resp = s.do(t, "GET", "/api/users/profile", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(150), resp["user"].(map[string]interface{})["tokenBalance"])

	status, resp = s.do(t, "GET", "/api/withdrawals", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, resp["withdrawals"], 1)
}

func TestNotificationsAndAnnouncements(t *testing.T) {
	s := newTestServer(t)
	adminToken := s.adminToken(t)
	token, user := s.signup(t, "Ada Lovelace", "ada@example.com", "")

	status, resp := s.do(t, "POST", "/api/admin/announcements", adminToken, gin.H{"title": "Maintenance", "message": "Back soon"})
	require.Equal(t, http.StatusCreated, status, resp)
	announcementID := resp["announcement"].(map[string]interface{})["id"].(string)

	status, resp = s.do(t, "POST", "/api/notifications", adminToken, gin.H{"userId": user["id"], "title": "Hello", "message": "Welcome"})
	require.Equal(t, http.StatusCreated, status, resp)
	assert.Equal(t, float64(1), resp["recipients"])

	status, resp = s.do(t, "POST", "/api/notifications", adminToken, gin.H{"title": "", "message": ""})
	assert.Equal(t, http.StatusBadRequest, status)

	status, resp = s.do(t, "GET", "/api/notifications", token, nil)
	require.Equal(t, http.StatusOK, status)
	notes := resp["notifications"].([]interface{})
	require.Len(t, notes, 2)
	assert.Equal(t, float64(2), resp["unreadCount"])
	firstID := notes[0].(map[string]interface{})["id"].(string)

	status, _ = s.do(t, "PUT", "/api/notifications/"+firstID+"/read", token, nil)
	require.Equal(t, http.StatusOK, status)
	_, resp = s.do(t, "GET", "/api/notifications", token, nil)
	assert.Equal(t, float64(1), resp["unreadCount"])

	status, resp = s.do(t, "PUT", "/api/notifications/read-all", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), resp["updated"])

	status, _ = s.do(t, "DELETE", "/api/notifications/"+firstID, token, nil)
	require.Equal(t, http.StatusOK, status)
	_, resp = s.do(t, "GET", "/api/notifications", token, nil)
	assert.Len(t, resp["notifications"], 1)

	status, resp = s.do(t, "GET", "/api/announcements", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, resp["announcements"], 1)

	status, _ = s.do(t, "PUT", "/api/admin/announcements/"+announcementID, adminToken, gin.H{"active": false})
	require.Equal(t, http.StatusOK, status)
	_, resp = s.do(t, "GET", "/api/announcements", token, nil)
	assert.Len(t, resp["announcements"], 0)

	status, _ = s.do(t, "DELETE", "/api/admin/announcements/"+announcementID, adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	_, resp = s.do(t, "GET", "/api/admin/announcements", adminToken, nil)
	assert.Len(t, resp["announcements"], 0)
}

func TestSettingsAndStats(t *testing.T) {
	s := newTestServer(t)
	adminToken := s.adminToken(t)
	_, user := s.signup(t, "Ada Lovelace", "ada@example.com", "")

	status, resp := s.do(t, "GET", "/api/settings/public", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0.1, resp["settings"].(map[string]interface{})["exchangeRate"])

	status, resp = s.do(t, "PUT", "/api/admin/settings", adminToken, gin.H{"adFrequency": 0})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.do(t, "PUT", "/api/admin/settings", adminToken, gin.H{"exchangeRate": "0.25"})
	require.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, "PUT", "/api/admin/users/"+user["id"].(string)+"/balance", adminToken, gin.H{"newBalance": 1000})
	require.Equal(t, http.StatusOK, status)

	status, resp = s.do(t, "GET", "/api/admin/stats", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	stats := resp["stats"].(map[string]interface{})
	assert.Equal(t, float64(1), stats["totalUsers"])
	assert.Equal(t, float64(250), stats["totalBalanceUSD"])

	status, resp = s.do(t, "PUT", "/api/admin/users/"+user["id"].(string)+"/balance", adminToken, gin.H{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, resp = s.do(t, "GET", "/api/admin/users", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, resp["users"], 1)
}

func TestWebSocketPush(t *testing.T) {
	s := newTestServer(t)
	adminToken := s.adminToken(t)
	token, user := s.signup(t, "Ada Lovelace", "ada@example.com", "")

	server := httptest.NewServer(s.router)
	t.Cleanup(server.Close)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	_, resp, err := gorilla.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	ws, _, err := gorilla.DefaultDialer.Dial(wsURL+"?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	require.Eventually(t, func() bool { return s.h.Hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	status, _ := s.do(t, "PUT", "/api/admin/users/"+user["id"].(string)+"/balance", adminToken, gin.H{"newBalance": 42})
	require.Equal(t, http.StatusOK, status)

	seen := map[string]bool{}
	for len(seen) < 2 {
		ws.SetReadDeadline(time.Now().Add(time.Second))
		_, message, err := ws.ReadMessage()
		require.NoError(t, err)
		var event map[string]interface{}
		require.NoError(t, json.Unmarshal(message, &event))
		seen[event["type"].(string)] = true
	}
	assert.True(t, seen["notification"])
	assert.True(t, seen["balance_update"])
}
