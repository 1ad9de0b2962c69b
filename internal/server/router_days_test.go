package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/daybook/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/database"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/days"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const dayPayload = `{
	"tasks": [{
		"id": 1,
		"title": "plan week",
		"is_done": false,
		"content": "",
		"create_time": {"year": 2024, "month": 3, "day": 1, "time_stamp": 1709251200000},
		"update_time": {"year": 2024, "month": 3, "day": 1, "time_stamp": 1709251200000},
		"tags": ["work"],
		"children": [{
			"id": 2,
			"title": "draft agenda",
			"create_time": {"year": 2024, "month": 3, "day": 1, "time_stamp": 1709251200000},
			"update_time": {"year": 2024, "month": 3, "day": 1, "time_stamp": 1709251200000}
		}]
	}],
	"notes": [{
		"id": 3,
		"content": "bring laptop",
		"create_time": {"year": 2024, "month": 3, "day": 1, "time_stamp": 1709251200000},
		"update_time": {"year": 2024, "month": 3, "day": 1, "time_stamp": 1709251200000},
		"tags": []
	}],
	"task_tag": ["work"],
	"note_tag": ["misc"],
	"time": 1709300000000
}`

type testServer struct {
	handler http.Handler
	days    *days.Service
	db      *gorm.DB
}

func newTestServer(t *testing.T, policy days.FreshnessPolicy) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "daybook.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	accounts, err := users.NewService(users.ServiceConfig{Database: db, HashCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("failed to build account service: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("router-test-secret"),
		Issuer:        "daybook-auth",
		Audience:      "daybook-api",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to build token issuer: %v", err)
	}
	daysService, err := days.NewService(days.ServiceConfig{Database: db, FreshnessPolicy: policy})
	if err != nil {
		t.Fatalf("failed to build days service: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Accounts:       accounts,
		Tokens:         issuer,
		DaysService:    daysService,
		Logger:         zap.NewNop(),
		AllowedOrigins: []string{"*"},
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return testServer{handler: handler, days: daysService, db: db}
}

func (s testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func (s testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	credentials := `{"username":"` + username + `","password":"` + password + `"}`
	if recorder := s.do(t, http.MethodPost, "/register", "", credentials); recorder.Code != http.StatusCreated {
		t.Fatalf("register: unexpected status %d body %s", recorder.Code, recorder.Body.String())
	}
	recorder := s.do(t, http.MethodPost, "/login", "", credentials)
	if recorder.Code != http.StatusOK {
		t.Fatalf("login: unexpected status %d body %s", recorder.Code, recorder.Body.String())
	}
	var response loginResponsePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("login: decode response: %v", err)
	}
	if response.Status != "success" || response.Token == "" || response.TokenType != "Bearer" || response.ExpiresIn != 3600 {
		t.Fatalf("login: unexpected response %+v", response)
	}
	return response.Token
}

func TestNewHTTPHandlerRequiresDependencies(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); err != errMissingAccounts {
		t.Fatalf("expected missing accounts error, got %v", err)
	}
	if _, err := NewHTTPHandler(Dependencies{Accounts: stubAccountService{}}); err != errMissingTokenManager {
		t.Fatalf("expected missing token manager error, got %v", err)
	}
	if _, err := NewHTTPHandler(Dependencies{Accounts: stubAccountService{}, Tokens: stubTokenManager{}}); err != errMissingDaysService {
		t.Fatalf("expected missing days service error, got %v", err)
	}
}

func TestRegisterAndLoginResponses(t *testing.T) {
	server := newTestServer(t, days.FreshnessTrust)
	server.login(t, "alice", "wonderland")

	duplicate := server.do(t, http.MethodPost, "/register", "", `{"username":"alice","password":"again"}`)
	if duplicate.Code != http.StatusConflict {
		t.Fatalf("expected conflict for duplicate username, got %d", duplicate.Code)
	}

	wrong := server.do(t, http.MethodPost, "/login", "", `{"username":"alice","password":"nope"}`)
	if wrong.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for wrong password, got %d", wrong.Code)
	}
	if wrong.Body.String() != `{"error":"invalid_credentials","status":"failed"}` {
		t.Fatalf("unexpected failed login body: %s", wrong.Body.String())
	}

	malformed := server.do(t, http.MethodPost, "/register", "", `{"username":`)
	if malformed.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request for malformed body, got %d", malformed.Code)
	}
}

func TestSyncRoutesRequireBearerToken(t *testing.T) {
	server := newTestServer(t, days.FreshnessTrust)
	recorder := server.do(t, http.MethodGet, "/sync/days", "", "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d", recorder.Code)
	}
}

func TestPushPullListAndCheckDay(t *testing.T) {
	server := newTestServer(t, days.FreshnessTrust)
	token := server.login(t, "alice", "wonderland")

	push := server.do(t, http.MethodPut, "/sync/days/2024-03-01", token, dayPayload)
	if push.Code != http.StatusOK {
		t.Fatalf("push: unexpected status %d body %s", push.Code, push.Body.String())
	}
	if push.Body.String() != `{"status":"success"}` {
		t.Fatalf("push: unexpected body %s", push.Body.String())
	}

	pull := server.do(t, http.MethodGet, "/sync/days/2024-03-01", token, "")
	if pull.Code != http.StatusOK {
		t.Fatalf("pull: unexpected status %d body %s", pull.Code, pull.Body.String())
	}
	var content days.SyncContent
	if err := json.Unmarshal(pull.Body.Bytes(), &content); err != nil {
		t.Fatalf("pull: decode: %v", err)
	}
	if len(content.Tasks) != 1 || len(content.Tasks[0].Children) != 1 || content.Tasks[0].Children[0].Title != "draft agenda" {
		t.Fatalf("pull: unexpected tasks %+v", content.Tasks)
	}
	if len(content.Notes) != 1 || content.Notes[0].Content != "bring laptop" {
		t.Fatalf("pull: unexpected notes %+v", content.Notes)
	}
	if content.Time != 1709300000000 {
		t.Fatalf("pull: unexpected stamp %d", content.Time)
	}

	list := server.do(t, http.MethodGet, "/sync/days", token, "")
	if list.Code != http.StatusOK || list.Body.String() != `{"2024-03-01":1709300000000}` {
		t.Fatalf("list: unexpected response %d %s", list.Code, list.Body.String())
	}

	userID, err := days.NewUserID("1")
	if err != nil {
		t.Fatalf("user id: %v", err)
	}
	digest, err := server.days.Digest(t.Context(), userID, days.DayKey("2024-03-01"))
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	inSync := server.do(t, http.MethodPost, "/sync/days/2024-03-01/check", token, `{"hash":"`+digest+`"}`)
	if inSync.Code != http.StatusOK || inSync.Body.String() != `{"need_sync":false}` {
		t.Fatalf("check: unexpected response %d %s", inSync.Code, inSync.Body.String())
	}
	outOfSync := server.do(t, http.MethodPost, "/sync/days/2024-03-01/check", token, `{"hash":"deadbeef"}`)
	if outOfSync.Code != http.StatusOK || outOfSync.Body.String() != `{"need_sync":true}` {
		t.Fatalf("check: unexpected response %d %s", outOfSync.Code, outOfSync.Body.String())
	}
}

func TestPushDayErrorMapping(t *testing.T) {
	server := newTestServer(t, days.FreshnessReject)
	token := server.login(t, "bob", "builder")

	testCases := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "invalid-date",
			path:       "/sync/days/2024-02-30",
			body:       dayPayload,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"invalid_date"}`,
		},
		{
			name:       "malformed-json",
			path:       "/sync/days/2024-03-01",
			body:       `{"tasks":`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"invalid_request"}`,
		},
		{
			name:       "missing-time",
			path:       "/sync/days/2024-03-01",
			body:       `{"tasks":[],"notes":[],"task_tag":[],"note_tag":[]}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"invalid_timestamp"}`,
		},
		{
			name:       "record-from-other-day",
			path:       "/sync/days/2024-03-02",
			body:       dayPayload,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"invalid_record"}`,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := server.do(t, http.MethodPut, testCase.path, token, testCase.body)
			if recorder.Code != testCase.wantStatus {
				t.Fatalf("unexpected status %d body %s", recorder.Code, recorder.Body.String())
			}
			if recorder.Body.String() != testCase.wantBody {
				t.Fatalf("unexpected body %s", recorder.Body.String())
			}
		})
	}

	if recorder := server.do(t, http.MethodPut, "/sync/days/2024-03-01", token, dayPayload); recorder.Code != http.StatusOK {
		t.Fatalf("push: unexpected status %d", recorder.Code)
	}
	stale := `{"tasks":[],"notes":[],"task_tag":[],"note_tag":[],"time":1709200000000}`
	recorder := server.do(t, http.MethodPut, "/sync/days/2024-03-01", token, stale)
	if recorder.Code != http.StatusConflict || recorder.Body.String() != `{"error":"stale_timestamp"}` {
		t.Fatalf("stale push: unexpected response %d %s", recorder.Code, recorder.Body.String())
	}
}

func TestPushDayStorageFailureReturnsServiceCode(t *testing.T) {
	server := newTestServer(t, days.FreshnessTrust)
	token := server.login(t, "dana", "dinosaur")

	if err := server.db.Migrator().DropTable(&days.TagSet{}); err != nil {
		t.Fatalf("failed to drop tag registry: %v", err)
	}

	recorder := server.do(t, http.MethodPut, "/sync/days/2024-03-01", token, dayPayload)
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d body %s", recorder.Code, recorder.Body.String())
	}
	if recorder.Body.String() != `{"code":"days.push.tag_registry_failed","error":"sync_failed"}` {
		t.Fatalf("unexpected body %s", recorder.Body.String())
	}

	list := server.do(t, http.MethodGet, "/sync/days", token, "")
	if list.Code != http.StatusOK || list.Body.String() != `{}` {
		t.Fatalf("failed push must not touch the day index, got %d %s", list.Code, list.Body.String())
	}
}
