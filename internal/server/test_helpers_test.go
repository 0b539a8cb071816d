package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dinnervote/backend/internal/session"
	"github.com/dinnervote/backend/internal/voting"
)

var testLocation = time.FixedZone("Asia/Taipei", 8*60*60)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

type sequenceCodes struct {
	mu    sync.Mutex
	codes []string
}

func (g *sequenceCodes) NewCode() (voting.GroupCode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	code := g.codes[0]
	g.codes = g.codes[1:]
	return voting.GroupCode(code), nil
}

type testEnvironment struct {
	handler    http.Handler
	clock      *testClock
	dispatcher *RealtimeDispatcher
	sessions   *session.Manager
	service    *voting.Service
}

func newTestEnvironment(testContext *testing.T) *testEnvironment {
	testContext.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(testContext.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		testContext.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	testContext.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(voting.Models()...); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	clock := &testClock{now: time.Date(2025, time.May, 20, 10, 0, 0, 0, testLocation)}
	service, err := voting.NewService(voting.ServiceConfig{
		Database:      db,
		Clock:         clock.Now,
		Location:      testLocation,
		CodeGenerator: &sequenceCodes{codes: []string{"ABC234", "DEF567", "GHJ89K"}},
		Logger:        zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to create voting service: %v", err)
	}

	deviceCounter := 0
	var counterMu sync.Mutex
	sessions, err := session.NewManager(session.ManagerConfig{
		SigningSecret: []byte("test-signing-secret"),
		CookieName:    "dinnervote_session",
		TTL:           time.Hour,
		NewDeviceID: func() (string, error) {
			counterMu.Lock()
			defer counterMu.Unlock()
			deviceCounter++
			return "device-" + strconv.Itoa(deviceCounter), nil
		},
	})
	if err != nil {
		testContext.Fatalf("failed to create session manager: %v", err)
	}

	dispatcher := NewRealtimeDispatcher()
	handler, err := NewHTTPHandler(Dependencies{
		VotingService:     service,
		Sessions:          sessions,
		Realtime:          dispatcher,
		Logger:            zap.NewNop(),
		HeartbeatInterval: time.Hour,
	})
	if err != nil {
		testContext.Fatalf("failed to construct http handler: %v", err)
	}

	return &testEnvironment{
		handler:    handler,
		clock:      clock,
		dispatcher: dispatcher,
		sessions:   sessions,
		service:    service,
	}
}

// client replays the device cookie across requests like a browser would.
type client struct {
	env     *testEnvironment
	cookies map[string]*http.Cookie
}

func (env *testEnvironment) newClient() *client {
	return &client{env: env, cookies: make(map[string]*http.Cookie)}
}

func (cl *client) do(testContext *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	testContext.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			testContext.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	for _, cookie := range cl.cookies {
		request.AddCookie(cookie)
	}

	recorder := httptest.NewRecorder()
	cl.env.handler.ServeHTTP(recorder, request)

	for _, cookie := range recorder.Result().Cookies() {
		cl.cookies[cookie.Name] = cookie
	}
	return recorder
}

func decodeBody(testContext *testing.T, recorder *httptest.ResponseRecorder, target any) {
	testContext.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		testContext.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func (cl *client) createGroup(testContext *testing.T, votesPerPerson int) groupPayload {
	testContext.Helper()
	recorder := cl.do(testContext, http.MethodPost, "/groups", createGroupRequest{
		Name:           "friday dinner",
		EventAt:        "2025-06-01T19:00",
		VoteDeadline:   "2025-06-01T12:00",
		VotesPerPerson: votesPerPerson,
	})
	if recorder.Code != http.StatusCreated {
		testContext.Fatalf("expected created status, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var payload groupPayload
	decodeBody(testContext, recorder, &payload)
	return payload
}

func (cl *client) addCandidate(testContext *testing.T, code, name string) candidatePayload {
	testContext.Helper()
	recorder := cl.do(testContext, http.MethodPost, "/groups/"+code+"/candidates", candidateRequest{Name: name})
	if recorder.Code != http.StatusCreated {
		testContext.Fatalf("expected created status, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var payload candidatePayload
	decodeBody(testContext, recorder, &payload)
	return payload
}
