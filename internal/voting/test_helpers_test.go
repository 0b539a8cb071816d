package voting

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var taipei = time.FixedZone("Asia/Taipei", 8*60*60)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

type staticCodeGenerator struct {
	codes []string
	index int
}

func (g *staticCodeGenerator) NewCode() (GroupCode, error) {
	if g.index >= len(g.codes) {
		return "", errors.New("exhausted codes")
	}
	code := g.codes[g.index]
	g.index++
	return GroupCode(code), nil
}

func newTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func newTestService(t *testing.T, clock *fakeClock, codes ...string) (*Service, *gorm.DB) {
	t.Helper()
	db := newTestDatabase(t)
	if len(codes) == 0 {
		codes = []string{"ABC234", "DEF567", "GHJ89K"}
	}
	service, err := NewService(ServiceConfig{
		Database:      db,
		Clock:         clock.Now,
		Location:      taipei,
		CodeGenerator: &staticCodeGenerator{codes: codes},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func localTime(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, taipei)
}

func mustCreateGroup(t *testing.T, service *Service, input PollConfigInput) CreatedGroup {
	t.Helper()
	created, err := service.CreatePollGroup(context.Background(), "friday dinner", input)
	if err != nil {
		t.Fatalf("failed to create poll group: %v", err)
	}
	return created
}

func mustAddCandidate(t *testing.T, service *Service, code GroupCode, name string) Candidate {
	t.Helper()
	candidate, err := service.AddCandidate(context.Background(), code, CandidateInput{Name: name})
	if err != nil {
		t.Fatalf("failed to add candidate %q: %v", name, err)
	}
	return candidate
}

func mustDeviceID(t *testing.T, value string) DeviceID {
	t.Helper()
	id, err := NewDeviceID(value)
	if err != nil {
		t.Fatalf("unexpected device id error: %v", err)
	}
	return id
}

func voterFor(t *testing.T, device, nickname string) Voter {
	t.Helper()
	return Voter{DeviceID: mustDeviceID(t, device), Nickname: NewNickname(nickname)}
}

func defaultPollInput(quota int) PollConfigInput {
	return PollConfigInput{
		EventLocal:     "2025-06-01T19:00",
		DeadlineLocal:  "2025-06-01T12:00",
		VotesPerPerson: quota,
	}
}

func countRows(t *testing.T, db *gorm.DB, model any, query string, args ...any) int64 {
	t.Helper()
	var count int64
	scope := db.Model(model)
	if query != "" {
		scope = scope.Where(query, args...)
	}
	if err := scope.Count(&count).Error; err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	return count
}
