package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-comment-moderation/internal/identity"
	"github.com/tbourn/go-comment-moderation/internal/notify"
	"github.com/tbourn/go-comment-moderation/internal/repo"
)

// fakeGateway records every call in order.
type fakeGateway struct {
	mu       sync.Mutex
	seq      int
	posts    []notify.Request
	edits    map[string]string
	acks     map[string]string
	calls    []string
	failPost error
	failEdit error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{edits: map[string]string{}, acks: map[string]string{}}
}

func (g *fakeGateway) PostModerationRequest(_ context.Context, req notify.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "post")
	if g.failPost != nil {
		return "", g.failPost
	}
	g.seq++
	g.posts = append(g.posts, req)
	return fmt.Sprintf("1:%d", g.seq), nil
}

func (g *fakeGateway) EditMessage(_ context.Context, ref, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "edit")
	if g.failEdit != nil {
		return g.failEdit
	}
	g.edits[ref] = text
	return nil
}

func (g *fakeGateway) Acknowledge(_ context.Context, id, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "ack")
	g.acks[id] = text
	return nil
}

func (g *fakeGateway) snapshot() (posts int, calls []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.posts), append([]string(nil), g.calls...)
}

var errGatewayDown = errors.New("gateway down")

func newGormStore(t *testing.T) *repo.GormStore {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:svc_%s_%s?mode=memory&cache=shared", name, uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return repo.NewGormStore(db)
}

// forEachStore runs fn against both store engines.
func forEachStore(t *testing.T, fn func(t *testing.T, st CommentStore)) {
	t.Run("gorm", func(t *testing.T) { fn(t, newGormStore(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, repo.NewMemoryStore()) })
}

type fixture struct {
	store CommentStore
	gw    *fakeGateway
	sub   *SubmissionService
	mod   *ModerationService
	pub   *PublicationService
}

func newFixture(st CommentStore) *fixture {
	gw := newFakeGateway()
	texts := notify.Catalog("en")
	return &fixture{
		store: st,
		gw:    gw,
		sub: &SubmissionService{
			Store:          st,
			Gate:           identity.NewGate(st),
			Gateway:        gw,
			Texts:          texts,
			Log:            zerolog.Nop(),
			MaxTextRunes:   1000,
			MaxNameRunes:   50,
			IdempotencyTTL: 0,
			NameSuffix:     func() int { return 42 },
		},
		mod: NewModerationService(st, gw, texts, zerolog.Nop(), 16),
		pub: &PublicationService{Store: st},
	}
}

func (f *fixture) submit(t *testing.T, fp, name, text string) string {
	t.Helper()
	res, err := f.sub.Submit(context.Background(), SubmitInput{Name: name, Text: text, Fingerprint: fp})
	if err != nil {
		t.Fatalf("submit(%s): %v", fp, err)
	}
	return res.Comment.ID
}
