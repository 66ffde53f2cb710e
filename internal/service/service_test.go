package service

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"okitegami/backend/internal/config"
	"okitegami/backend/internal/domain"
	"okitegami/backend/internal/proximity"
	"okitegami/backend/internal/security"
	"okitegami/backend/internal/storage"
	"okitegami/backend/internal/storage/filesystem"
	"okitegami/backend/internal/storage/memory"
)

var (
	pngData = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

	origin = domain.Coordinates{Lat: 35.681236, Lng: 139.767125}

	owner    = domain.Viewer{ID: "owner-1", Email: "owner@example.com"}
	visitor  = domain.Viewer{ID: "visitor-1", Email: "visitor@example.com"}
	admin    = domain.Viewer{ID: "admin-1", Email: "admin@example.com", IsAdmin: true}
	stranger = domain.Viewer{}
)

// north 返回 c 正北方向 meters 米处的坐标
func north(c domain.Coordinates, meters float64) domain.Coordinates {
	return domain.Coordinates{Lat: c.Lat + meters/(proximity.EarthRadiusMeters*math.Pi/180), Lng: c.Lng}
}

func at(c domain.Coordinates) *domain.Coordinates { return &c }

// MockObjectStore 模拟对象存储
type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	args := m.Called(path, contentType)
	return args.Error(0)
}

func (m *MockObjectStore) PublicURL(path string) string {
	return "/v1/media/" + path
}

func (m *MockObjectStore) Remove(ctx context.Context, paths ...string) error {
	args := m.Called(paths)
	return args.Error(0)
}

type fixture struct {
	store        *memory.Store
	objects      storage.ObjectStore
	files        *filesystem.Store
	cfg          config.LetterConfig
	receipts     *ReceiptLedger
	awards       *AwardService
	collectibles *CollectibleService
	letters      *LetterService
	postbox      *PostBoxService
	admin        *AdminService
	events       *recordingPublisher
	now          time.Time
}

type recordingPublisher struct {
	events []LetterEvent
}

func (p *recordingPublisher) PublishLetterEvent(ctx context.Context, event LetterEvent) {
	p.events = append(p.events, event)
}

func testLetterConfig(t *testing.T) config.LetterConfig {
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	return config.LetterConfig{
		UnlockDistanceMeters:       30,
		NotificationDistanceMeters: 100,
		ExpirationHours:            48,
		MinPlacementDistanceMeters: 30,
		MaxPages:                   10,
		MaxCharsPerPage:            500,
		DailyDepositLimit:          1,
		Timezone:                   "Asia/Tokyo",
		Location:                   loc,
	}
}

type fixtureOption func(*fixture)

func withObjectStore(o storage.ObjectStore) fixtureOption {
	return func(f *fixture) { f.objects = o }
}

func withReceiptInvalidation() fixtureOption {
	return func(f *fixture) { f.cfg.InvalidateReceiptsOnSecretChange = true }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	files, err := filesystem.NewStore(t.TempDir(), "/v1/media")
	require.NoError(t, err)

	f := &fixture{
		store:   memory.NewStore(),
		objects: files,
		files:   files,
		cfg:     testLetterConfig(t),
		events:  &recordingPublisher{},
		now:     time.Date(2024, 4, 1, 3, 0, 0, 0, time.UTC),
	}
	for _, opt := range opts {
		opt(f)
	}

	log := zap.NewNop()
	classifier, err := proximity.NewClassifier(f.cfg.UnlockDistanceMeters, f.cfg.NotificationDistanceMeters,
		proximity.NewPolicy(f.cfg.ExpirationHours))
	require.NoError(t, err)

	images := security.NewImageInspector(1 << 20)
	f.receipts = NewReceiptLedger(f.store, nil, log)
	f.collectibles = NewCollectibleService(f.store, f.objects, images, log)
	f.awards = NewAwardService(f.store, f.collectibles, nil, log)
	f.letters = NewLetterService(LetterDeps{
		Store:        f.store,
		Locker:       f.store,
		Objects:      f.objects,
		Classifier:   classifier,
		Receipts:     f.receipts,
		Awards:       f.awards,
		Collectibles: f.collectibles,
		Images:       images,
		Filter:       security.NewContentFilter(),
		Config:       f.cfg,
		Logger:       log,
	})
	f.letters.now = func() time.Time { return f.now }
	f.letters.SetEventPublisher(f.events)
	f.postbox = NewPostBoxService(f.letters, log)
	f.admin = NewAdminService(f.store, f.letters, log)
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

// place 以 viewer 身份在 pos 放置一封信件
func (f *fixture) place(t *testing.T, viewer domain.Viewer, category domain.LetterCategory, pos domain.Coordinates, secret *string) *domain.Letter {
	t.Helper()
	l, err := f.letters.Place(context.Background(), viewer, PlaceLetterInput{
		Category: category,
		Position: pos,
		Title:    "桜の下で",
		Pages:    []string{"一枚目", "二枚目"},
		Secret:   secret,
	})
	require.NoError(t, err)
	return l
}

// insertCollectible 直接写入一个收藏品定义
func (f *fixture) insertCollectible(t *testing.T) *domain.Collectible {
	t.Helper()
	c := &domain.Collectible{ID: "stamp-1", Name: "桜の切手"}
	require.NoError(t, f.store.CreateCollectible(context.Background(), c))
	return c
}
