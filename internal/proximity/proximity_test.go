package proximity

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okitegami/backend/internal/domain"
)

var tokyoStation = domain.Coordinates{Lat: 35.681236, Lng: 139.767125}

// north 返回 c 向北 meters 米的坐标
func north(c domain.Coordinates, meters float64) domain.Coordinates {
	return domain.Coordinates{Lat: c.Lat + meters/(EarthRadiusMeters*math.Pi/180), Lng: c.Lng}
}

func ptr(s string) *string { return &s }

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := NewClassifier(30, 100, NewPolicy(48))
	require.NoError(t, err)
	return c
}

func userLetter(id string, at domain.Coordinates, created time.Time) *domain.Letter {
	return &domain.Letter{
		ID:        id,
		Category:  domain.CategoryUser,
		Lat:       at.Lat,
		Lng:       at.Lng,
		OwnerID:   ptr("owner"),
		CreatedAt: created,
	}
}

func TestDistance(t *testing.T) {
	osaka := domain.Coordinates{Lat: 34.702485, Lng: 135.495951}

	t.Run("symmetric", func(t *testing.T) {
		assert.Equal(t, Distance(tokyoStation, osaka), Distance(osaka, tokyoStation))
	})

	t.Run("zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Distance(tokyoStation, tokyoStation))
	})

	t.Run("short range accuracy", func(t *testing.T) {
		for _, m := range []float64{10, 30, 100, 1000, 9000} {
			assert.InEpsilon(t, m, Distance(tokyoStation, north(tokyoStation, m)), 0.01)
		}
	})

	t.Run("tokyo to osaka", func(t *testing.T) {
		assert.InEpsilon(t, 403000, Distance(tokyoStation, osaka), 0.01)
	})

	t.Run("NaN propagates", func(t *testing.T) {
		assert.True(t, math.IsNaN(Distance(domain.Coordinates{Lat: math.NaN()}, tokyoStation)))
	})
}

func TestIsActive(t *testing.T) {
	created := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	window := 48 * time.Hour

	assert.True(t, IsActive(created, domain.CategoryUser, created.Add(window), window))
	assert.False(t, IsActive(created, domain.CategoryUser, created.Add(window+time.Nanosecond), window))

	old := created.Add(-24 * 365 * time.Hour)
	for _, c := range []domain.LetterCategory{domain.CategoryOfficial, domain.CategoryPostBox, domain.CategoryPostBoxReply} {
		assert.True(t, IsActive(old, c, created, window), c)
	}
}

func TestPolicyExpiresAt(t *testing.T) {
	p := NewPolicy(48)
	created := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

	exp := p.ExpiresAt(&domain.Letter{Category: domain.CategoryUser, CreatedAt: created})
	require.NotNil(t, exp)
	assert.Equal(t, created.Add(48*time.Hour), *exp)
	assert.Nil(t, p.ExpiresAt(&domain.Letter{Category: domain.CategoryPostBox, CreatedAt: created}))
}

func TestNewClassifierRejectsBadThresholds(t *testing.T) {
	_, err := NewClassifier(100, 100, NewPolicy(48))
	assert.Error(t, err)
	_, err = NewClassifier(100, 30, NewPolicy(48))
	assert.Error(t, err)
	_, err = NewClassifier(0, 30, NewPolicy(48))
	assert.Error(t, err)
}

func TestClassifyDistanceBoundaries(t *testing.T) {
	c := newTestClassifier(t)

	assert.Equal(t, Reachable, c.ClassifyDistance(0))
	assert.Equal(t, Reachable, c.ClassifyDistance(30))
	assert.Equal(t, Near, c.ClassifyDistance(30.0001))
	assert.Equal(t, Near, c.ClassifyDistance(100))
	assert.Equal(t, Hidden, c.ClassifyDistance(100.0001))
}

func TestClassifyMonotone(t *testing.T) {
	c := newTestClassifier(t)
	now := time.Now()
	l := userLetter("l1", tokyoStation, now.Add(-time.Hour))
	viewer := domain.Viewer{ID: "someone"}

	prev := Reachable
	for m := 0.0; m <= 300; m += 2.5 {
		pos := north(tokyoStation, m)
		v := c.Classify(&pos, l, viewer, now)
		assert.LessOrEqual(t, int(v), int(prev), "regressed at %vm", m)
		prev = v
	}
	assert.Equal(t, Hidden, prev)
}

func TestClassifyOwnerAndAdminBypass(t *testing.T) {
	c := newTestClassifier(t)
	now := time.Now()
	l := userLetter("l1", tokyoStation, now.Add(-time.Hour))
	far := north(tokyoStation, 50000)

	owner := domain.Viewer{ID: "owner"}
	admin := domain.Viewer{ID: "admin", IsAdmin: true}

	assert.Equal(t, Reachable, c.Classify(nil, l, owner, now))
	assert.Equal(t, Reachable, c.Classify(&far, l, owner, now))
	assert.Equal(t, Reachable, c.Classify(nil, l, admin, now))
	assert.Equal(t, Hidden, c.Classify(nil, l, domain.Viewer{ID: "other"}, now))
}

func TestClassifyExpiredHiddenEvenForOwner(t *testing.T) {
	c := newTestClassifier(t)
	now := time.Now()
	l := userLetter("l1", tokyoStation, now.Add(-49*time.Hour))

	assert.Equal(t, Hidden, c.Classify(&tokyoStation, l, domain.Viewer{ID: "owner"}, now))
}

func TestScenarioExpiryWindow(t *testing.T) {
	c := newTestClassifier(t)
	now := time.Date(2024, 4, 3, 12, 0, 0, 0, time.UTC)
	pos := north(tokyoStation, 10)
	viewer := domain.Viewer{ID: "visitor"}

	fresh := userLetter("a", tokyoStation, now.Add(-(47*time.Hour + 59*time.Minute)))
	assert.True(t, c.Policy.IsActive(fresh, now))
	assert.Equal(t, Reachable, c.Classify(&pos, fresh, viewer, now))

	stale := userLetter("b", tokyoStation, now.Add(-(48*time.Hour + time.Minute)))
	assert.False(t, c.Policy.IsActive(stale, now))
	assert.Equal(t, Hidden, c.Classify(&pos, stale, viewer, now))
}

func TestScenarioSecretUnlock(t *testing.T) {
	c := newTestClassifier(t)
	now := time.Now()
	l := userLetter("c", tokyoStation, now.Add(-time.Hour))
	l.Secret = ptr("sakura")
	viewer := domain.Viewer{ID: "visitor"}
	pos := north(tokyoStation, 20)

	require.Equal(t, Reachable, c.Classify(&pos, l, viewer, now))

	g := NewGate(l, viewer, false)
	require.Equal(t, Locked, g.State())

	res, err := g.Attempt("Sakura")
	assert.True(t, errors.Is(err, domain.ErrUnlockMismatch))
	assert.Equal(t, Locked, res.State)
	assert.False(t, res.Recorded)

	res, err = g.Attempt("sakura")
	require.NoError(t, err)
	assert.Equal(t, Unlocked, res.State)
	assert.True(t, res.Recorded)

	// 终态：再次尝试不会重复记录，错误暗号也不会回退
	res, err = g.Attempt("sakura")
	require.NoError(t, err)
	assert.False(t, res.Recorded)
	res, err = g.Attempt("wrong")
	require.NoError(t, err)
	assert.Equal(t, Unlocked, res.State)
}

func TestUnlockMismatchNeverUnlocks(t *testing.T) {
	l := &domain.Letter{ID: "x", Secret: ptr("abc")}
	g := NewGate(l, domain.Viewer{ID: "v"}, false)

	for _, in := range []string{"", "ABC", "abc ", " abc", "ab", "abcd"} {
		res, err := g.Attempt(in)
		assert.Error(t, err, in)
		assert.Equal(t, Locked, res.State)
	}
	assert.Equal(t, Locked, g.State())
}

func TestInitialState(t *testing.T) {
	secret := &domain.Letter{ID: "s", Secret: ptr("pw"), OwnerID: ptr("owner")}
	open := &domain.Letter{ID: "o", OwnerID: ptr("owner")}

	tests := []struct {
		name    string
		letter  *domain.Letter
		viewer  domain.Viewer
		receipt bool
		want    LockState
	}{
		{"no secret", open, domain.Viewer{ID: "v"}, false, NoSecret},
		{"anonymous locked", secret, domain.Viewer{}, false, Locked},
		{"receipt", secret, domain.Viewer{ID: "v"}, true, Unlocked},
		{"owner", secret, domain.Viewer{ID: "owner"}, false, Unlocked},
		{"admin", secret, domain.Viewer{ID: "a", IsAdmin: true}, false, Unlocked},
		{"stranger", secret, domain.Viewer{ID: "v"}, false, Locked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InitialState(tt.letter, tt.viewer, tt.receipt))
		})
	}
	assert.False(t, Locked.Readable())
	assert.True(t, NoSecret.Readable())
}

func TestCheckPlacement(t *testing.T) {
	now := time.Now()
	policy := NewPolicy(48)
	existing := []*domain.Letter{userLetter("near", tokyoStation, now.Add(-time.Hour))}

	t.Run("25m rejected", func(t *testing.T) {
		err := CheckPlacement(north(tokyoStation, 25), domain.CategoryUser, existing, 30, policy, now)
		var rejected *domain.PlacementRejectedError
		require.True(t, errors.As(err, &rejected))
		assert.Equal(t, "near", rejected.NearestID)
		assert.Equal(t, 5, rejected.MoveAway())
	})

	t.Run("31m allowed", func(t *testing.T) {
		assert.NoError(t, CheckPlacement(north(tokyoStation, 31), domain.CategoryUser, existing, 30, policy, now))
	})

	t.Run("other categories not checked", func(t *testing.T) {
		for _, c := range []domain.LetterCategory{domain.CategoryOfficial, domain.CategoryPostBox, domain.CategoryPostBoxReply} {
			assert.NoError(t, CheckPlacement(tokyoStation, c, existing, 30, policy, now))
		}
	})

	t.Run("expired letters ignored", func(t *testing.T) {
		old := []*domain.Letter{userLetter("old", tokyoStation, now.Add(-72*time.Hour))}
		assert.NoError(t, CheckPlacement(tokyoStation, domain.CategoryUser, old, 30, policy, now))
	})

	t.Run("postbox nearby ignored", func(t *testing.T) {
		pb := userLetter("pb", tokyoStation, now)
		pb.Category = domain.CategoryPostBox
		assert.NoError(t, CheckPlacement(tokyoStation, domain.CategoryUser, []*domain.Letter{pb}, 30, policy, now))
	})

	t.Run("reports nearest", func(t *testing.T) {
		two := []*domain.Letter{
			userLetter("far", north(tokyoStation, 20), now),
			userLetter("close", north(tokyoStation, 5), now),
		}
		err := CheckPlacement(tokyoStation, domain.CategoryUser, two, 30, policy, now)
		var rejected *domain.PlacementRejectedError
		require.True(t, errors.As(err, &rejected))
		assert.Equal(t, "close", rejected.NearestID)
	})
}
