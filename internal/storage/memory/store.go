package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"okitegami/backend/internal/domain"
	"okitegami/backend/internal/storage"
)

// Store 使用内存保存信件、已读记录与收藏品，主要用于开发验证和测试。
//
// 返回值都是副本，调用方修改不会影响存储内容。
type Store struct {
	mu           sync.RWMutex
	letters      map[string]*domain.Letter
	receipts     map[string]*domain.ReadReceipt      // "letterID:viewerID" -> receipt
	collectibles map[string]*domain.Collectible
	awards       map[string]*domain.CollectibleAward // "userID:awardKey" -> award
	users        map[string]*domain.User
	byEmail      map[string]string // 小写邮箱 -> userID
	byNickname   map[string]string // 小写昵称 -> userID

	Locker
}

var _ storage.Store = (*Store)(nil)
var _ storage.PlacementLocker = (*Store)(nil)
var _ storage.PlacementLocker = (*Locker)(nil)

// Locker 进程内的放置锁，单实例部署且未配置 Redis 时使用
//
// 没有持有者和等待者的 key 会被移除。
type Locker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

// NewLocker 创建进程内锁
func NewLocker() *Locker {
	return &Locker{}
}

func (l *Locker) acquire(key string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[string]*lockEntry)
	}
	e, ok := l.locks[key]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	return e
}

func (l *Locker) release(key string, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// size 当前保留的 key 数量
func (l *Locker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		letters:      make(map[string]*domain.Letter),
		receipts:     make(map[string]*domain.ReadReceipt),
		collectibles: make(map[string]*domain.Collectible),
		awards:       make(map[string]*domain.CollectibleAward),
		users:        make(map[string]*domain.User),
		byEmail:      make(map[string]string),
		byNickname:   make(map[string]string),
	}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
}

func copyLetter(l *domain.Letter) *domain.Letter {
	cp := *l
	return &cp
}

// ========== Letter Repository ==========

// CreateLetter 保存新信件
func (s *Store) CreateLetter(ctx context.Context, letter *domain.Letter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if letter.ID == "" {
		letter.ID = uuid.New().String()
	}
	if _, exists := s.letters[letter.ID]; exists {
		return fmt.Errorf("letter %s: %w", letter.ID, domain.ErrConflict)
	}
	now := time.Now().UTC()
	if letter.CreatedAt.IsZero() {
		letter.CreatedAt = now
	}
	letter.UpdatedAt = now
	s.letters[letter.ID] = copyLetter(letter)
	return nil
}

// GetLetter 根据 ID 获取信件
func (s *Store) GetLetter(ctx context.Context, id string) (*domain.Letter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.letters[id]
	if !ok {
		return nil, notFound("letter", id)
	}
	return copyLetter(l), nil
}

// UpdateLetter 更新信件，类别、所有者与创建时间保持不变
func (s *Store) UpdateLetter(ctx context.Context, letter *domain.Letter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.letters[letter.ID]
	if !ok {
		return notFound("letter", letter.ID)
	}
	cp := copyLetter(letter)
	cp.Category = old.Category
	cp.OwnerID = old.OwnerID
	cp.ParentID = old.ParentID
	cp.CreatedAt = old.CreatedAt
	cp.UpdatedAt = time.Now().UTC()
	s.letters[letter.ID] = cp
	letter.UpdatedAt = cp.UpdatedAt
	return nil
}

// DeleteLetter 删除信件、回信及相关已读记录
func (s *Store) DeleteLetter(ctx context.Context, id string) ([]*domain.Letter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.letters[id]
	if !ok {
		return nil, notFound("letter", id)
	}

	removed := []*domain.Letter{l}
	for _, reply := range s.letters {
		if reply.ParentID != nil && *reply.ParentID == id {
			removed = append(removed, reply)
		}
	}
	for _, r := range removed {
		delete(s.letters, r.ID)
		s.deleteReceiptsLocked(r.ID)
	}
	return removed, nil
}

// ListLetters 按条件列出信件（按创建时间倒序）
func (s *Store) ListLetters(ctx context.Context, filter domain.LetterFilter) ([]*domain.Letter, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*domain.Letter, 0)
	for _, l := range s.letters {
		if matchLetter(l, filter) {
			matched = append(matched, copyLetter(l))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if filter.Page > 0 && filter.PageSize > 0 {
		start := (filter.Page - 1) * filter.PageSize
		end := start + filter.PageSize
		if start > total {
			start = total
		}
		if end > total {
			end = total
		}
		matched = matched[start:end]
	}
	return matched, total, nil
}

func matchLetter(l *domain.Letter, f domain.LetterFilter) bool {
	if len(f.Categories) > 0 {
		found := false
		for _, c := range f.Categories {
			if l.Category == c {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.OwnerID != nil && (l.OwnerID == nil || *l.OwnerID != *f.OwnerID) {
		return false
	}
	if f.ParentID != nil && (l.ParentID == nil || *l.ParentID != *f.ParentID) {
		return false
	}
	if f.CreatedAfter != nil && l.CreatedAt.Before(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && !l.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	if f.ActiveAfter != nil && l.Category == domain.CategoryUser && l.CreatedAt.Before(*f.ActiveAfter) {
		return false
	}
	return true
}

// CountReplies 统计用户在时间段内投递到邮筒的回信数
func (s *Store) CountReplies(ctx context.Context, parentID, ownerID string, since, until time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, l := range s.letters {
		if l.Category != domain.CategoryPostBoxReply || l.ParentID == nil || *l.ParentID != parentID {
			continue
		}
		if l.OwnerID == nil || *l.OwnerID != ownerID {
			continue
		}
		if l.CreatedAt.Before(since) || !l.CreatedAt.Before(until) {
			continue
		}
		count++
	}
	return count, nil
}

// ========== Receipt Repository ==========

func receiptKey(letterID, viewerID string) string {
	return letterID + ":" + viewerID
}

// InsertReceipt 幂等插入已读记录
func (s *Store) InsertReceipt(ctx context.Context, receipt *domain.ReadReceipt) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := receiptKey(receipt.LetterID, receipt.ViewerID)
	if _, exists := s.receipts[key]; exists {
		return false, nil
	}
	if receipt.ID == "" {
		receipt.ID = uuid.New().String()
	}
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = time.Now().UTC()
	}
	cp := *receipt
	s.receipts[key] = &cp
	return true, nil
}

// HasReceipt 判断是否存在已读记录
func (s *Store) HasReceipt(ctx context.Context, letterID, viewerID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.receipts[receiptKey(letterID, viewerID)]
	return ok, nil
}

// DeleteReceiptsByLetter 删除信件的全部已读记录
func (s *Store) DeleteReceiptsByLetter(ctx context.Context, letterID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteReceiptsLocked(letterID), nil
}

func (s *Store) deleteReceiptsLocked(letterID string) int {
	n := 0
	for key, r := range s.receipts {
		if r.LetterID == letterID {
			delete(s.receipts, key)
			n++
		}
	}
	return n
}

// ========== Collectible Repository ==========

// CreateCollectible 保存收藏品定义
func (s *Store) CreateCollectible(ctx context.Context, c *domain.Collectible) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	cp := *c
	s.collectibles[c.ID] = &cp
	return nil
}

// GetCollectible 获取收藏品定义
func (s *Store) GetCollectible(ctx context.Context, id string) (*domain.Collectible, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collectibles[id]
	if !ok {
		return nil, notFound("collectible", id)
	}
	cp := *c
	return &cp, nil
}

// ListCollectibles 列出全部收藏品定义（按创建时间）
func (s *Store) ListCollectibles(ctx context.Context) ([]*domain.Collectible, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Collectible, 0, len(s.collectibles))
	for _, c := range s.collectibles {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateCollectible 更新收藏品定义
func (s *Store) UpdateCollectible(ctx context.Context, c *domain.Collectible) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.collectibles[c.ID]
	if !ok {
		return notFound("collectible", c.ID)
	}
	cp := *c
	cp.CreatedAt = old.CreatedAt
	cp.CreatedBy = old.CreatedBy
	s.collectibles[c.ID] = &cp
	return nil
}

// DeleteCollectible 删除收藏品定义，已发放的收藏品保留
func (s *Store) DeleteCollectible(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collectibles[id]; !ok {
		return notFound("collectible", id)
	}
	delete(s.collectibles, id)
	return nil
}

// ========== Award Repository ==========

func awardKey(userID, key string) string {
	return userID + ":" + key
}

// InsertAwardIfAbsent 不存在时插入收藏品记录
func (s *Store) InsertAwardIfAbsent(ctx context.Context, award *domain.CollectibleAward) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := awardKey(award.UserID, award.AwardKey)
	if _, exists := s.awards[key]; exists {
		return false, nil
	}
	s.insertAwardLocked(key, award)
	return true, nil
}

// IncrementAward 插入或累加收藏品数量
func (s *Store) IncrementAward(ctx context.Context, award *domain.CollectibleAward) (*domain.CollectibleAward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := awardKey(award.UserID, award.AwardKey)
	if existing, ok := s.awards[key]; ok {
		existing.Count++
		existing.SourceLetterID = award.SourceLetterID
		existing.UpdatedAt = time.Now().UTC()
		cp := *existing
		return &cp, nil
	}
	s.insertAwardLocked(key, award)
	cp := *s.awards[key]
	return &cp, nil
}

func (s *Store) insertAwardLocked(key string, award *domain.CollectibleAward) {
	if award.ID == "" {
		award.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if award.CreatedAt.IsZero() {
		award.CreatedAt = now
	}
	award.UpdatedAt = now
	award.Count = 1
	cp := *award
	s.awards[key] = &cp
}

// ListAwardsByUser 列出用户获得的收藏品（按获得时间倒序）
func (s *Store) ListAwardsByUser(ctx context.Context, userID string) ([]*domain.CollectibleAward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.CollectibleAward, 0)
	for _, a := range s.awards {
		if a.UserID == userID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ========== User Repository ==========

// CreateUser 创建新用户，邮箱与昵称不区分大小写唯一
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(user.Email)
	nickname := strings.ToLower(user.Nickname)
	if _, exists := s.byEmail[email]; exists {
		return fmt.Errorf("email %s: %w", user.Email, domain.ErrConflict)
	}
	if _, exists := s.byNickname[nickname]; exists {
		return fmt.Errorf("nickname %s: %w", user.Nickname, domain.ErrConflict)
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	cp := *user
	s.users[user.ID] = &cp
	s.byEmail[email] = user.ID
	s.byNickname[nickname] = user.ID
	return nil
}

// GetUserByID 根据ID获取用户
func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	cp := *u
	return &cp, nil
}

// GetUserByEmail 根据邮箱获取用户
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, notFound("user", email)
	}
	cp := *s.users[id]
	return &cp, nil
}

// EmailForNickname 根据昵称查找邮箱
func (s *Store) EmailForNickname(ctx context.Context, nickname string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byNickname[strings.ToLower(nickname)]
	if !ok {
		return "", notFound("nickname", nickname)
	}
	return s.users[id].Email, nil
}

// UpdateLastLogin 更新用户最后登录时间
func (s *Store) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return notFound("user", userID)
	}
	u.LastLoginAt = &at
	u.UpdatedAt = at
	return nil
}

// ListUsers 列出用户（支持分页和按邮箱/昵称搜索）
func (s *Store) ListUsers(ctx context.Context, page, pageSize int, search string) ([]*domain.User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filtered := make([]*domain.User, 0)
	for _, u := range s.users {
		if search != "" && !containsIgnoreCase(u.Email, search) && !containsIgnoreCase(u.Nickname, search) {
			continue
		}
		cp := *u
		filtered = append(filtered, &cp)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].CreatedAt.After(filtered[j].CreatedAt) })

	total := len(filtered)
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = total
	}
	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	return filtered[start:end], total, nil
}

// containsIgnoreCase 不区分大小写的字符串包含检查
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// ========== Stats Repository ==========

// GetStatistics 获取系统统计信息
func (s *Store) GetStatistics(ctx context.Context, archivedBefore time.Time) (*domain.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.Statistics{
		TotalUsers:        len(s.users),
		TotalLetters:      len(s.letters),
		LettersByCategory: make(map[domain.LetterCategory]int),
		TotalReceipts:     len(s.receipts),
		TotalCollectibles: len(s.collectibles),
		TotalAwards:       len(s.awards),
	}
	for _, l := range s.letters {
		stats.LettersByCategory[l.Category]++
		if l.Category != domain.CategoryUser {
			continue
		}
		if l.CreatedAt.Before(archivedBefore) {
			stats.ArchivedLetters++
		} else {
			stats.ActiveUserLetters++
		}
	}
	return stats, nil
}

// ========== Placement Locker ==========

// Lock 获取进程内的放置锁，ttl 不生效
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	e := l.acquire(key)

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, storage.ErrLockTimeout
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.release(key, e)
		})
	}, nil
}

// Health 内存存储始终可用
func (s *Store) Health(ctx context.Context) error {
	return nil
}

// Close 内存存储无需释放资源
func (s *Store) Close() error {
	return nil
}
