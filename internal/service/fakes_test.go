package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/supportbot/storebot-go/internal/config"
	"github.com/supportbot/storebot-go/internal/model"
	"go.uber.org/zap"
)

var errBoom = errors.New("boom")

// fakeMessageStore 内存消息存储
type fakeMessageStore struct {
	mu        sync.Mutex
	nextID    int64
	messages  []model.ChatMessage
	appends   int
	failAfter int // >0 时第 failAfter 次 Append 失败
	listErr   error
	latestErr error
}

func (s *fakeMessageStore) Append(ctx context.Context, msg *model.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends++
	if s.failAfter > 0 && s.appends == s.failAfter {
		return errBoom
	}
	s.nextID++
	msg.ID = s.nextID
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *fakeMessageStore) ListByOwner(ctx context.Context, owner int64, limit int) ([]model.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []model.ChatMessage
	for _, m := range s.messages {
		if m.UserID == owner {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *fakeMessageStore) CountSince(ctx context.Context, owner int64, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.messages {
		if m.UserID == owner && m.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (s *fakeMessageStore) DeleteByOwner(ctx context.Context, owner int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.messages[:0]
	var deleted int64
	for _, m := range s.messages {
		if m.UserID == owner {
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept
	return deleted, nil
}

func (s *fakeMessageStore) LatestAt(ctx context.Context, owner int64) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latestErr != nil {
		return time.Time{}, s.latestErr
	}
	var latest time.Time
	for _, m := range s.messages {
		if m.UserID == owner && m.CreatedAt.After(latest) {
			latest = m.CreatedAt
		}
	}
	return latest, nil
}

func (s *fakeMessageStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// fakeProductFinder 记录调用次数的商品查询
type fakeProductFinder struct {
	mu       sync.Mutex
	products []model.Product
	err      error
	calls    int
	keywords [][]string
}

func (f *fakeProductFinder) SearchProducts(ctx context.Context, keywords []string, limit int) ([]model.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.keywords = append(f.keywords, keywords)
	if f.err != nil {
		return nil, f.err
	}
	return f.products, nil
}

// fakeOrderFinder 固定返回的订单查询
type fakeOrderFinder struct {
	order *model.Order
	err   error
	calls int
}

func (f *fakeOrderFinder) MostRecentOrder(ctx context.Context, owner int64) (*model.Order, error) {
	f.calls++
	return f.order, f.err
}

// fixedPicker 总是返回同一个下标
type fixedPicker int

func (p fixedPicker) Intn(n int) int {
	return int(p) % n
}

// fakeClock 可手动推进的时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testRules(t *testing.T) *config.Rules {
	t.Helper()
	rules, err := config.DefaultRules()
	require.NoError(t, err)
	return rules
}

// chatFixture 组装好的聊天服务及其依赖
type chatFixture struct {
	rules    *config.Rules
	store    *fakeMessageStore
	products *fakeProductFinder
	orders   *fakeOrderFinder
	contexts *ContextService
	chat     *ChatService
	clock    *fakeClock
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	logger := zap.NewNop()
	rules := testRules(t)

	f := &chatFixture{
		rules:    rules,
		store:    &fakeMessageStore{},
		products: &fakeProductFinder{},
		orders:   &fakeOrderFinder{},
		clock:    newFakeClock(),
	}

	responses, err := NewResponseService(rules, f.products, f.orders, fixedPicker(0), logger)
	require.NoError(t, err)

	f.contexts = NewContextService(NewMemoryContextStore(), rules.StageTransitions, logger).WithClock(f.clock.Now)
	f.chat = NewChatService(
		f.store,
		NewClassifierService(rules, logger),
		f.contexts,
		responses,
		NewMemoryLocker(),
		rules.Suggestions,
		config.ChatConfig{SocketHistory: 50, WelcomeWindow: time.Hour},
		logger,
	).WithClock(f.clock.Now)
	return f
}
