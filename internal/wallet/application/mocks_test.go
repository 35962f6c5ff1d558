package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/walletledger/internal/wallet/domain"
)

func decimalFromInt(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// 内存版仓储/锁/缓存实现，语义对齐 mysql/redis 实现：
// Save 带版本检查，Transition 带条件翻转，事务由全局互斥串行化。
type memStore struct {
	mu       sync.Mutex
	accounts map[string]domain.Account
	entries  map[string]domain.JournalEntry
	orders   map[string]domain.EscrowOrder
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[string]domain.Account),
		entries:  make(map[string]domain.JournalEntry),
		orders:   make(map[string]domain.EscrowOrder),
	}
}

// --- AccountRepository ---

type memAccounts struct{ s *memStore }

func (r *memAccounts) Get(_ context.Context, accountID string) (*domain.Account, error) {
	if a, ok := r.s.accounts[accountID]; ok {
		cp := a
		return &cp, nil
	}
	return nil, nil
}

func (r *memAccounts) GetOrCreate(ctx context.Context, accountID, userID, currency string) (*domain.Account, error) {
	if a, err := r.Get(ctx, accountID); err != nil || a != nil {
		return a, err
	}
	account := domain.NewAccount(accountID, userID, currency)
	r.s.accounts[accountID] = *account
	cp := *account
	return &cp, nil
}

func (r *memAccounts) Save(_ context.Context, account *domain.Account) error {
	stored, ok := r.s.accounts[account.AccountID]
	if !ok {
		r.s.accounts[account.AccountID] = *account
		return nil
	}
	if stored.Version != account.Version {
		return domain.ErrVersionConflict
	}
	account.Version++
	r.s.accounts[account.AccountID] = *account
	return nil
}

// --- JournalRepository ---

type memJournal struct{ s *memStore }

func (r *memJournal) Create(_ context.Context, entry *domain.JournalEntry) error {
	entry.CreatedAt = time.Now()
	r.s.entries[entry.Reference] = *entry
	return nil
}

func (r *memJournal) GetByReference(_ context.Context, reference string) (*domain.JournalEntry, error) {
	if e, ok := r.s.entries[reference]; ok {
		cp := e
		return &cp, nil
	}
	return nil, nil
}

func (r *memJournal) ListByAccount(_ context.Context, accountID string, limit, offset int) ([]*domain.JournalEntry, int64, error) {
	var all []*domain.JournalEntry
	for ref := range r.s.entries {
		e := r.s.entries[ref]
		if e.AccountID == accountID {
			cp := e
			all = append(all, &cp)
		}
	}
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

// --- EscrowOrderRepository ---

type memOrders struct{ s *memStore }

func (r *memOrders) Create(_ context.Context, order *domain.EscrowOrder) error {
	r.s.orders[order.OrderID] = *order
	return nil
}

func (r *memOrders) Get(_ context.Context, orderID string) (*domain.EscrowOrder, error) {
	if o, ok := r.s.orders[orderID]; ok {
		cp := o
		cp.InitFSM()
		return &cp, nil
	}
	return nil, nil
}

func (r *memOrders) Transition(_ context.Context, order *domain.EscrowOrder, from domain.EscrowStatus) (bool, error) {
	stored, ok := r.s.orders[order.OrderID]
	if !ok || stored.Status != from {
		return false, nil
	}
	r.s.orders[order.OrderID] = *order
	return true, nil
}

// --- TxManager：全局互斥串行化，模拟单作用域原子性 ---

type memTx struct{ s *memStore }

func (m *memTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return fn(ctx)
}

// --- LockManager ---

type memLocks struct {
	mu   sync.Mutex
	held map[string]string
	// 放开互斥以便测试事务内的状态翻转竞争
	alwaysAcquire bool
}

func newMemLocks() *memLocks {
	return &memLocks{held: make(map[string]string)}
}

func (l *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok && !l.alwaysAcquire {
		return "", domain.ErrLockHeld
	}
	token := uuid.NewString()
	l.held[key] = token
	return token, nil
}

func (l *memLocks) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

// --- BalanceCache ---

type memCache struct {
	mu           sync.Mutex
	data         map[string]domain.Account
	invalidated  []string
	failOnGet    bool
	failOnInvali bool
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string]domain.Account)}
}

func (c *memCache) Get(_ context.Context, accountID string) (*domain.Account, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failOnGet {
		return nil, context.DeadlineExceeded
	}
	if a, ok := c.data[accountID]; ok {
		cp := a
		return &cp, nil
	}
	return nil, nil
}

func (c *memCache) Set(_ context.Context, account *domain.Account) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[account.AccountID] = *account
	return nil
}

func (c *memCache) Invalidate(_ context.Context, accountIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failOnInvali {
		return context.DeadlineExceeded
	}
	for _, id := range accountIDs {
		delete(c.data, id)
		c.invalidated = append(c.invalidated, id)
	}
	return nil
}

// --- EventPublisher ---

type pubEvent struct {
	topic   string
	key     string
	payload map[string]any
}

type memPublisher struct {
	mu     sync.Mutex
	events []pubEvent
}

func (p *memPublisher) PublishInTx(_ context.Context, topic, key string, payload map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, pubEvent{topic: topic, key: key, payload: payload})
	return nil
}

// --- FundsGateway ---

type memGateway struct {
	mu          sync.Mutex
	payments    map[string]domain.PaymentVerification
	transfers   []domain.TransferRequest
	transferErr error
}

func newMemGateway() *memGateway {
	return &memGateway{payments: make(map[string]domain.PaymentVerification)}
}

func (g *memGateway) VerifyPayment(_ context.Context, reference string) (*domain.PaymentVerification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v, ok := g.payments[reference]; ok {
		cp := v
		return &cp, nil
	}
	return &domain.PaymentVerification{Success: false}, nil
}

func (g *memGateway) InitiateTransfer(_ context.Context, req *domain.TransferRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.transferErr != nil {
		return "", g.transferErr
	}
	g.transfers = append(g.transfers, *req)
	return fmt.Sprintf("GW-%d", len(g.transfers)), nil
}

// --- 测试装配 ---

type testEngine struct {
	store     *memStore
	locks     *memLocks
	cache     *memCache
	publisher *memPublisher
	gateway   *memGateway
	command   *WalletCommandService
	query     *WalletQueryService
	payment   *PaymentService
}

func newTestEngine() *testEngine {
	store := newMemStore()
	accounts := &memAccounts{s: store}
	journal := &memJournal{s: store}
	orders := &memOrders{s: store}
	locks := newMemLocks()
	cache := newMemCache()
	publisher := &memPublisher{}
	gw := newMemGateway()

	command := NewWalletCommandService(accounts, journal, orders, &memTx{s: store}, locks, cache, publisher)
	return &testEngine{
		store:     store,
		locks:     locks,
		cache:     cache,
		publisher: publisher,
		gateway:   gw,
		command:   command,
		query:     NewWalletQueryService(accounts, journal, cache),
		payment:   NewPaymentService(gw, command),
	}
}

func (e *testEngine) account(id string) domain.Account {
	return e.store.accounts[id]
}

func (e *testEngine) seed(id, userID string, available int64) {
	account := domain.NewAccount(id, userID, "USD")
	account.Available = decimalFromInt(available)
	e.store.accounts[id] = *account
}
