// Package testutil はテスト用のインメモリ実装。
// gorm実装と同じ契約（availableの再計算、pendingのみpaid、Txのロールバック）を守る。
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"shrimpshop/internal/domain/model"
	repo "shrimpshop/internal/repository"
)

type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex

	products    map[int64]model.Product
	categories  map[int64]model.Category
	orders      map[int64]model.Order
	orderItems  map[int64][]model.OrderItem
	adjustments []model.InventoryAdjustment
	auditLogs   []model.AuditLog
	users       map[int64]*model.User
	nextID      int64
	txSnap      *snapshot

	Now func() time.Time
	// FindByIDForUpdateの直後に呼ばれる。別Txのcommitとして扱う
	AfterOrderLock func(model.Order)
	// 設定するとOrderItems().CreateBulkが失敗する
	CreateItemsErr error
}

func NewStore() *Store {
	return &Store{
		products:   map[int64]model.Product{},
		categories: map[int64]model.Category{},
		orders:     map[int64]model.Order{},
		orderItems: map[int64][]model.OrderItem{},
		users:      map[int64]*model.User{},
		Now:        func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// ---- seeding helpers ----

func (s *Store) AddCategory(c model.Category) model.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.id()
	}
	s.categories[c.ID] = c
	return c
}

func (s *Store) AddProduct(p model.Product) model.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.id()
	}
	p.Available = p.Stock > 0
	s.products[p.ID] = p
	return p
}

func (s *Store) AddUser(u model.User) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.id()
	}
	s.users[u.ID] = &u
	return &u
}

// 商品がカタログから消えた状態を作る
func (s *Store) RemoveProduct(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.products, id)
}

func (s *Store) SetStock(id, stock int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.products[id]
	p.Stock = stock
	p.Available = stock > 0
	s.products[id] = p
}

func (s *Store) Product(id int64) model.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withCategory(s.products[id])
}

func (s *Store) Orders() []model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Items(orderID int64) []model.OrderItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.OrderItem(nil), s.orderItems[orderID]...)
}

func (s *Store) Adjustments() []model.InventoryAdjustment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.InventoryAdjustment(nil), s.adjustments...)
}

func (s *Store) AuditLogs() []model.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AuditLog(nil), s.auditLogs...)
}

func (s *Store) SetOrderStatus(id int64, st model.OrderStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[id]
	o.Status = st
	s.orders[id] = o
}

func (s *Store) withCategory(p model.Product) model.Product {
	if c, ok := s.categories[p.CategoryID]; ok {
		p.Category = c
	}
	return p
}

// ---- repositories ----

func (s *Store) ProductRepo() repo.ProductRepository { return productRepo{s} }
func (s *Store) CategoryRepo() repo.CategoryRepository { return categoryRepo{s} }
func (s *Store) OrderRepo() repo.OrderRepository { return orderRepo{s} }
func (s *Store) OrderItemRepo() repo.OrderItemRepository { return orderItemRepo{s} }
func (s *Store) InventoryRepo() repo.InventoryRepository { return inventoryRepo{s} }
func (s *Store) AuditLogRepo() repo.AuditLogRepository { return auditRepo{s} }
func (s *Store) UserRepo() repo.UserRepository { return userRepo{s} }
func (s *Store) TxManager() repo.TransactionManager { return txManager{s} }

type productRepo struct{ s *Store }

func (r productRepo) ListPublic(_ context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var all []model.Product
	for _, p := range r.s.products {
		p = r.s.withCategory(p)
		if q.Q != "" && !strings.Contains(strings.ToLower(p.Name+" "+p.Description), strings.ToLower(q.Q)) {
			continue
		}
		if q.CategorySlug != "" && p.Category.Slug != q.CategorySlug {
			continue
		}
		if q.MinPrice != nil && p.Price.LessThan(*q.MinPrice) {
			continue
		}
		if q.MaxPrice != nil && p.Price.GreaterThan(*q.MaxPrice) {
			continue
		}
		if q.InStockOnly && !p.Available {
			continue
		}
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		switch q.Sort {
		case "price_asc":
			return all[i].Price.LessThan(all[j].Price)
		case "price_desc":
			return all[i].Price.GreaterThan(all[j].Price)
		case "name":
			return all[i].Name < all[j].Name
		default:
			return all[i].ID > all[j].ID
		}
	})

	total := int64(len(all))
	start := (q.Page - 1) * q.Limit
	if start > len(all) {
		start = len(all)
	}
	end := start + q.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r productRepo) FindByID(_ context.Context, id int64) (model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return model.Product{}, repo.ErrNotFound
	}
	return r.s.withCategory(p), nil
}

func (r productRepo) FindByIDs(_ context.Context, ids []int64) (map[int64]model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := map[int64]model.Product{}
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok {
			out[id] = r.s.withCategory(p)
		}
	}
	return out, nil
}

func (r productRepo) Create(_ context.Context, p model.Product) (model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, ex := range r.s.products {
		if ex.Slug == p.Slug {
			return model.Product{}, repo.ErrConflict
		}
	}
	p.ID = r.s.id()
	p.Available = p.Stock > 0
	r.s.products[p.ID] = p
	return p, nil
}

type categoryRepo struct{ s *Store }

func (r categoryRepo) List(_ context.Context) ([]model.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Category, 0, len(r.s.categories))
	for _, c := range r.s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r categoryRepo) FindBySlug(_ context.Context, slug string) (model.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.categories {
		if c.Slug == slug {
			return c, nil
		}
	}
	return model.Category{}, repo.ErrNotFound
}

func (r categoryRepo) Create(_ context.Context, c model.Category) (model.Category, error) {
	return r.s.AddCategory(c), nil
}

type orderRepo struct{ s *Store }

func (r orderRepo) FindByID(_ context.Context, id int64) (model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return model.Order{}, repo.ErrNotFound
	}
	return o, nil
}

func (r orderRepo) FindByIDForUpdate(ctx context.Context, id int64) (model.Order, error) {
	o, err := r.FindByID(ctx, id)
	if err != nil {
		return o, err
	}
	if hook := r.s.AfterOrderLock; hook != nil {
		hook(o)
		r.s.commitOutsideTx()
	}
	return o, nil
}

func (r orderRepo) FindByReference(_ context.Context, ref string) (model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.orders {
		if o.Reference == ref {
			return o, nil
		}
	}
	return model.Order{}, repo.ErrNotFound
}

func (r orderRepo) FindByCheckoutSessionIDForUpdate(_ context.Context, sid string) (model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.orders {
		if o.CheckoutSessionID == sid {
			return o, nil
		}
	}
	return model.Order{}, repo.ErrNotFound
}

func (r orderRepo) Create(_ context.Context, o model.Order) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, ex := range r.s.orders {
		if ex.Reference == o.Reference || ex.CheckoutSessionID == o.CheckoutSessionID {
			return 0, repo.ErrConflict
		}
	}
	o.ID = r.s.id()
	o.CreatedAt = r.s.Now()
	o.UpdatedAt = o.CreatedAt
	r.s.orders[o.ID] = o
	return o.ID, nil
}

func (r orderRepo) MarkPaid(_ context.Context, id int64, paidAt time.Time, sh *model.ShippingDetails) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok || o.Status != model.OrderStatusPending {
		return false, nil
	}
	o.Status = model.OrderStatusPaid
	o.PaymentDate = &paidAt
	if sh != nil {
		o.ShippingName = sh.Name
		o.ShippingAddress = sh.Address()
		o.ShippingCity = sh.City
		o.ShippingState = sh.State
		o.ShippingZip = sh.PostalCode
		o.ShippingCountry = sh.Country
	}
	r.s.orders[id] = o
	return true, nil
}

func (r orderRepo) UpdateFulfillment(_ context.Context, id int64, from, to model.OrderStatus, tracking, notes string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.TrackingNumber = tracking
	o.Notes = notes
	r.s.orders[id] = o
	return true, nil
}

func (r orderRepo) ListAdmin(_ context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []model.Order
	q := strings.ToLower(f.Q)
	for _, o := range r.s.orders {
		if f.Status != "" && string(o.Status) != f.Status {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(o.Email+" "+o.ShippingName+" "+o.Reference), q) {
			continue
		}
		if f.From != nil && o.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && !o.CreatedAt.Before(*f.To) {
			continue
		}
		all = append(all, o)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := int64(len(all))
	start := (f.Page - 1) * f.Limit
	if start > len(all) {
		start = len(all)
	}
	end := start + f.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

type orderItemRepo struct{ s *Store }

func (r orderItemRepo) CreateBulk(_ context.Context, orderID int64, items []model.OrderItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.CreateItemsErr != nil {
		return r.s.CreateItemsErr
	}
	for _, it := range items {
		it.ID = r.s.id()
		it.OrderID = orderID
		r.s.orderItems[orderID] = append(r.s.orderItems[orderID], it)
	}
	return nil
}

func (r orderItemRepo) ListByOrderID(_ context.Context, orderID int64) ([]model.OrderItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]model.OrderItem{}, r.s.orderItems[orderID]...), nil
}

type inventoryRepo struct{ s *Store }

func (r inventoryRepo) SetStock(_ context.Context, id int64, stock int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return 0, repo.ErrNotFound
	}
	before := p.Stock
	p.Stock = stock
	p.Available = stock > 0
	r.s.products[id] = p
	return before, nil
}

func (r inventoryRepo) DecreaseStockIfEnough(_ context.Context, id int64, qty int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	p.Available = p.Stock > 0
	r.s.products[id] = p
	return true, nil
}

func (r inventoryRepo) IncreaseStock(_ context.Context, id int64, qty int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return repo.ErrNotFound
	}
	p.Stock += qty
	p.Available = p.Stock > 0
	r.s.products[id] = p
	return nil
}

func (r inventoryRepo) CreateAdjustment(_ context.Context, adj model.InventoryAdjustment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	adj.ID = r.s.id()
	r.s.adjustments = append(r.s.adjustments, adj)
	return nil
}

func (r inventoryRepo) ListAdjustments(_ context.Context, productID int64, limit int) ([]model.InventoryAdjustment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.InventoryAdjustment
	for i := len(r.s.adjustments) - 1; i >= 0; i-- {
		if r.s.adjustments[i].ProductID == productID {
			out = append(out, r.s.adjustments[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type auditRepo struct{ s *Store }

func (r auditRepo) Create(_ context.Context, l model.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l.ID = r.s.id()
	r.s.auditLogs = append(r.s.auditLogs, l)
	return nil
}

func (r auditRepo) List(_ context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.AuditLog
	for i := len(r.s.auditLogs) - 1; i >= 0; i-- {
		l := r.s.auditLogs[i]
		if f.Action != nil && l.Action != *f.Action {
			continue
		}
		if f.ResourceType != nil && l.ResourceType != *f.ResourceType {
			continue
		}
		if f.ResourceID != nil && l.ResourceID != *f.ResourceID {
			continue
		}
		if f.ActorUserID != nil && l.ActorUserID != *f.ActorUserID {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u.ID = r.s.id()
	cp := *u
	r.s.users[u.ID] = &cp
	return nil
}

func (r userRepo) FindByID(_ context.Context, id int64) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repo.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r userRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repo.ErrUserNotFound
}

func (r userRepo) Update(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[u.ID]; !ok {
		return repo.ErrUserNotFound
	}
	cp := *u
	r.s.users[u.ID] = &cp
	return nil
}

// ---- transaction ----

type txManager struct{ s *Store }

type txRepos struct{ s *Store }

func (r txRepos) Orders() repo.OrderRepository { return orderRepo{r.s} }
func (r txRepos) OrderItems() repo.OrderItemRepository { return orderItemRepo{r.s} }
func (r txRepos) Inventory() repo.InventoryRepository { return inventoryRepo{r.s} }
func (r txRepos) Products() repo.ProductRepository { return productRepo{r.s} }
func (r txRepos) AuditLogs() repo.AuditLogRepository { return auditRepo{r.s} }

// Txは直列に実行し、エラーなら開始時点の状態に戻す
func (m txManager) WithinTx(_ context.Context, fn func(r repo.TxRepos) error) error {
	m.s.txMu.Lock()
	defer m.s.txMu.Unlock()

	snap := m.s.snapshot()
	m.s.txSnap = &snap
	defer func() { m.s.txSnap = nil }()
	if err := fn(txRepos{m.s}); err != nil {
		m.s.restore(*m.s.txSnap)
		return err
	}
	return nil
}

// Tx中に外から入った変更をロールバック対象から外す
func (s *Store) commitOutsideTx() {
	if s.txSnap == nil {
		return
	}
	sn := s.snapshot()
	*s.txSnap = sn
}

type snapshot struct {
	products    map[int64]model.Product
	orders      map[int64]model.Order
	orderItems  map[int64][]model.OrderItem
	adjustments []model.InventoryAdjustment
	auditLogs   []model.AuditLog
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	sn := snapshot{
		products:    make(map[int64]model.Product, len(s.products)),
		orders:      make(map[int64]model.Order, len(s.orders)),
		orderItems:  make(map[int64][]model.OrderItem, len(s.orderItems)),
		adjustments: append([]model.InventoryAdjustment(nil), s.adjustments...),
		auditLogs:   append([]model.AuditLog(nil), s.auditLogs...),
	}
	for k, v := range s.products {
		sn.products[k] = v
	}
	for k, v := range s.orders {
		sn.orders[k] = v
	}
	for k, v := range s.orderItems {
		sn.orderItems[k] = append([]model.OrderItem(nil), v...)
	}
	return sn
}

func (s *Store) restore(sn snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = sn.products
	s.orders = sn.orders
	s.orderItems = sn.orderItems
	s.adjustments = sn.adjustments
	s.auditLogs = sn.auditLogs
}
