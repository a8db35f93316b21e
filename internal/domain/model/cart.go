package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const MaxSizeLength = 20

// カートの明細
// 追加時点の価格を必ず保存。
type CartEntry struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Size      string          `json:"size,omitempty"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (e CartEntry) Subtotal() decimal.Decimal {
	return e.UnitPrice.Mul(decimal.NewFromInt(e.Quantity))
}

// セッションに保存するカート。キーは商品ID（サイズ指定があれば "id:size"）
type Cart struct {
	Entries map[string]CartEntry `json:"entries"`
}

type AddResult struct {
	Entry   CartEntry
	Clamped bool
	Warning string
}

func NewCart() *Cart {
	return &Cart{Entries: map[string]CartEntry{}}
}

// 空やnilのblobは空カート
func DecodeCart(blob []byte) (*Cart, error) {
	c := NewCart()
	if len(blob) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(blob, c); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	if c.Entries == nil {
		c.Entries = map[string]CartEntry{}
	}
	for k, e := range c.Entries {
		if e.Quantity <= 0 {
			delete(c.Entries, k)
		}
	}
	return c, nil
}

func (c *Cart) Encode() ([]byte, error) {
	c.ensure()
	return json.Marshal(c)
}

func CartKey(productID int64, size string) string {
	id := strconv.FormatInt(productID, 10)
	if size == "" {
		return id
	}
	return id + ":" + size
}

func NormalizeSize(size string) string {
	size = strings.TrimSpace(size)
	if r := []rune(size); len(r) > MaxSizeLength {
		size = string(r[:MaxSizeLength])
	}
	return size
}

func (c *Cart) ensure() {
	if c.Entries == nil {
		c.Entries = map[string]CartEntry{}
	}
}

// overrideなら数量を置き換え、そうでなければ加算する。
// 在庫を超える分は在庫数に丸める。
func (c *Cart) Add(p Product, qty int64, size string, override bool) (AddResult, error) {
	if qty <= 0 {
		return AddResult{}, ErrInvalidQuantity
	}
	if p.Stock <= 0 {
		return AddResult{}, fmt.Errorf("%w: %s", ErrOutOfStock, p.Name)
	}
	c.ensure()

	size = NormalizeSize(size)
	key := CartKey(p.ID, size)
	e, ok := c.Entries[key]
	if !ok {
		e = CartEntry{ProductID: p.ID, Name: p.Name, Size: size, UnitPrice: p.Price}
	}

	next := qty
	if !override {
		next = e.Quantity + qty
	}

	res := AddResult{}
	if next > p.Stock {
		next = p.Stock
		res.Clamped = true
		res.Warning = fmt.Sprintf("Only %d of %s available. Quantity set to the maximum.", p.Stock, p.Name)
	}
	e.Quantity = next
	c.Entries[key] = e
	res.Entry = e
	return res, nil
}

// 0以下は削除。明細が見つかって変更したらtrue
func (c *Cart) Update(productID, qty int64, size string) bool {
	c.ensure()
	key := CartKey(productID, NormalizeSize(size))
	e, ok := c.Entries[key]
	if !ok {
		return false
	}
	if qty <= 0 {
		delete(c.Entries, key)
		return true
	}
	e.Quantity = qty
	c.Entries[key] = e
	return true
}

func (c *Cart) Remove(productID int64, size string) bool {
	return c.RemoveKey(CartKey(productID, NormalizeSize(size)))
}

func (c *Cart) RemoveKey(key string) bool {
	c.ensure()
	if _, ok := c.Entries[key]; !ok {
		return false
	}
	delete(c.Entries, key)
	return true
}

func (c *Cart) Clear() {
	c.Entries = map[string]CartEntry{}
}

func (c *Cart) Get(productID int64, size string) (CartEntry, bool) {
	e, ok := c.Entries[CartKey(productID, NormalizeSize(size))]
	return e, ok
}

func (c *Cart) IsEmpty() bool {
	return len(c.Entries) == 0
}

func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, e := range c.Entries {
		total = total.Add(e.Subtotal())
	}
	return total
}

func (c *Cart) ItemCount() int64 {
	var n int64
	for _, e := range c.Entries {
		n += e.Quantity
	}
	return n
}

// キー順で返す（表示と決済明細の順序を安定させる）
func (c *Cart) Keys() []string {
	keys := make([]string, 0, len(c.Entries))
	for k := range c.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *Cart) ProductIDs() []int64 {
	seen := map[int64]struct{}{}
	ids := make([]int64, 0, len(c.Entries))
	for _, k := range c.Keys() {
		id := c.Entries[k].ProductID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// 現在のカタログと突き合わせた明細
type CartLine struct {
	Key     string
	Entry   CartEntry
	Product Product
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.Entry.Subtotal()
}

func (l CartLine) ExceedsStock() bool {
	return l.Entry.Quantity > l.Product.Stock
}

// 存在しない商品の明細はカートから取り除き、残りを返す。
// 2つ目の戻り値は取り除いた件数。
func (c *Cart) Resolve(products map[int64]Product) ([]CartLine, int) {
	lines := make([]CartLine, 0, len(c.Entries))
	dropped := 0
	for _, k := range c.Keys() {
		e := c.Entries[k]
		p, ok := products[e.ProductID]
		if !ok {
			delete(c.Entries, k)
			dropped++
			continue
		}
		lines = append(lines, CartLine{Key: k, Entry: e, Product: p})
	}
	return lines, dropped
}
