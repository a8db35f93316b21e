package repository

import "context"

// 1つのTxに束ねたリポジトリ群。決済確定・キャンセル時の在庫戻しで使う
type TxRepos interface {
	Orders() OrderRepository
	OrderItems() OrderItemRepository
	Inventory() InventoryRepository
	Products() ProductRepository
	AuditLogs() AuditLogRepository
}

// fnがerrorを返せばrollback、nilならcommit
type TransactionManager interface {
	WithinTx(ctx context.Context, fn func(r TxRepos) error) error
}
