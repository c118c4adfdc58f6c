package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/apperr"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
)

// Ref 账本变更的业务来源
type Ref struct {
	Type    string
	ID      string
	ActorID string
}

// StockLedger 库存账本，每个仓库每类配件一组计数。
// 所有变更在单个事务内完成：锁行、前置校验、写入、后置校验、记流水。
type StockLedger struct {
	*runner
}

// IntakeRequest 到货入库
type IntakeRequest struct {
	WarehouseID     string   `json:"warehouse_id"`
	TypeComponentID string   `json:"type_component_id" binding:"required"`
	Quantity        int      `json:"quantity" binding:"required,gt=0"`
	SerialNumbers   []string `json:"serial_numbers"`
}

// IntakeResult 入库结果
type IntakeResult struct {
	Stock      *entity.Stock      `json:"stock"`
	Components []entity.Component `json:"components"`
}

// Reserve 占用可用库存，不足时返回 InsufficientStock
func (l *StockLedger) Reserve(ctx context.Context, warehouseID, typeComponentID string, qty int, ref Ref) (*entity.StockHold, error) {
	var hold *entity.StockHold
	err := l.run(ctx, func(tx *Tx) error {
		holds, err := l.reserve(ctx, tx, warehouseID, typeComponentID, qty, false, ref)
		if err != nil {
			return err
		}
		hold = holds[0]
		return nil
	})
	return hold, err
}

// Release 释放占用，重复释放无副作用
func (l *StockLedger) Release(ctx context.Context, holdID, actorID string) error {
	return l.run(ctx, func(tx *Tx) error {
		return l.release(ctx, tx, holdID, actorID)
	})
}

// Consume 消耗占用：在库与占用同时减少
func (l *StockLedger) Consume(ctx context.Context, holdID, actorID string) error {
	return l.run(ctx, func(tx *Tx) error {
		return l.consume(ctx, tx, holdID, actorID)
	})
}

// Receive 增加在库数量，计数行不存在时创建
func (l *StockLedger) Receive(ctx context.Context, warehouseID, typeComponentID string, qty int, ref Ref) (*entity.Stock, error) {
	var stock *entity.Stock
	err := l.run(ctx, func(tx *Tx) error {
		var err error
		stock, err = l.receive(ctx, tx, warehouseID, typeComponentID, qty, ref)
		return err
	})
	return stock, err
}

// Intake 序列化配件到货：登记每件配件并同步增加在库数量
func (l *StockLedger) Intake(ctx context.Context, req IntakeRequest, actorID string) (*IntakeResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var result *IntakeResult
	err := l.run(ctx, func(tx *Tx) error {
		var err error
		result, err = l.intake(ctx, tx, req, actorID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (req IntakeRequest) validate() error {
	if req.Quantity <= 0 {
		return apperr.Validation("入库数量必须大于0")
	}
	if len(req.SerialNumbers) > 0 && len(req.SerialNumbers) != req.Quantity {
		return apperr.Validation("序列号数量(%d)与入库数量(%d)不一致", len(req.SerialNumbers), req.Quantity)
	}
	return nil
}

func (l *StockLedger) intake(ctx context.Context, tx *Tx, req IntakeRequest, actorID string) (*IntakeResult, error) {
	tc, err := tx.Catalog().GetTypeComponent(ctx, req.TypeComponentID)
	if err != nil {
		return nil, err
	}
	result := &IntakeResult{}
	batch := uuid.New().String()
	for i := 0; i < req.Quantity; i++ {
		serial := fmt.Sprintf("%s-%s-%03d", tc.SKU, batch[:8], i+1)
		if len(req.SerialNumbers) > 0 {
			serial = req.SerialNumbers[i]
		}
		if existing, err := tx.Components().GetBySerial(ctx, serial); err == nil && existing != nil {
			return nil, apperr.New(apperr.KindConflict, "序列号已存在: %s", serial)
		}
		warehouseID := req.WarehouseID
		comp := entity.Component{
			ID:              uuid.New().String(),
			SerialNumber:    serial,
			TypeComponentID: req.TypeComponentID,
			WarehouseID:     &warehouseID,
			Status:          entity.ComponentStatusInStock,
		}
		if err := tx.Components().Create(ctx, &comp); err != nil {
			return nil, fmt.Errorf("登记配件失败: %w", err)
		}
		result.Components = append(result.Components, comp)
	}
	result.Stock, err = l.receive(ctx, tx, req.WarehouseID, req.TypeComponentID, req.Quantity,
		Ref{Type: entity.ReferenceIntake, ID: batch, ActorID: actorID})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ResumeWarehouse 人工核对后解除冻结
func (l *StockLedger) ResumeWarehouse(ctx context.Context, warehouseID, actorID string) (*entity.Warehouse, error) {
	if _, err := l.store.Warehouses().Get(ctx, warehouseID); err != nil {
		return nil, err
	}
	if err := l.store.Warehouses().SetHalted(ctx, warehouseID, false, ""); err != nil {
		return nil, fmt.Errorf("解除仓库冻结失败: %w", err)
	}
	l.logger.Warn("warehouse ledger resumed",
		zap.String("warehouse_id", warehouseID),
		zap.String("actor_id", actorID),
	)
	return l.store.Warehouses().Get(ctx, warehouseID)
}

// Transactions 账本流水
func (l *StockLedger) Transactions(ctx context.Context, warehouseID string, page, size int) ([]entity.StockTransaction, int64, error) {
	if _, err := l.store.Warehouses().Get(ctx, warehouseID); err != nil {
		return nil, 0, err
	}
	return l.store.Stocks().ListTransactions(ctx, warehouseID, page, size)
}

// checkOpen 冻结中的仓库拒绝一切账本变更
func (l *StockLedger) checkOpen(ctx context.Context, tx *Tx, warehouseID string) error {
	wh, err := tx.Warehouses().Get(ctx, warehouseID)
	if err != nil {
		return err
	}
	if wh.LedgerHalted {
		return apperr.Corruption(warehouseID, "仓库 %s 账本已冻结: %s", wh.Name, wh.HaltReason).
			With("warehouse_halted", true)
	}
	return nil
}

// lock 锁定计数行并做前置校验
func (l *StockLedger) lock(ctx context.Context, tx *Tx, warehouseID, typeComponentID string) (*entity.Stock, error) {
	stock, err := tx.Stocks().GetForUpdate(ctx, warehouseID, typeComponentID)
	if err != nil {
		return nil, err
	}
	if err := stock.Check(); err != nil {
		return nil, apperr.Corruption(warehouseID, "变更前校验失败: %v", err).With("type_component_id", typeComponentID)
	}
	return stock, nil
}

// save 后置校验、写入并记流水
func (l *StockLedger) save(ctx context.Context, tx *Tx, stock *entity.Stock, txType, holdID string, qty int, ref Ref) error {
	if err := stock.Check(); err != nil {
		return apperr.Corruption(stock.WarehouseID, "变更后校验失败: %v", err).With("type_component_id", stock.TypeComponentID)
	}
	if err := tx.Stocks().Update(ctx, stock); err != nil {
		return err
	}
	row := &entity.StockTransaction{
		ID:              uuid.New().String(),
		WarehouseID:     stock.WarehouseID,
		TypeComponentID: stock.TypeComponentID,
		HoldID:          holdID,
		TransactionType: txType,
		Quantity:        qty,
		InStockAfter:    stock.QuantityInStock,
		ReservedAfter:   stock.QuantityReserved,
		ReferenceType:   ref.Type,
		ReferenceID:     ref.ID,
		CreatedBy:       ref.ActorID,
		CreatedAt:       l.now(),
	}
	if err := tx.Stocks().AppendTransaction(ctx, row); err != nil {
		return fmt.Errorf("写入库存流水失败: %w", err)
	}
	tx.Touch(stock.WarehouseID)
	return nil
}

// reserve 占用 qty 件；perUnit 时每件一张凭证，否则一张凭证
func (l *StockLedger) reserve(ctx context.Context, tx *Tx, warehouseID, typeComponentID string, qty int, perUnit bool, ref Ref) ([]*entity.StockHold, error) {
	if qty <= 0 {
		return nil, apperr.Validation("预留数量必须大于0")
	}
	if err := l.checkOpen(ctx, tx, warehouseID); err != nil {
		return nil, err
	}
	stock, err := l.lock(ctx, tx, warehouseID, typeComponentID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return nil, apperr.Insufficient(warehouseID, typeComponentID, qty, 0)
	}
	if err != nil {
		return nil, err
	}
	if available := stock.Available(); available < qty {
		return nil, apperr.Insufficient(warehouseID, typeComponentID, qty, available)
	}

	sizes := []int{qty}
	if perUnit {
		sizes = make([]int, qty)
		for i := range sizes {
			sizes[i] = 1
		}
	}

	holds := make([]*entity.StockHold, 0, len(sizes))
	for _, n := range sizes {
		hold := &entity.StockHold{
			ID:              uuid.New().String(),
			WarehouseID:     warehouseID,
			TypeComponentID: typeComponentID,
			Quantity:        n,
			Status:          entity.HoldStatusHeld,
			ReferenceType:   ref.Type,
			ReferenceID:     ref.ID,
			CreatedAt:       l.now(),
		}
		if err := tx.Stocks().CreateHold(ctx, hold); err != nil {
			return nil, fmt.Errorf("创建库存占用失败: %w", err)
		}
		stock.QuantityReserved += n
		if err := l.save(ctx, tx, stock, entity.TxTypeReserve, hold.ID, n, ref); err != nil {
			return nil, err
		}
		holds = append(holds, hold)
	}
	return holds, nil
}

func (l *StockLedger) release(ctx context.Context, tx *Tx, holdID, actorID string) error {
	hold, err := tx.Stocks().GetHold(ctx, holdID)
	if err != nil {
		return err
	}
	if hold.Status != entity.HoldStatusHeld {
		return nil
	}
	return l.settle(ctx, tx, hold, entity.HoldStatusReleased, actorID)
}

func (l *StockLedger) consume(ctx context.Context, tx *Tx, holdID, actorID string) error {
	hold, err := tx.Stocks().GetHold(ctx, holdID)
	if err != nil {
		return err
	}
	switch hold.Status {
	case entity.HoldStatusConsumed:
		return nil
	case entity.HoldStatusReleased:
		return apperr.InvalidTransition("StockHold", hold.ID, hold.Status, entity.HoldStatusConsumed)
	}
	return l.settle(ctx, tx, hold, entity.HoldStatusConsumed, actorID)
}

func (l *StockLedger) settle(ctx context.Context, tx *Tx, hold *entity.StockHold, status entity.HoldStatus, actorID string) error {
	if err := l.checkOpen(ctx, tx, hold.WarehouseID); err != nil {
		return err
	}
	stock, err := l.lock(ctx, tx, hold.WarehouseID, hold.TypeComponentID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return apperr.Corruption(hold.WarehouseID, "占用 %s 对应的库存计数不存在", hold.ID)
	}
	if err != nil {
		return err
	}
	ok, err := tx.Stocks().SettleHold(ctx, hold.ID, status, l.now())
	if err != nil {
		return fmt.Errorf("结算库存占用失败: %w", err)
	}
	if !ok {
		return nil
	}

	txType := entity.TxTypeRelease
	stock.QuantityReserved -= hold.Quantity
	if status == entity.HoldStatusConsumed {
		txType = entity.TxTypeConsume
		stock.QuantityInStock -= hold.Quantity
	}
	return l.save(ctx, tx, stock, txType, hold.ID, hold.Quantity,
		Ref{Type: hold.ReferenceType, ID: hold.ReferenceID, ActorID: actorID})
}

func (l *StockLedger) receive(ctx context.Context, tx *Tx, warehouseID, typeComponentID string, qty int, ref Ref) (*entity.Stock, error) {
	if qty <= 0 {
		return nil, apperr.Validation("入库数量必须大于0")
	}
	if err := l.checkOpen(ctx, tx, warehouseID); err != nil {
		return nil, err
	}
	stock, err := l.lock(ctx, tx, warehouseID, typeComponentID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		row := &entity.Stock{
			ID:              uuid.New().String(),
			WarehouseID:     warehouseID,
			TypeComponentID: typeComponentID,
		}
		if err := tx.Stocks().Create(ctx, row); err != nil {
			return nil, fmt.Errorf("创建库存计数失败: %w", err)
		}
		stock, err = l.lock(ctx, tx, warehouseID, typeComponentID)
	}
	if err != nil {
		return nil, err
	}
	stock.QuantityInStock += qty
	if err := l.save(ctx, tx, stock, entity.TxTypeReceive, "", qty, ref); err != nil {
		return nil, err
	}
	return stock, nil
}
