// Package service 保修业务服务层：账本、预留、接待单状态机、调拨与派工。
package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/apperr"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/events"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/repository"
)

// SystemActor 系统自动操作的操作人
const SystemActor = "system"

// Options 服务运行参数
type Options struct {
	StaleReservationAge time.Duration // 0 表示不回收
	SweepInterval       time.Duration
	SweepBatchSize      int
	SnapshotTTL         time.Duration
	AttachmentBucket    string
	Now                 func() time.Time
}

// Deps 外部依赖，Cache/Objects 可为空
type Deps struct {
	Store     repository.Store
	Reader    repository.StockReader
	Publisher events.Publisher
	Redis     *redis.Client
	Cache     StockCache
	Objects   ObjectStorage
	Logger    *zap.Logger
}

// Services 服务集合
type Services struct {
	Ledger      *StockLedger
	Eligibility *EligibilityService
	Reservation *ReservationManager
	Transfer    *TransferOrchestrator
	Claim       *ClaimController
	Balancer    *TaskAssignmentBalancer
	Snapshot    *SnapshotService
	Attachment  *AttachmentService
	Sweeper     *StaleReservationSweeper
}

// NewServices 创建服务集合
func NewServices(deps Deps, opts Options) *Services {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NewLogPublisher(deps.Logger)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	cache := deps.Cache
	if cache == nil && deps.Redis != nil {
		cache = NewRedisStockCache(deps.Redis, opts.SnapshotTTL)
	}

	r := &runner{
		store:     deps.Store,
		publisher: deps.Publisher,
		cache:     cache,
		logger:    deps.Logger,
		now:       opts.Now,
	}

	ledger := &StockLedger{runner: r}
	elig := &EligibilityService{runner: r}
	reservations := &ReservationManager{runner: r, ledger: ledger}
	transfers := &TransferOrchestrator{runner: r, ledger: ledger}
	balancer := &TaskAssignmentBalancer{runner: r}
	claims := &ClaimController{
		runner:       r,
		eligibility:  elig,
		reservations: reservations,
		transfers:    transfers,
		balancer:     balancer,
	}
	transfers.OnCompleted(claims.onTransferCompleted)

	return &Services{
		Ledger:      ledger,
		Eligibility: elig,
		Reservation: reservations,
		Transfer:    transfers,
		Claim:       claims,
		Balancer:    balancer,
		Snapshot:    &SnapshotService{runner: r, reader: deps.Reader, cache: cache},
		Attachment:  &AttachmentService{runner: r, objects: deps.Objects, bucket: opts.AttachmentBucket},
		Sweeper:     NewStaleReservationSweeper(claims, opts.StaleReservationAge, opts.SweepInterval, opts.SweepBatchSize),
	}
}

// runner 事务执行器：提交后失效快照缓存、发布事件，账本异常时冻结仓库
type runner struct {
	store     repository.Store
	publisher events.Publisher
	cache     StockCache
	logger    *zap.Logger
	now       func() time.Time
}

// Tx 一次业务事务
type Tx struct {
	repository.Store

	root      *Tx
	touched   map[string]struct{}
	events    []events.Event
	corrupted []*apperr.Error
}

func newTx(root *Tx) *Tx {
	tx := &Tx{root: root, touched: map[string]struct{}{}}
	if root == nil {
		tx.root = tx
	}
	return tx
}

// Touch 标记仓库库存已变更
func (tx *Tx) Touch(warehouseID string) {
	tx.touched[warehouseID] = struct{}{}
}

// Emit 事务提交后发布事件
func (tx *Tx) Emit(e events.Event) {
	tx.events = append(tx.events, e)
}

// nested 子事务，失败只回滚自身
func (tx *Tx) nested(ctx context.Context, fn func(inner *Tx) error) error {
	inner := newTx(tx.root)
	err := tx.Store.Transaction(ctx, func(s repository.Store) error {
		inner.Store = s
		return fn(inner)
	})
	if err != nil {
		tx.root.noteCorruption(err)
		return err
	}
	for wh := range inner.touched {
		tx.touched[wh] = struct{}{}
	}
	tx.events = append(tx.events, inner.events...)
	return nil
}

func (tx *Tx) noteCorruption(err error) {
	var e *apperr.Error
	if !errors.As(err, &e) || e.Kind != apperr.KindLedgerCorruption {
		return
	}
	if halted, _ := e.Meta["warehouse_halted"].(bool); halted {
		return
	}
	for _, seen := range tx.corrupted {
		if seen == e {
			return
		}
	}
	tx.corrupted = append(tx.corrupted, e)
}

func (r *runner) run(ctx context.Context, fn func(tx *Tx) error) error {
	root := newTx(nil)
	err := r.store.Transaction(ctx, func(s repository.Store) error {
		root.Store = s
		return fn(root)
	})
	if err != nil {
		root.noteCorruption(err)
	}
	for _, e := range root.corrupted {
		r.haltWarehouse(ctx, e)
	}
	if err != nil {
		return err
	}
	for wh := range root.touched {
		r.invalidate(ctx, wh)
	}
	for _, e := range root.events {
		r.publish(ctx, e)
	}
	return nil
}

func (r *runner) event(subject, id, from, to, actor string) events.Event {
	return events.Event{
		Subject:    subject,
		EntityID:   id,
		From:       from,
		To:         to,
		ActorID:    actor,
		OccurredAt: r.now(),
	}
}

func (r *runner) publish(ctx context.Context, e events.Event) {
	if err := r.publisher.Publish(ctx, e); err != nil {
		r.logger.Warn("publish event failed",
			zap.String("subject", e.Subject),
			zap.String("entity_id", e.EntityID),
			zap.Error(err),
		)
	}
}

func (r *runner) invalidate(ctx context.Context, warehouseID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(ctx, warehouseID); err != nil {
		r.logger.Warn("invalidate stock snapshot failed", zap.String("warehouse_id", warehouseID), zap.Error(err))
	}
}

// haltWarehouse 冻结账本异常的仓库并告警
func (r *runner) haltWarehouse(ctx context.Context, e *apperr.Error) {
	warehouseID, _ := e.Meta["warehouse_id"].(string)
	r.logger.Error("ledger corruption",
		zap.Bool("alert", true),
		zap.String("warehouse_id", warehouseID),
		zap.String("reason", e.Message),
	)
	if warehouseID == "" {
		return
	}
	if err := r.store.Warehouses().SetHalted(ctx, warehouseID, true, e.Message); err != nil {
		r.logger.Error("halt warehouse failed", zap.String("warehouse_id", warehouseID), zap.Error(err))
	}
	r.publish(ctx, events.Event{
		Subject:    events.SubjectLedgerCorruption,
		EntityID:   warehouseID,
		To:         "HALTED",
		ActorID:    SystemActor,
		Attributes: map[string]string{"reason": e.Message},
		OccurredAt: r.now(),
	})
}
