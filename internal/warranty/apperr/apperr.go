// Package apperr 定义保修业务的错误分类。
//
// 所有服务层错误都以 *Error 返回，调用方通过 errors.Is 与包级哨兵比较，
// 或通过 KindOf 取出分类后映射为 HTTP 状态码。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误分类
type Kind string

const (
	KindInvalidStateTransition Kind = "INVALID_STATE_TRANSITION"
	KindInsufficientStock      Kind = "INSUFFICIENT_STOCK"
	KindUnregisteredVehicle    Kind = "UNREGISTERED_VEHICLE"
	KindLedgerCorruption       Kind = "LEDGER_CORRUPTION"
	KindStaleReservation       Kind = "STALE_RESERVATION"
	KindNotFound               Kind = "NOT_FOUND"
	KindValidation             Kind = "VALIDATION"
	KindConflict               Kind = "CONFLICT"
	KindInternal               Kind = "INTERNAL"
)

// 哨兵错误，仅比较 Kind
var (
	ErrInvalidStateTransition = &Error{Kind: KindInvalidStateTransition}
	ErrInsufficientStock      = &Error{Kind: KindInsufficientStock}
	ErrUnregisteredVehicle    = &Error{Kind: KindUnregisteredVehicle}
	ErrLedgerCorruption       = &Error{Kind: KindLedgerCorruption}
	ErrStaleReservation       = &Error{Kind: KindStaleReservation}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrValidation             = &Error{Kind: KindValidation}
	ErrConflict               = &Error{Kind: KindConflict}
)

// Error 业务错误
type Error struct {
	Kind    Kind
	Message string
	Meta    map[string]any
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 同类即视为匹配
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// With 附加上下文字段
func (e *Error) With(key string, value any) *Error {
	if e.Meta == nil {
		e.Meta = make(map[string]any)
	}
	e.Meta[key] = value
	return e
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// InvalidTransition 状态迁移非法
func InvalidTransition(entity, id string, from, to any) *Error {
	return New(KindInvalidStateTransition, "%s %s 状态不允许从 %v 变更为 %v", entity, id, from, to).
		With("entity", entity).
		With("from", fmt.Sprint(from)).
		With("to", fmt.Sprint(to))
}

// Insufficient 库存不足
func Insufficient(warehouseID, typeComponentID string, requested, available int) *Error {
	return New(KindInsufficientStock, "可用库存不足: 需要%d, 可用%d", requested, available).
		With("warehouse_id", warehouseID).
		With("type_component_id", typeComponentID).
		With("requested", requested).
		With("available", available)
}

// Corruption 账本不一致，仓库将被冻结
func Corruption(warehouseID, format string, args ...any) *Error {
	return New(KindLedgerCorruption, format, args...).With("warehouse_id", warehouseID)
}

func NotFound(entity, id string) *Error {
	return New(KindNotFound, "%s 不存在: %s", entity, id).With("entity", entity)
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

// KindOf 取错误分类，非业务错误归为 KindInternal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MetaOf 取错误上下文字段
func MetaOf(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Meta
	}
	return nil
}

// Retryable 只有库存不足允许调用方重试
func Retryable(err error) bool {
	return KindOf(err) == KindInsufficientStock
}

// Code 业务错误码，code/100 即 HTTP 状态码
func Code(kind Kind) int {
	switch kind {
	case KindValidation:
		return 40000
	case KindNotFound:
		return 40400
	case KindInvalidStateTransition:
		return 40900
	case KindConflict:
		return 40901
	case KindInsufficientStock:
		return 40902
	case KindStaleReservation:
		return 40903
	case KindUnregisteredVehicle:
		return 42200
	case KindLedgerCorruption:
		return 50300
	default:
		return 50000
	}
}

// HTTPStatus 分类对应的 HTTP 状态码
func HTTPStatus(kind Kind) int {
	status := Code(kind) / 100
	if status < 100 || status > 599 {
		return http.StatusInternalServerError
	}
	return status
}
