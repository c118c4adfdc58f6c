// Package events 保修领域事件发布。
package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// 事件主题
const (
	SubjectRecordStatus      = "warranty.record.status"
	SubjectLineStatus        = "warranty.line.status"
	SubjectReservationStatus = "warranty.reservation.status"
	SubjectTransferStatus    = "warranty.transfer.status"
	SubjectLedgerCorruption  = "warranty.ledger.corruption"
	SubjectStaleReservation  = "warranty.reservation.stale"
)

// Event 状态变更事件
type Event struct {
	Subject    string            `json:"subject"`
	EntityID   string            `json:"entity_id"`
	From       string            `json:"from,omitempty"`
	To         string            `json:"to,omitempty"`
	ActorID    string            `json:"actor_id,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Publisher 事件发布
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// LogPublisher 仅写日志，未配置消息总线时使用
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, e Event) error {
	p.logger.Debug("domain event",
		zap.String("subject", e.Subject),
		zap.String("entity_id", e.EntityID),
		zap.String("from", e.From),
		zap.String("to", e.To),
	)
	return nil
}

// Recorder 记录已发布事件，测试用
type Recorder struct {
	mu     sync.Mutex
	ch     chan Event
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{ch: make(chan Event, 1024)}
}

func (r *Recorder) Publish(ctx context.Context, e Event) error {
	select {
	case r.ch <- e:
	default:
	}
	return nil
}

// Events 取出目前为止收到的事件
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		select {
		case e := <-r.ch:
			r.events = append(r.events, e)
		default:
			return append([]Event(nil), r.events...)
		}
	}
}

// Count 指定主题的事件数
func (r *Recorder) Count(subject string) int {
	n := 0
	for _, e := range r.Events() {
		if e.Subject == subject {
			n++
		}
	}
	return n
}
