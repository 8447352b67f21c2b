package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/curvebond/curvegate/internal/model"
	"github.com/curvebond/curvegate/internal/pkg/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// EventRepo is an optional durable store for journal entries (Postgres).
type EventRepo interface {
	Insert(ctx context.Context, event *model.Event) error
	List(ctx context.Context, limit int) ([]*model.Event, error)
}

// EventSink is a fire-and-forget secondary destination (Redis list).
type EventSink interface {
	Publish(ctx context.Context, event *model.Event) error
}

// EventJournal records every market/tap event for external observers: a JSONL
// file, an in-memory ring buffer for queries, optional repo and sinks, and
// live subscribers for the websocket feed. Writes go through a buffered
// channel so journaling never blocks the transaction path.
type EventJournal struct {
	ch     chan *model.Event
	file   *os.File
	buffer *eventBuffer
	repo   EventRepo
	sinks  []EventSink

	subMu  sync.Mutex
	nextID int
	subs   map[int]chan *model.Event

	done chan struct{}
}

func NewEventJournal(logDir string, repo EventRepo, sinks ...EventSink) (*EventJournal, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, err
	}
	filename := filepath.Join(logDir, "events-"+time.Now().Format("2006-01-02")+".jsonl")
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	j := &EventJournal{
		ch:     make(chan *model.Event, 1000),
		file:   f,
		buffer: newEventBuffer(1000),
		repo:   repo,
		sinks:  sinks,
		subs:   make(map[int]chan *model.Event),
		done:   make(chan struct{}),
	}
	go j.consume()
	return j, nil
}

// Record stamps and enqueues an event. When the buffer is full the entry is
// dropped rather than stalling order flow.
func (j *EventJournal) Record(eventType model.EventType, collateral common.Address, timestamp int64, fields map[string]string) *model.Event {
	event := &model.Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Collateral: collateral,
		Fields:     fields,
		Timestamp:  timestamp,
	}
	j.buffer.add(event)
	j.fanOut(event)
	select {
	case j.ch <- event:
	default:
		logger.Warn("event journal buffer full, dropping entry", "type", string(eventType))
	}
	return event
}

// List returns recent events, newest first, from the repo when configured and
// the ring buffer otherwise.
func (j *EventJournal) List(ctx context.Context, limit int) ([]*model.Event, error) {
	if j.repo != nil {
		events, err := j.repo.List(ctx, limit)
		if err == nil {
			return events, nil
		}
		logger.Warn("event repo list failed, serving ring buffer", "error", err.Error())
	}
	return j.buffer.list(limit), nil
}

// Subscribe registers a live event channel. Slow subscribers miss events
// instead of blocking the journal.
func (j *EventJournal) Subscribe() (int, <-chan *model.Event) {
	j.subMu.Lock()
	defer j.subMu.Unlock()
	j.nextID++
	ch := make(chan *model.Event, 64)
	j.subs[j.nextID] = ch
	return j.nextID, ch
}

func (j *EventJournal) Unsubscribe(id int) {
	j.subMu.Lock()
	defer j.subMu.Unlock()
	if ch, ok := j.subs[id]; ok {
		delete(j.subs, id)
		close(ch)
	}
}

func (j *EventJournal) fanOut(event *model.Event) {
	j.subMu.Lock()
	defer j.subMu.Unlock()
	for _, ch := range j.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

func (j *EventJournal) consume() {
	defer close(j.done)
	encoder := json.NewEncoder(j.file)
	for event := range j.ch {
		if j.repo != nil {
			if err := j.repo.Insert(context.Background(), event); err != nil {
				logger.Error("failed to persist event", "error", err.Error())
			}
		}
		for _, sink := range j.sinks {
			if err := sink.Publish(context.Background(), event); err != nil {
				logger.Warn("event sink publish failed", "error", err.Error())
			}
		}
		if err := encoder.Encode(event); err != nil {
			logger.Error("failed to write event journal", "error", err.Error())
		}
	}
}

func (j *EventJournal) Close() {
	close(j.ch)
	<-j.done
	j.file.Close()
}

// eventBuffer is a fixed-size ring of the most recent events.
type eventBuffer struct {
	mu      sync.Mutex
	maxSize int
	records []*model.Event
	next    int
}

func newEventBuffer(maxSize int) *eventBuffer {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &eventBuffer{maxSize: maxSize, records: make([]*model.Event, 0, maxSize)}
}

func (b *eventBuffer) add(event *model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) < b.maxSize {
		b.records = append(b.records, event)
		return
	}
	b.records[b.next] = event
	b.next = (b.next + 1) % b.maxSize
}

func (b *eventBuffer) list(limit int) []*model.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > b.maxSize {
		limit = b.maxSize
	}
	total := len(b.records)
	out := make([]*model.Event, 0, limit)
	for i := 0; i < total && len(out) < limit; i++ {
		idx := (b.next + total - 1 - i) % total
		if b.records[idx] != nil {
			out = append(out, b.records[idx])
		}
	}
	return out
}
