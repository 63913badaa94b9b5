package progress

import (
	"github.com/rescale/rescale-upload/internal/events"
	"github.com/rescale/rescale-upload/internal/models"
)

// BusObserver publishes batch updates as events. Publishing never blocks;
// slow subscribers lose events rather than stalling workers.
type BusObserver struct {
	bus *events.EventBus
}

// NewBusObserver creates an observer publishing to bus.
func NewBusObserver(bus *events.EventBus) *BusObserver {
	return &BusObserver{bus: bus}
}

func (b *BusObserver) StartBatch(batchID, label string, total int) {
	b.bus.Publish(&events.BatchEvent{
		BaseEvent: events.NewBase(events.EventBatchStarted),
		BatchID:   batchID,
		Label:     label,
		Total:     total,
	})
}

func (b *BusObserver) UpdateFile(batchID, fileName string, percent float64, status string) {
	b.bus.Publish(&events.FileProgressEvent{
		BaseEvent: events.NewBase(events.EventFileProgress),
		BatchID:   batchID,
		FileName:  fileName,
		Percent:   percent,
		Status:    status,
	})
}

func (b *BusObserver) FileCompleted(batchID, fileName string, ok bool, completed, succeeded int) {
	b.bus.Publish(&events.BatchEvent{
		BaseEvent: events.NewBase(events.EventFileCompleted),
		BatchID:   batchID,
		Label:     fileName,
		Completed: completed,
		Succeeded: succeeded,
		OK:        &ok,
	})
}

func (b *BusObserver) FinishBatch(batchID string, succeeded, total int) {
	b.bus.Publish(&events.BatchEvent{
		BaseEvent: events.NewBase(events.EventBatchFinished),
		BatchID:   batchID,
		Total:     total,
		Succeeded: succeeded,
	})
}

func (b *BusObserver) AddNotification(n models.Notification) {
	b.bus.PublishNotification(n.Icon, n.Title, n.Text)
}
