package ports

import "github.com/ghalamif/AegisWatch/internal/domain"

type EventSink interface {
	WriteBatch(events []*domain.Event) error
	Name() string
}
