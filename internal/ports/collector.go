package ports

import "github.com/ghalamif/AegisWatch/internal/domain"

// Collector streams raw sensor frames from a transport (OPC UA, UDP, ...).
type Collector interface {
	Start(out chan<- *domain.Packet) error
	Stop() error
}
