package ports

import "github.com/ghalamif/AegisWatch/internal/domain"

// Decoder turns one raw frame into typed field updates. Fields that fail to
// decode are reported through the error while the rest are still returned.
type Decoder interface {
	Decode(payload []byte) ([]domain.FieldUpdate, error)
}
