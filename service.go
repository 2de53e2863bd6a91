package mystic

import "github.com/shopspring/decimal"

// LoveRitual is the only service whose intake carries the beloved's name.
const LoveRitual = "amor"

// Service is a catalog entry.
type Service struct {
	ID          string          `json:"id" yaml:"id"`
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description" yaml:"description"`
	Price       decimal.Decimal `json:"price" yaml:"price"`
	Duration    string          `json:"duration" yaml:"duration"`
	Image       string          `json:"image" yaml:"image"`
}

// MinorUnits returns the price in the smallest currency unit (centavos).
func (s Service) MinorUnits() int64 {
	return s.Price.Shift(2).Round(0).IntPart()
}

// Catalog is the read-only set of purchasable services.
type Catalog interface {
	Service(id string) (Service, bool)
	Services() []Service
}
