package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductSnapshotVersion is bumped whenever the stored layout changes.
const ProductSnapshotVersion = 1

var errSnapshotProductRequired = errors.New("product snapshot: product id is required")

// ProductSnapshot freezes the product terms a contract was signed on. Orders
// copy it verbatim so later catalog edits never change what was agreed.
type ProductSnapshot struct {
	Version      int             `json:"version"`
	ProductID    uuid.UUID       `json:"product_id"`
	FarmerID     uuid.UUID       `json:"farmer_id"`
	CategoryID   *uuid.UUID      `json:"category_id,omitempty"`
	Name         string          `json:"name"`
	Spec         string          `json:"spec"`
	Unit         string          `json:"unit"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     int             `json:"quantity"`
	OriginRegion string          `json:"origin_region,omitempty"`
	CapturedAt   time.Time       `json:"captured_at"`
}

// Total returns unit price multiplied by the snapshot quantity.
func (s ProductSnapshot) Total() decimal.Decimal {
	return s.AmountFor(s.Quantity)
}

// AmountFor prices an arbitrary quantity at the frozen unit price.
func (s ProductSnapshot) AmountFor(quantity int) decimal.Decimal {
	return s.UnitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

func (s ProductSnapshot) Validate() error {
	if s.Version != ProductSnapshotVersion {
		return fmt.Errorf("product snapshot: unsupported version %d", s.Version)
	}
	if s.ProductID == uuid.Nil {
		return errSnapshotProductRequired
	}
	if s.Quantity <= 0 {
		return fmt.Errorf("product snapshot: quantity must be positive, got %d", s.Quantity)
	}
	if s.UnitPrice.IsNegative() {
		return fmt.Errorf("product snapshot: negative unit price %s", s.UnitPrice)
	}
	return nil
}

// Value implements driver.Valuer for jsonb columns.
func (s ProductSnapshot) Value() (driver.Value, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner and rejects layouts this build cannot read.
func (s *ProductSnapshot) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return errors.New("product snapshot: null value")
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("product snapshot: unsupported Scan type %T", src)
	}

	var decoded ProductSnapshot
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("product snapshot: decode: %w", err)
	}
	if decoded.Version != ProductSnapshotVersion {
		return fmt.Errorf("product snapshot: unsupported version %d", decoded.Version)
	}
	*s = decoded
	return nil
}
