package dbtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/agritrade/agritrade-backend/pkg/db/models"
	"github.com/agritrade/agritrade-backend/pkg/enums"
	"github.com/agritrade/agritrade-backend/pkg/types"
)

// SeedProduct inserts an on-sale product with the given stock and unit price.
func SeedProduct(t *testing.T, conn *gorm.DB, stock int, price string) *models.Product {
	t.Helper()
	product := &models.Product{
		FarmerID:     uuid.New(),
		Name:         "Fuji apples",
		Spec:         "grade A, 75mm+",
		Unit:         "kg",
		Price:        decimal.RequireFromString(price),
		MinPurchase:  1,
		Stock:        stock,
		OriginRegion: "shaanxi",
		Status:       enums.ProductStatusOnSale,
	}
	if err := conn.Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

// SeedDocking inserts a negotiation for the product between its farmer and a new purchaser.
func SeedDocking(t *testing.T, conn *gorm.DB, product *models.Product, qty int, status enums.DockingStatus) *models.DockingRecord {
	t.Helper()
	record := &models.DockingRecord{
		ProductID:   product.ID,
		FarmerID:    product.FarmerID,
		PurchaserID: uuid.New(),
		QuotePrice:  product.Price,
		Quantity:    qty,
		Status:      status,
	}
	if err := conn.Create(record).Error; err != nil {
		t.Fatalf("seed docking record: %v", err)
	}
	return record
}

// ReloadProduct reads the current product row.
func ReloadProduct(t *testing.T, conn *gorm.DB, id uuid.UUID) models.Product {
	t.Helper()
	var product models.Product
	if err := conn.First(&product, "id = ?", id).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	return product
}

// SeedContract inserts a contract for qty units of the product in the given
// status, with both signatures on file unless it is a draft.
func SeedContract(t *testing.T, conn *gorm.DB, product *models.Product, qty int, status enums.ContractStatus) *models.Contract {
	t.Helper()
	record := SeedDocking(t, conn, product, qty, enums.DockingStatusAgreed)
	snapshot := types.ProductSnapshot{
		Version:      types.ProductSnapshotVersion,
		ProductID:    product.ID,
		FarmerID:     product.FarmerID,
		Name:         product.Name,
		Spec:         product.Spec,
		Unit:         product.Unit,
		UnitPrice:    product.Price,
		Quantity:     qty,
		OriginRegion: product.OriginRegion,
		CapturedAt:   time.Now().UTC(),
	}
	contract := &models.Contract{
		ContractNo:  fmt.Sprintf("C%s%04d", time.Now().UTC().Format("20060102"), contractSeq.next()),
		DockingID:   record.ID,
		FarmerID:    record.FarmerID,
		PurchaserID: record.PurchaserID,
		ProductID:   product.ID,
		ProductInfo: snapshot,
		Quantity:    qty,
		UnitPrice:   product.Price,
		TotalAmount: snapshot.Total(),
		Status:      status,
	}
	if status != enums.ContractStatusDraft {
		farmerURL := "https://files.test/contract_sign/farmer.png"
		purchaserURL := "https://files.test/contract_sign/purchaser.png"
		contract.FarmerSignURL = &farmerURL
		contract.PurchaserSignURL = &purchaserURL
	}
	if err := conn.Create(contract).Error; err != nil {
		t.Fatalf("seed contract: %v", err)
	}
	return contract
}
