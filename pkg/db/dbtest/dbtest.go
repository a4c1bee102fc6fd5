// Package dbtest opens throwaway sqlite databases carrying the workflow schema.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/agritrade/agritrade-backend/pkg/db"
	"github.com/agritrade/agritrade-backend/pkg/db/models"
)

// activeReservationIndex mirrors the partial unique index from the Postgres migrations.
const activeReservationIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_stock_reservations_active_order
	ON stock_reservations(order_id) WHERE status IN ('reserved', 'confirmed')`

// Open returns a client over a private in-memory database with every model migrated.
func Open(t *testing.T) *db.Client {
	t.Helper()

	dsn := "file:agritrade_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.Product{},
		&models.DockingRecord{},
		&models.Contract{},
		&models.Order{},
		&models.StockReservation{},
		&models.PaymentRecord{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	if err := conn.Exec(activeReservationIndex).Error; err != nil {
		t.Fatalf("create reservation index: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	// keeps the shared in-memory database alive for the whole test
	sqlDB.SetMaxIdleConns(2)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db.NewFromConn(conn)
}
