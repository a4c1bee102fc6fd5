// Package storage holds uploaded workflow artifacts such as contract
// signatures and payment vouchers.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category groups objects by the workflow step that produced them.
type Category string

const (
	CategoryContractSign   Category = "contract_sign"
	CategoryPaymentVoucher Category = "payment_voucher"
)

func (c Category) IsValid() bool {
	switch c {
	case CategoryContractSign, CategoryPaymentVoucher:
		return true
	default:
		return false
	}
}

// File is an artifact received from a client.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Empty reports whether the file carries no payload.
func (f *File) Empty() bool {
	return f == nil || f.Body == nil || f.Size == 0
}

// Store uploads artifacts and returns the URL recorded on the entity.
type Store interface {
	Upload(ctx context.Context, file *File, category Category) (string, error)
	Delete(ctx context.Context, url string) error
}

// ObjectName builds the bucket key for a new upload: category/yyyy/mm/dd/uuid.ext.
func ObjectName(category Category, fileName string, now time.Time) string {
	ext := strings.ToLower(path.Ext(fileName))
	return fmt.Sprintf("%s/%s/%s%s", category, now.UTC().Format("2006/01/02"), uuid.NewString(), ext)
}
