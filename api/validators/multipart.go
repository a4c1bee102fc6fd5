package validators

import (
	"errors"
	"net/http"
	"strings"

	pkgerrors "github.com/agritrade/agritrade-backend/pkg/errors"
	"github.com/agritrade/agritrade-backend/pkg/storage"
)

const multipartMemory = 4 << 20

// ParseMultipart caps the body at maxBytes and parses the form.
func ParseMultipart(w http.ResponseWriter, r *http.Request, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return pkgerrors.New(pkgerrors.CodeValidation, "upload too large").WithDetails(map[string]any{"max_bytes": maxBytes})
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body")
	}
	return nil
}

// FormFile returns the named upload as a storage.File. A missing optional
// file yields a nil file. The returned close func is always safe to call.
func FormFile(r *http.Request, field string, required bool) (*storage.File, func(), error) {
	noop := func() {}
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) && !required {
			return nil, noop, nil
		}
		if errors.Is(err, http.ErrMissingFile) {
			return nil, noop, pkgerrors.New(pkgerrors.CodeValidation, field+" file is required").WithDetails(map[string]any{"field": field})
		}
		return nil, noop, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read "+field)
	}
	contentType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &storage.File{
		Name:        header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	}, func() { _ = file.Close() }, nil
}

// FormValue returns a trimmed multipart or urlencoded field.
func FormValue(r *http.Request, field string) string {
	return strings.TrimSpace(r.FormValue(field))
}
