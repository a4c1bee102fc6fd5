// Package storagetest provides an in-memory storage.Store for tests.
package storagetest

import (
	"context"
	"io"
	"sync"

	"github.com/agritrade/agritrade-backend/pkg/storage"
)

// Store records uploads and deletions. Set UploadErr or DeleteErr to simulate
// storage outages. AfterUpload runs once an upload has been stored.
type Store struct {
	mu          sync.Mutex
	UploadErr   error
	DeleteErr   error
	AfterUpload func()
	Objects     map[string][]byte
	Deleted     []string
	uploads     int
}

func New() *Store {
	return &Store{Objects: map[string][]byte{}}
}

func (s *Store) Upload(_ context.Context, file *storage.File, category storage.Category) (string, error) {
	url, err := s.store(file, category)
	if err == nil && s.AfterUpload != nil {
		s.AfterUpload()
	}
	return url, err
}

func (s *Store) store(file *storage.File, category storage.Category) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UploadErr != nil {
		return "", s.UploadErr
	}
	body, err := io.ReadAll(file.Body)
	if err != nil {
		return "", err
	}
	s.uploads++
	url := "https://files.test/" + string(category) + "/" + file.Name
	s.Objects[url] = body
	return url, nil
}

func (s *Store) Delete(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Deleted = append(s.Deleted, url)
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	delete(s.Objects, url)
	return nil
}

// Uploads returns how many uploads succeeded.
func (s *Store) Uploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads
}

// Has reports whether the url is still stored.
func (s *Store) Has(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.Objects[url]
	return ok
}
