package credential

import (
	"context"
	"sync"
)

// InmemStore keeps the credential record in memory. Used in tests and
// when running without a credential file.
type InmemStore struct {
	lock sync.Mutex
	rec  *Record
}

var _ Store = (*InmemStore)(nil)

func NewInmemStore() *InmemStore {
	return &InmemStore{}
}

func (s *InmemStore) Load(_ context.Context) (*Record, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.rec == nil {
		return nil, ErrRecordNotFound
	}
	return s.rec.Clone(), nil
}

func (s *InmemStore) Save(_ context.Context, rec *Record) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.rec = rec.Clone()
	return nil
}

func (s *InmemStore) Delete(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.rec = nil
	return nil
}
