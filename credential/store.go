package credential

import "context"

// Store persists the credential record between process runs. A store
// holds at most one record; Load returns ErrRecordNotFound when
// nothing has been saved yet.
type Store interface {
	Load(ctx context.Context) (*Record, error)
	Save(ctx context.Context, rec *Record) error
	Delete(ctx context.Context) error
}
