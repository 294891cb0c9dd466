package capture

import (
	"context"

	"github.com/steveyegge/authcap/internal/credstore"
)

// Browser launches interactive browser sessions.
type Browser interface {
	// Launch opens a visible browser, seeded with the given session state
	// when seed is non-nil.
	Launch(ctx context.Context, seed *credstore.StorageState) (Session, error)
}

// Session is one open browser.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// StorageState reads cookies and localStorage from every open page.
	StorageState(ctx context.Context) (credstore.StorageState, error)
	Close() error
}
