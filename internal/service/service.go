// Package service holds the point-of-sale business rules: the table
// registry, the order state machine, sale finalization, inventory, staff
// and reporting. Services depend only on store.Store and small collaborator
// interfaces declared here.
package service

import (
	"context"
	"time"

	"github.com/mesapos/api/internal/enum"
	"github.com/mesapos/api/internal/model"
)

// Notifier fans live events out to connected dashboards. An empty branch
// reaches every subscriber. Satisfied by *ws.Hub.
type Notifier interface {
	Publish(branch, eventType string, payload any)
}

// BlobStore saves uploaded files and returns the URL they are served at.
// Satisfied by *blob.Local.
type BlobStore interface {
	Upload(ctx context.Context, path string, data []byte) (string, error)
}

type nopNotifier struct{}

func (nopNotifier) Publish(string, string, any) {}

func orNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

// Visible reports whether session may see or act on a record of branch.
// Admins reach every branch; other staff only their own.
func Visible(session model.Session, branch string) bool {
	return session.Role == enum.RoleAdmin || session.Branch == branch
}

// now is swapped in tests.
var now = func() time.Time { return time.Now().UTC() }
