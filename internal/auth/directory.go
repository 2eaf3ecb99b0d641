package auth

import "github.com/plcgate/authd/internal/models"

// Directory looks up registered principals and clients. Implementations
// must be safe for concurrent use. The static directory is read-only
// after construction and needs no locking; a storage-backed directory
// can replace it without touching dispatch logic.
type Directory interface {
	FindPrincipal(username string) (models.Principal, bool)
	FindClient(clientID string) (models.Client, bool)
}

// StaticDirectory is a Directory backed by maps built once at startup
// from the seed file.
type StaticDirectory struct {
	principals map[string]models.Principal
	clients    map[string]models.Client
}

// NewStaticDirectory builds a directory from seeded principals and
// clients. Later entries with duplicate keys are not expected here; the
// seed loader rejects them.
func NewStaticDirectory(principals []models.Principal, clients []models.Client) *StaticDirectory {
	d := &StaticDirectory{
		principals: make(map[string]models.Principal, len(principals)),
		clients:    make(map[string]models.Client, len(clients)),
	}

	for _, p := range principals {
		d.principals[p.Username] = p
	}

	for _, c := range clients {
		d.clients[c.ClientID] = c
	}

	return d
}

// FindPrincipal returns the principal for a username, if registered.
func (d *StaticDirectory) FindPrincipal(username string) (models.Principal, bool) {
	p, ok := d.principals[username]
	return p, ok
}

// FindClient returns the client for a client_id, if registered.
func (d *StaticDirectory) FindClient(clientID string) (models.Client, bool) {
	c, ok := d.clients[clientID]
	return c, ok
}
