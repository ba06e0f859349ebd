package engine

import (
	"github.com/tombee/addonhost/internal/routetable"
	hosterrors "github.com/tombee/addonhost/pkg/errors"
)

// Collisions groups bindings by operation id and returns the ids used by
// more than one binding, each with "owner path" entries in table order.
func Collisions(bindings []routetable.Binding) map[string][]string {
	seen := make(map[string][]string)
	for _, b := range bindings {
		id := b.OperationID()
		seen[id] = append(seen[id], b.Owner+" "+b.Path)
	}
	for id, users := range seen {
		if len(users) < 2 {
			delete(seen, id)
		}
	}
	return seen
}

// enforceOperationIDs checks the whole live table. Callers hold e.mu.
func (e *Engine) enforceOperationIDs() error {
	collisions := Collisions(e.table.Snapshot())
	if len(collisions) == 0 {
		return nil
	}
	err := &hosterrors.OperationIDCollisionError{Collisions: collisions}
	e.logger.Error("route operation ids are not unique, refusing to serve",
		"ids", err.IDs())
	return err
}
