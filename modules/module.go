package modules

import (
	"github.com/aukilabs/canvasindex/models"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// Module is the interface that describes an editor feature built on top of an
// element registry.
type Module interface {
	// Returns the module name.
	Name() string

	// Initializes the module.
	Init(*models.Registry)

	// Handles a rect change published by the registry the module is attached
	// to. The new rect is already indexed when it is called.
	HandleRectChange(models.RectChange)

	// Releases the module resources.
	Close()
}

// Attach initializes the given modules and forwards them the rect changes of
// the registry until the returned function is called.
func Attach(r *models.Registry, mods ...Module) (detach func()) {
	cancels := make([]func(), 0, len(mods))

	for _, m := range mods {
		m.Init(r)
		cancels = append(cancels, r.SubscribeAll(m.HandleRectChange))

		logs.WithTag("module", m.Name()).
			WithTag("registry_uuid", r.UUID).
			Debug("module attached")
	}

	return func() {
		for i, m := range mods {
			cancels[i]()
			m.Close()
		}
	}
}
