package types

// Container is a node of the scope tree. The root has an empty ParentID,
// projects are the root's direct children, and the shared container is a
// special child of the root that every project falls back to.
type Container struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
	Name     string `json:"name"`
}

// Topology resolves containers to their owning project and to the shared
// container. Implementations must be safe for concurrent use.
type Topology interface {
	// Container returns the container with the given id.
	Container(id string) (Container, bool)
	// Project returns the id of the project that owns the container. The root
	// and every project resolve to themselves.
	Project(id string) string
	// Shared returns the id of the shared container.
	Shared() string
	// Children returns the direct children of a container.
	Children(id string) []Container
}

// Actor identifies the user on whose behalf an operation runs.
type Actor struct {
	ID   int64
	Name string
}

// System is the actor used when no user is involved.
var System = Actor{ID: 0, Name: "system"}

// Permissions answers read-permission checks for an actor.
type Permissions interface {
	CanRead(actor Actor, containerID string) bool
}

// AllowAll grants every read.
type AllowAll struct{}

// CanRead always returns true.
func (AllowAll) CanRead(Actor, string) bool { return true }

// MvPolicy reports which missing-value codes are valid in a container.
type MvPolicy interface {
	Valid(containerID, code string) bool
}

// MvCodes accepts the same codes in every container.
type MvCodes []string

// Valid reports whether code is one of the configured codes.
func (m MvCodes) Valid(_ string, code string) bool {
	for _, c := range m {
		if c == code {
			return true
		}
	}
	return false
}
