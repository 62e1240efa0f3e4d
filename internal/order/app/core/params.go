package core

const (
	WaitTime = 10 // seconds, request-scoped DB timeout

	MinItems = 1
	MaxItems = 50

	MinItemQuantity = 1
	MaxItemQuantity = 100

	MaxItemNameLen = 128
	MaxNoteLen     = 512
)

// Actor identifies who requested an operation. Role comes from the upstream
// auth collaborator; the engine only checks it against the table below.
type Actor struct {
	ID   int64
	Role string
}

const (
	RoleAdmin    = "admin"
	RoleStaff    = "staff"
	RoleKitchen  = "kitchen"
	RoleCustomer = "customer"
)

// CanTransition reports whether the role may change order or item state.
func (a Actor) CanTransition() bool {
	switch a.Role {
	case RoleAdmin, RoleStaff, RoleKitchen:
		return true
	}
	return false
}

// CanConfirm reports whether the role may confirm a customer-placed order.
func (a Actor) CanConfirm() bool {
	return a.Role == RoleAdmin || a.Role == RoleStaff
}

// CanDelete reports whether the role may hard-delete an order.
func (a Actor) CanDelete() bool {
	return a.Role == RoleAdmin
}

// IsStaff reports whether the actor is restaurant personnel of any kind.
func (a Actor) IsStaff() bool {
	return a.Role == RoleAdmin || a.Role == RoleStaff || a.Role == RoleKitchen
}
