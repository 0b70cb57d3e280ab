package governance

import (
	"fmt"

	"github.com/ruteri/certificate-manager/interfaces"
)

// AccessControl owns the single administrator identity and gates every
// privileged operation. It is not safe for concurrent use; the engine
// serializes access.
type AccessControl struct {
	owner interfaces.Identity
}

// NewAccessControl creates an AccessControl administered by owner.
func NewAccessControl(owner interfaces.Identity) (*AccessControl, error) {
	if owner.IsZero() {
		return nil, fmt.Errorf("%w: owner must not be the zero identity", interfaces.ErrInvalidArgument)
	}
	return &AccessControl{owner: owner}, nil
}

// Owner returns the current administrator.
func (a *AccessControl) Owner() interfaces.Identity {
	return a.owner
}

// Authorize fails with ErrUnauthorized unless caller is the owner.
func (a *AccessControl) Authorize(caller interfaces.Identity) error {
	if caller != a.owner {
		return fmt.Errorf("%w: %s is not the owner", interfaces.ErrUnauthorized, caller)
	}
	return nil
}

// ChangeOwner replaces the owner. Only the current owner may call it and the
// new owner must not be the zero identity.
func (a *AccessControl) ChangeOwner(caller, newOwner interfaces.Identity) (interfaces.Notification, error) {
	if err := a.Authorize(caller); err != nil {
		return interfaces.Notification{}, err
	}
	if newOwner.IsZero() {
		return interfaces.Notification{}, fmt.Errorf("%w: new owner must not be the zero identity", interfaces.ErrInvalidArgument)
	}

	previous := a.owner
	a.owner = newOwner
	return interfaces.NewOwnerChanged(previous, newOwner), nil
}
