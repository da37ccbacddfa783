package matcher

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks PersonDirectory,GroupRoles

import (
	"context"

	"github.com/iota-uz/registrar/modules/registration/hitobito"
)

// PersonDirectory reads person details from the registry.
type PersonDirectory interface {
	GetDetails(ctx context.Context, personID string) (hitobito.DetailsResult, error)
}

// GroupRoles grants and revokes the temporary support-group role.
type GroupRoles interface {
	AddPerson(ctx context.Context, personID, groupID, roleType string, opts hitobito.AddPersonOptions) (bool, error)
	GetPersonRoles(ctx context.Context, personID, groupID string) ([]hitobito.RoleResource, error)
	RemoveRole(ctx context.Context, roleID string) (bool, error)
}
