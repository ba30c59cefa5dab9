package guards

import (
	"slices"

	"gnest/internal/infra/gnest"
	"gnest/internal/pkg/token"
)

const RolesKey = "roles"

// Roles lists the roles allowed on a controller or route; any one suffices.
func Roles(roles ...string) gnest.Metadata { return gnest.SetMetadata(RolesKey, roles) }

// RolesGuard denies principals lacking every role named by Roles metadata. Routes
// without the metadata pass.
type RolesGuard struct{}

func (RolesGuard) CanActivate(ctx *gnest.ExecutionContext) (bool, error) {
	required, _ := ctx.Metadata(RolesKey).([]string)
	if len(required) == 0 {
		return true, nil
	}
	claims, ok := ctx.Principal().(*token.Claims)
	if !ok {
		return false, nil
	}
	for _, r := range required {
		if slices.Contains(claims.Roles, r) {
			return true, nil
		}
	}
	return false, nil
}
