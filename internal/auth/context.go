package auth

import "context"

const (
	RoleStaff     = "staff"
	RoleVolunteer = "volunteer"
)

type contextKey struct{}

// AuthContext identifies the caller of a request. For volunteers UserID is
// the volunteer id used on RSVPs and hour logs.
type AuthContext struct {
	UserID int64
	Role   string
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func UserID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.UserID
}

func IsStaff(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.Role == RoleStaff
}

func ValidRole(role string) bool {
	return role == RoleStaff || role == RoleVolunteer
}
