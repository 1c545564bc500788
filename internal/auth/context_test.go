package auth

import (
	"context"
	"testing"
)

func TestWithAuthAndFromContext(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{UserID: 7, Role: RoleStaff})

	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected AuthContext in context")
	}
	if got.UserID != 7 {
		t.Errorf("UserID = %d, want 7", got.UserID)
	}
	if !IsStaff(ctx) {
		t.Error("IsStaff = false, want true")
	}
	if UserID(ctx) != 7 {
		t.Errorf("UserID() = %d, want 7", UserID(ctx))
	}
}

func TestFromContextMissing(t *testing.T) {
	ctx := context.Background()
	if _, ok := FromContext(ctx); ok {
		t.Error("expected no AuthContext")
	}
	if UserID(ctx) != 0 {
		t.Error("UserID should be 0 without auth")
	}
	if IsStaff(ctx) {
		t.Error("IsStaff should be false without auth")
	}
}

func TestVolunteerIsNotStaff(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{UserID: 1, Role: RoleVolunteer})
	if IsStaff(ctx) {
		t.Error("volunteer should not be staff")
	}
}
