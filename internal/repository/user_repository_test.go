package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/escape-room-manager/internal/model"
)

func (f *fixture) user(t *testing.T, username string, role model.Role) model.User {
	t.Helper()
	u := model.User{Username: username, Role: role}
	if err := f.users.Create(ctx, &u, "correct-horse"); err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", model.RoleStaff)

	got, err := f.users.Authenticate(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != alice.ID || got.Role != model.RoleStaff {
		t.Fatalf("user = %+v", got)
	}

	_, wrongPassword := f.users.Authenticate(ctx, "alice", "wrong")
	_, unknownUser := f.users.Authenticate(ctx, "mallory", "wrong")
	if !errors.Is(wrongPassword, ErrInvalidCredentials) || !errors.Is(unknownUser, ErrInvalidCredentials) {
		t.Fatalf("errors = %v / %v", wrongPassword, unknownUser)
	}
	if wrongPassword.Error() != unknownUser.Error() {
		t.Fatal("wrong password and unknown user are distinguishable")
	}
	if _, err := f.users.Authenticate(ctx, "Alice", "correct-horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("usernames must be case-sensitive: %v", err)
	}
}

func TestUserCreateRules(t *testing.T) {
	f := newFixture(t)
	f.user(t, "bob", model.RoleAdmin)

	dup := model.User{Username: "bob", Role: model.RoleStaff}
	if err := f.users.Create(ctx, &dup, "another-pass"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate username: %v", err)
	}
	short := model.User{Username: "carol", Role: model.RoleStaff}
	if err := f.users.Create(ctx, &short, "abc"); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("short password: %v", err)
	}
	noRole := model.User{Username: "dave"}
	if err := f.users.Create(ctx, &noRole, "long-enough"); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("missing role: %v", err)
	}
}

func TestUserUpdateAndPassword(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "erin", model.RoleStaff)

	u.Role = model.RoleAdmin
	u.Email = "erin@example.com"
	if err := f.users.Update(ctx, &u); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got, _ := f.users.FindByID(ctx, u.ID); got.Role != model.RoleAdmin || got.Email != "erin@example.com" {
		t.Fatalf("after update = %+v", got)
	}
	// Update must not touch the password
	if _, err := f.users.Authenticate(ctx, "erin", "correct-horse"); err != nil {
		t.Fatalf("password lost on update: %v", err)
	}

	if err := f.users.UpdatePassword(ctx, u.ID, "new-secret"); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}
	if _, err := f.users.Authenticate(ctx, "erin", "correct-horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
	if _, err := f.users.Authenticate(ctx, "erin", "new-secret"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
	if err := f.users.UpdatePassword(ctx, 999, "new-secret"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("UpdatePassword missing: %v", err)
	}
}

func TestUserListAndDelete(t *testing.T) {
	f := newFixture(t)
	zed := f.user(t, "zed", model.RoleStaff)
	f.user(t, "amy", model.RoleAdmin)
	if err := f.tokens.StoreRefresh(ctx, zed.ID, "hash-zed", time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	all, _ := f.users.FindAll(ctx)
	if len(all) != 2 || all[0].Username != "amy" {
		t.Fatalf("FindAll = %+v", all)
	}
	if err := f.users.Delete(ctx, zed.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.tokens.ValidateRefresh(ctx, "hash-zed"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("token survived user delete: %v", err)
	}
	if err := f.users.Delete(ctx, zed.ID); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("second Delete: %v", err)
	}
	if n, _ := f.users.Count(ctx); n != 1 {
		t.Fatalf("Count = %d", n)
	}
}

func TestRefreshTokens(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "frank", model.RoleStaff)
	future := time.Now().Add(time.Hour)

	for _, h := range []string{"a", "b", "c"} {
		if err := f.tokens.StoreRefresh(ctx, u.ID, h, future); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.tokens.StoreRefresh(ctx, u.ID, "expired", time.Now().Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}

	if id, err := f.tokens.ValidateRefresh(ctx, "a"); err != nil || id != u.ID {
		t.Fatalf("ValidateRefresh = %d, %v", id, err)
	}
	if _, err := f.tokens.ValidateRefresh(ctx, "expired"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token: %v", err)
	}
	if _, err := f.tokens.ValidateRefresh(ctx, "unknown"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("unknown token: %v", err)
	}

	if err := f.tokens.RevokeByHash(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.tokens.ValidateRefresh(ctx, "a"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("revoked token: %v", err)
	}
	if _, err := f.tokens.ValidateRefresh(ctx, "b"); err != nil {
		t.Fatalf("sibling token revoked: %v", err)
	}

	if err := f.tokens.RevokeAllForUser(ctx, u.ID); err != nil {
		t.Fatal(err)
	}
	for _, h := range []string{"b", "c"} {
		if _, err := f.tokens.ValidateRefresh(ctx, h); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %s after RevokeAllForUser: %v", h, err)
		}
	}
}
