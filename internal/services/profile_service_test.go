package services

import (
	"context"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestProfileGetAndUpdate(t *testing.T) {
	store := newStubStore()
	store.addUser("u1", "ann@example.com", "Ann")
	store.addUser("u2", "bob@example.com", "Bob")
	store.admins["u1"] = true
	svc := NewProfileService(store)
	ctx := context.Background()
	ann := AccountIdentity("u1", "ann@example.com")

	p, err := svc.Get(ctx, ann)
	if err != nil || p.FullName != "Ann" || !p.IsAdmin {
		t.Fatalf("unexpected profile %+v %v", p, err)
	}
	if _, err := svc.Get(ctx, VisitorIdentity("vis-1")); !IsCode(err, ErrorUnauthorized) {
		t.Fatalf("visitors have no profile, got %v", err)
	}

	if _, err := svc.Update(ctx, ann, ProfileUpdate{FullName: strPtr(" bob ")}); !IsCode(err, ErrorConflict) {
		t.Fatalf("expected display name conflict, got %v", err)
	}
	if _, err := svc.Update(ctx, ann, ProfileUpdate{Email: strPtr("bob@example.com")}); !IsCode(err, ErrorConflict) {
		t.Fatalf("expected email conflict, got %v", err)
	}
	if _, err := svc.Update(ctx, ann, ProfileUpdate{Email: strPtr("nope")}); !IsCode(err, ErrorInvalid) {
		t.Fatalf("expected invalid email, got %v", err)
	}
	updated, err := svc.Update(ctx, ann, ProfileUpdate{FullName: strPtr("  Ann Marie "), Email: strPtr("ANN.M@example.com")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.FullName != "Ann Marie" || updated.Email != "ann.m@example.com" {
		t.Fatalf("unexpected update result %+v", updated)
	}
	again, _ := svc.Get(ctx, ann)
	if again.FullName != "Ann Marie" {
		t.Fatalf("update not persisted: %+v", again)
	}
}
