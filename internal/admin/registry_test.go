package admin

import "testing"

func TestRegistry_Authenticate(t *testing.T) {
	r := NewRegistry("hunter2")

	if r.Authenticate(1, "wrong") {
		t.Error("wrong password should not elevate")
	}
	if r.IsAdmin(1) {
		t.Error("failed login must not elevate")
	}

	if !r.Authenticate(1, "hunter2") {
		t.Fatal("correct password should elevate")
	}
	if !r.IsAdmin(1) {
		t.Error("user should be elevated after login")
	}
}

func TestRegistry_EmptyPasswordNeverAuthenticates(t *testing.T) {
	r := NewRegistry("")
	if r.Authenticate(1, "") {
		t.Error("empty configured password must reject all logins")
	}
}

func TestRegistry_LogoutAndList(t *testing.T) {
	r := NewRegistry("pw")
	r.Authenticate(1, "pw")
	r.Authenticate(2, "pw")

	if got := len(r.List()); got != 2 {
		t.Fatalf("List length = %d, want 2", got)
	}

	r.Logout(1)
	if r.IsAdmin(1) {
		t.Error("logout should drop elevation")
	}
	if !r.IsAdmin(2) {
		t.Error("logout of one admin must not affect another")
	}
	r.Logout(1) // no-op
}
