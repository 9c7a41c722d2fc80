package user

import "testing"

func TestRegistry_EnsureAndGet(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.Get(1); ok {
		t.Fatal("Get before Ensure should miss")
	}

	info := r.Ensure(1)
	if info.Agreed || info.Banned || info.Muted {
		t.Errorf("fresh user has flags set: %+v", info)
	}
	if _, ok := r.Get(1); !ok {
		t.Error("Get after Ensure should hit")
	}
}

func TestRegistry_Flags(t *testing.T) {
	r := NewRegistry()

	r.SetAgreed(1, true)
	r.SetBanned(2, true)
	r.SetMuted(3, true)

	if !r.HasAgreed(1) || r.HasAgreed(2) {
		t.Error("agreed flag wrong")
	}
	if !r.IsBanned(2) || r.IsBanned(1) {
		t.Error("banned flag wrong")
	}
	if !r.IsMuted(3) || r.IsMuted(1) {
		t.Error("muted flag wrong")
	}

	r.SetBanned(2, false)
	if r.IsBanned(2) {
		t.Error("unban did not clear the flag")
	}

	// Unknown users carry no flags.
	if r.IsBanned(99) || r.IsMuted(99) || r.HasAgreed(99) {
		t.Error("unknown user should have no flags")
	}
}

func TestRegistry_Counts(t *testing.T) {
	r := NewRegistry()
	r.SetAgreed(1, true)
	r.SetAgreed(2, true)
	r.SetAgreed(2, false)
	r.SetBanned(3, true)

	if got := r.AgreedCount(); got != 1 {
		t.Errorf("AgreedCount = %d, want 1", got)
	}
	if got := r.BannedCount(); got != 1 {
		t.Errorf("BannedCount = %d, want 1", got)
	}
}

func TestRegistry_SnapshotIsolation(t *testing.T) {
	r := NewRegistry()
	r.SetInterests(1, []string{"music"})

	info, _ := r.Get(1)
	info.Interests[0] = "mutated"

	again, _ := r.Get(1)
	if again.Interests[0] != "music" {
		t.Errorf("snapshot mutation leaked into the registry: %q", again.Interests[0])
	}
}
