package role

import "testing"

func TestRankTotalOrder(t *testing.T) {
	ordered := All()
	for i := 1; i < len(ordered); i++ {
		if ordered[i-1].Rank() >= ordered[i].Rank() {
			t.Fatalf("expected %s < %s", ordered[i-1], ordered[i])
		}
	}
}

func TestSatisfiesHierarchy(t *testing.T) {
	for _, actual := range All() {
		for _, required := range All() {
			got := actual.Satisfies(required, false)
			want := actual.Rank() >= required.Rank()
			if got != want {
				t.Fatalf("Satisfies(%s, %s, strict=false) = %v, want %v", actual, required, got, want)
			}
		}
	}
}

func TestSatisfiesStrict(t *testing.T) {
	for _, actual := range All() {
		for _, required := range All() {
			got := actual.Satisfies(required, true)
			want := actual == required
			if got != want {
				t.Fatalf("Satisfies(%s, %s, strict=true) = %v, want %v", actual, required, got, want)
			}
		}
	}
}

func TestUnknownRoleFailsClosed(t *testing.T) {
	unknown := Role("root")
	if unknown.Rank() != 0 {
		t.Fatalf("expected rank 0 for unknown role, got %d", unknown.Rank())
	}
	for _, required := range All() {
		if unknown.Satisfies(required, false) {
			t.Fatalf("unknown role must not satisfy %s", required)
		}
	}
	if Member.Satisfies(unknown, false) {
		t.Fatal("no role may satisfy an unknown requirement")
	}
}

func TestParse(t *testing.T) {
	if r, ok := Parse("owner"); !ok || r != Owner {
		t.Fatalf("expected owner, got %s ok=%v", r, ok)
	}
	if _, ok := Parse("superuser"); ok {
		t.Fatal("expected unknown role to fail parse")
	}
}

func TestAssignable(t *testing.T) {
	if Assignable(SuperAdmin) {
		t.Fatal("super_admin must not be assignable through membership")
	}
	for _, r := range []Role{Member, Admin, Owner} {
		if !Assignable(r) {
			t.Fatalf("expected %s assignable", r)
		}
	}
}
