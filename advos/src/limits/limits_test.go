package limits

import "testing"

func TestTakenRefusesPastZero(t *testing.T) {
	var s Sysatomic_t
	s.Given(5)
	if !s.Taken(5) {
		t.Fatal("expected Taken(5) to succeed with 5 available")
	}
	if s.Taken(1) {
		t.Fatal("expected Taken(1) to fail with nothing left")
	}
}

func TestTakeGiveRoundTrip(t *testing.T) {
	var s Sysatomic_t
	s.Give()
	if !s.Take() {
		t.Fatal("expected Take to succeed after Give")
	}
	if s.Take() {
		t.Fatal("expected Take to fail once the balance is exhausted")
	}
}

func TestMkSysLimitDefaults(t *testing.T) {
	l := MkSysLimit()
	if l.Sysprocs != 1e4 {
		t.Fatalf("Sysprocs = %d, want 1e4", l.Sysprocs)
	}
}
