package monitor

import "testing"

func TestBreaker(t *testing.T) {
	b := NewBreaker(3)

	if b.Fail() || b.Fail() {
		t.Fatal("Breaker tripped before threshold")
	}
	if !b.Fail() {
		t.Fatal("Expected breaker to trip on third failure")
	}
	if !b.Tripped() || b.Count() != 3 {
		t.Errorf("Expected tripped with count 3, got %v %d", b.Tripped(), b.Count())
	}

	b.Reset()
	if b.Tripped() || b.Count() != 0 {
		t.Error("Reset must clear the breaker")
	}

	b.Fail()
	b.Fail()
	b.Reset()
	if b.Fail() {
		t.Error("Success must reset the consecutive error count")
	}
}

func TestBreakerMinimumThreshold(t *testing.T) {
	b := NewBreaker(0)
	if b.Threshold() != 1 {
		t.Errorf("Expected threshold 1, got %d", b.Threshold())
	}
	if !b.Fail() {
		t.Error("Expected breaker to trip on first failure")
	}
}
