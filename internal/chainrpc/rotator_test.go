package chainrpc

import "testing"

func TestRotatorNextWrapsAndDefaultsToFirst(t *testing.T) {
	r := NewRotator([]string{"a", "b", "c"}, nil)

	if got := r.Next("a"); got != "b" {
		t.Fatalf("expected b, got %s", got)
	}
	if got := r.Next("c"); got != "a" {
		t.Fatalf("expected wraparound to a, got %s", got)
	}
	if got := r.Next("unknown"); got != "a" {
		t.Fatalf("expected unknown current to default to a, got %s", got)
	}
}

func TestRotatorVisitsEveryEndpointWithinNFailures(t *testing.T) {
	r := NewRotator([]string{"a", "b", "c"}, nil)

	visited := map[string]bool{r.Current(): true}
	current := r.Current()
	for i := 0; i < len(r.Endpoints())-1; i++ {
		current = r.Next(current)
		visited[current] = true
	}

	for _, e := range r.Endpoints() {
		if !visited[e] {
			t.Fatalf("expected endpoint %s to be visited within N-1 rotations", e)
		}
	}
}

func TestRecordOkEWMA(t *testing.T) {
	r := NewRotator([]string{"a"}, nil)

	r.RecordOk("a", 100)
	if got := r.Stats("a").AvgLatencyMs; got != 100 {
		t.Fatalf("expected first sample to seed avg at 100, got %v", got)
	}

	r.RecordOk("a", 200)
	want := 100*0.8 + 200*0.2
	if got := r.Stats("a").AvgLatencyMs; got != want {
		t.Fatalf("expected EWMA %.4f, got %.4f", want, got)
	}
}

func TestRecordFailIncrementsCounter(t *testing.T) {
	r := NewRotator([]string{"a"}, nil)
	r.RecordFail("a")
	r.RecordFail("a")
	if got := r.Stats("a").Fail; got != 2 {
		t.Fatalf("expected 2 failures recorded, got %d", got)
	}
}
