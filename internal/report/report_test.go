package report

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{PhaseDiscovery, "discovery"},
		{PhaseResolve, "resolve"},
		{PhaseConfigureServices, "configure-services"},
		{PhaseConfigure, "configure"},
		{PhaseInitialize, "initialize"},
		{PhaseShutdown, "shutdown"},
		{PhaseDispatch, "dispatch"},
		{Phase(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.phase.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFailureString(t *testing.T) {
	f := Failure{
		Namespace:  "Finance",
		Identifier: "FinanceModule",
		Version:    "1.0.0",
		Phase:      PhaseInitialize,
		Cause:      errors.New("boom"),
		Time:       time.Now(),
	}

	got := f.String()
	for _, want := range []string{"Finance/FinanceModule@1.0.0", "initialize", "boom"} {
		if !strings.Contains(got, want) {
			t.Errorf("String() = %q, missing %q", got, want)
		}
	}
}

func TestReporterFunc(t *testing.T) {
	var got Failure
	r := ReporterFunc(func(f Failure) { got = f })

	r.Report(Failure{Namespace: "Orders", Phase: PhaseResolve})

	if got.Namespace != "Orders" || got.Phase != PhaseResolve {
		t.Errorf("Report delivered %+v", got)
	}
}

func TestDiscardDoesNotPanic(t *testing.T) {
	Discard.Report(Failure{Cause: errors.New("ignored")})
}

func TestRecorder(t *testing.T) {
	rec := NewRecorder()

	rec.Report(Failure{Namespace: "A", Phase: PhaseDiscovery})
	rec.Report(Failure{Namespace: "B", Phase: PhaseDispatch})
	rec.Report(Failure{Namespace: "C", Phase: PhaseDispatch})

	if got := rec.Len(); got != 3 {
		t.Errorf("Len() = %d, want 3", got)
	}
	if got := len(rec.ByPhase(PhaseDispatch)); got != 2 {
		t.Errorf("ByPhase(dispatch) = %d failures, want 2", got)
	}
	if got := len(rec.ByPhase(PhaseShutdown)); got != 0 {
		t.Errorf("ByPhase(shutdown) = %d failures, want 0", got)
	}

	// Failures returns a copy; mutating it must not affect the recorder.
	fs := rec.Failures()
	fs[0].Namespace = "mutated"
	if rec.Failures()[0].Namespace != "A" {
		t.Error("Failures() exposed internal slice")
	}

	rec.Reset()
	if got := rec.Len(); got != 0 {
		t.Errorf("Len() after Reset = %d, want 0", got)
	}
}

func TestRecorderConcurrent(t *testing.T) {
	rec := NewRecorder()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Report(Failure{Phase: PhaseDispatch})
		}()
	}
	wg.Wait()

	if got := rec.Len(); got != 20 {
		t.Errorf("Len() = %d, want 20", got)
	}
}
