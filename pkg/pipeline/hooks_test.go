// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"context"
	"errors"
	"testing"
)

func TestHub_FirstOpinionWins(t *testing.T) {
	t.Parallel()

	var hub Hub
	var calls []string
	hub.OnModuleRequest(func(_ context.Context, req ModuleRequest) (Decision, error) {
		calls = append(calls, "first")
		return NoOpinion, nil
	})
	hub.OnModuleRequest(func(_ context.Context, req ModuleRequest) (Decision, error) {
		calls = append(calls, "second")
		return Decision{External: true, Global: "React"}, nil
	})
	hub.OnModuleRequest(func(_ context.Context, req ModuleRequest) (Decision, error) {
		calls = append(calls, "third")
		return Decision{External: true, Global: "Other"}, nil
	})

	d, err := hub.EmitModuleRequest(context.Background(), ModuleRequest{Request: "react"})
	if err != nil {
		t.Fatalf("EmitModuleRequest: %v", err)
	}
	if d.Global != "React" {
		t.Errorf("Global = %q, want %q", d.Global, "React")
	}
	if len(calls) != 2 {
		t.Errorf("handlers after the first opinion must not run, calls = %v", calls)
	}
}

func TestHub_NoSubscribersMeansNoOpinion(t *testing.T) {
	t.Parallel()

	var hub Hub
	d, err := hub.EmitModuleRequest(context.Background(), ModuleRequest{Request: "lodash"})
	if err != nil {
		t.Fatalf("EmitModuleRequest: %v", err)
	}
	if !d.IsZero() {
		t.Errorf("expected NoOpinion, got %+v", d)
	}
}

func TestHub_ErrorsStopEmission(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	var hub Hub
	ran := false
	hub.OnEntryResolved(func(context.Context, string, []Entry) error { return boom })
	hub.OnEntryResolved(func(context.Context, string, []Entry) error { ran = true; return nil })
	hub.OnOptimizeAssetsComplete(func(context.Context, Artifacts) error { return boom })

	if err := hub.EmitEntryResolved(context.Background(), "/", nil); !errors.Is(err, boom) {
		t.Errorf("EmitEntryResolved() = %v, want %v", err, boom)
	}
	if ran {
		t.Error("second entry handler ran after an error")
	}
	if err := hub.EmitOptimizeAssetsComplete(context.Background(), NewMemoryArtifacts(nil)); !errors.Is(err, boom) {
		t.Errorf("EmitOptimizeAssetsComplete() = %v, want %v", err, boom)
	}
}

func TestMemoryArtifacts(t *testing.T) {
	t.Parallel()

	arts := NewMemoryArtifacts(map[string][]byte{"b.js": []byte("b"), "a.js": []byte("a")})

	names := arts.Names()
	if len(names) != 2 || names[0] != "a.js" || names[1] != "b.js" {
		t.Fatalf("Names() = %v, want [a.js b.js]", names)
	}

	if err := arts.Replace("a.js", []byte("A")); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if got, _ := arts.Get("a.js"); string(got) != "A" {
		t.Errorf("Get(a.js) = %q, want %q", got, "A")
	}

	if err := arts.Replace("missing.js", nil); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("Replace(missing) = %v, want ErrArtifactNotFound", err)
	}
	if _, ok := arts.Get("missing.js"); ok {
		t.Error("Get(missing) reported ok")
	}
}
