package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestErrorString(t *testing.T) {
	err := &Error{
		Phase:  PhaseSyscall,
		Kind:   KindInvalidDescriptor,
		Path:   []string{"fd_read", "5"},
		Detail: "descriptor 5 is not open",
	}

	got := err.Error()
	want := "[syscall] invalid_descriptor at fd_read.5: descriptor 5 is not open"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorStringWithCause(t *testing.T) {
	err := &Error{
		Phase: PhaseRun,
		Kind:  KindExecutionTrap,
		Cause: errors.New("unreachable"),
	}

	got := err.Error()
	if !strings.Contains(got, "(caused by: unreachable)") {
		t.Errorf("Error() = %q, missing cause", got)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root")
	err := Wrap(PhaseRun, KindExecutionTrap, cause, "wrapped")

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}

func TestErrorIs(t *testing.T) {
	err := InvalidDescriptor(7)

	if !err.Is(&Error{Phase: PhaseSyscall, Kind: KindInvalidDescriptor}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseRun, Kind: KindInvalidDescriptor}) {
		t.Error("Is should not match different phase")
	}
	if !err.Is(&Error{Kind: KindInvalidDescriptor}) {
		t.Error("Is should match on kind when phase is empty")
	}
	if err.Is(&Error{Kind: KindOutOfBounds}) {
		t.Error("Is should not match different kind")
	}
}

func TestIsKind(t *testing.T) {
	inner := ResourceExhausted("stdout", 16)
	outer := Wrap(PhaseRun, KindExecutionTrap, inner, "guest aborted")

	if !IsKind(outer, KindResourceExhausted) {
		t.Error("IsKind should walk the chain")
	}
	if !IsKind(outer, KindExecutionTrap) {
		t.Error("IsKind should match the outer error")
	}
	if IsKind(outer, KindTimeout) {
		t.Error("IsKind matched an absent kind")
	}
	if IsKind(errors.New("plain"), KindTimeout) {
		t.Error("IsKind matched a plain error")
	}
}

func TestKindOf(t *testing.T) {
	if k := KindOf(OutOfBounds(10, 4, 8)); k != KindOutOfBounds {
		t.Errorf("KindOf = %q, want %q", k, KindOutOfBounds)
	}
	if k := KindOf(NewUnsatisfiedImportError(MissingImport{Module: "env", Function: "foo"})); k != KindUnsatisfiedImport {
		t.Errorf("KindOf = %q, want %q", k, KindUnsatisfiedImport)
	}
	if k := KindOf(errors.New("plain")); k != "" {
		t.Errorf("KindOf = %q, want empty", k)
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseConfig, KindInvalidInput).
		Path("Preopens", "/data").
		Value("/missing").
		Cause(cause).
		Detail("host path %s does not exist", "/missing").
		Build()

	if err.Phase != PhaseConfig {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseConfig)
	}
	if err.Kind != KindInvalidInput {
		t.Errorf("Kind = %v, want %v", err.Kind, KindInvalidInput)
	}
	if len(err.Path) != 2 || err.Path[1] != "/data" {
		t.Errorf("Path = %v", err.Path)
	}
	if err.Value != "/missing" {
		t.Errorf("Value = %v", err.Value)
	}
	if !errors.Is(err, cause) {
		t.Error("Cause not reachable")
	}
	if err.Detail != "host path /missing does not exist" {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("OutOfBounds", func(t *testing.T) {
		err := OutOfBounds(65530, 10, 65536)
		if err.Kind != KindOutOfBounds {
			t.Errorf("Kind = %v", err.Kind)
		}
		if !strings.Contains(err.Detail, "65536") {
			t.Errorf("Detail = %q, should contain memory size", err.Detail)
		}
	})

	t.Run("InvalidOffset", func(t *testing.T) {
		err := InvalidOffset(-1)
		if err.Kind != KindInvalidOffset {
			t.Errorf("Kind = %v", err.Kind)
		}
		if err.Value != int64(-1) {
			t.Errorf("Value = %v", err.Value)
		}
	})

	t.Run("ResourceExhausted", func(t *testing.T) {
		err := ResourceExhausted("stdout", 4)
		if err.Kind != KindResourceExhausted {
			t.Errorf("Kind = %v", err.Kind)
		}
	})

	t.Run("Timeout", func(t *testing.T) {
		err := Timeout(PhaseRun, nil)
		if err.Kind != KindTimeout || err.Phase != PhaseRun {
			t.Errorf("got %v/%v", err.Phase, err.Kind)
		}
	})

	t.Run("InstantiationTrap", func(t *testing.T) {
		err := InstantiationTrap(errors.New("unreachable"))
		if err.Kind != KindInstantiationTrap {
			t.Errorf("Kind = %v", err.Kind)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		err := NotFound(PhaseRun, "export", "_start")
		if !strings.Contains(err.Error(), `"_start"`) {
			t.Errorf("Error() = %q", err.Error())
		}
	})
}

func TestUnsatisfiedImportError(t *testing.T) {
	t.Run("single import", func(t *testing.T) {
		err := NewUnsatisfiedImportError(MissingImport{Module: "env", Function: "foo_bar", Reason: "unknown module"})
		msg := err.Error()
		if !strings.Contains(msg, "env#foo_bar") {
			t.Errorf("Error() = %q", msg)
		}
		if !strings.Contains(msg, "unknown module") {
			t.Errorf("Error() = %q, missing reason", msg)
		}
	})

	t.Run("grouped by module", func(t *testing.T) {
		err := NewUnsatisfiedImportError(
			MissingImport{Module: "env", Function: "a"},
			MissingImport{Module: "wasi_snapshot_preview1", Function: "fd_frobnicate"},
			MissingImport{Module: "env", Function: "b"},
		)
		msg := err.Error()
		if !strings.Contains(msg, "3 host function(s)") {
			t.Errorf("Error() = %q, missing count", msg)
		}
		if strings.Count(msg, "env:") != 1 {
			t.Errorf("Error() = %q, module not grouped", msg)
		}
		names := err.Names()
		if len(names) != 3 || names[0] != "a" || names[1] != "fd_frobnicate" || names[2] != "b" {
			t.Errorf("Names() = %v", names)
		}
	})

	t.Run("empty", func(t *testing.T) {
		err := NewUnsatisfiedImportError()
		if !strings.Contains(err.Error(), "no imports specified") {
			t.Errorf("Error() = %q", err.Error())
		}
	})

	t.Run("errors.Is", func(t *testing.T) {
		err := NewUnsatisfiedImportError(MissingImport{Module: "env", Function: "f"})
		if !errors.Is(err, &UnsatisfiedImportError{}) {
			t.Error("errors.Is should match UnsatisfiedImportError")
		}
		if !IsKind(err, KindUnsatisfiedImport) {
			t.Error("IsKind should match unsatisfied_import")
		}
	})
}

func TestDemangleRust(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"fd_write", "fd_write"},
		{
			"_ZN4core3ptr8write_fn17ha1b2c3d4e5f67890E",
			"core::ptr::write_fn",
		},
		{
			"_ZN5hello4host7imports3log17h0123456789abcdefE",
			"hello::host::imports::log",
		},
	}

	for _, tt := range tests {
		name := tt.input
		if len(name) > 30 {
			name = name[:30]
		}
		t.Run(name, func(t *testing.T) {
			if got := demangleRust(tt.input); got != tt.expected {
				t.Errorf("demangleRust(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
