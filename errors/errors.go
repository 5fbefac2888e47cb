package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates where in a session's lifecycle the error occurred
type Phase string

const (
	PhaseLoad        Phase = "load"        // reading module bytes
	PhaseValidate    Phase = "validate"    // module decoding and validation
	PhaseLink        Phase = "link"        // import resolution
	PhaseInstantiate Phase = "instantiate" // instance creation and start section
	PhaseRun         Phase = "run"         // entry point execution
	PhaseSyscall     Phase = "syscall"     // inside a single host call
	PhaseConfig      Phase = "config"      // session configuration
	PhaseHost        Phase = "host"        // host module registration
)

// Kind categorizes the error
type Kind string

const (
	KindValidation        Kind = "validation"
	KindUnsatisfiedImport Kind = "unsatisfied_import"
	KindInstantiationTrap Kind = "instantiation_trap"
	KindInvalidDescriptor Kind = "invalid_descriptor"
	KindOutOfBounds       Kind = "out_of_bounds"
	KindInvalidOffset     Kind = "invalid_offset"
	KindResourceExhausted Kind = "resource_exhausted"
	KindExecutionTrap     Kind = "execution_trap"
	KindTimeout           Kind = "timeout"
	KindNotSupported      Kind = "not_supported"
	KindInvalidInput      Kind = "invalid_input"
	KindNotFound          Kind = "not_found"
	KindClosed            Kind = "closed"
	KindUnavailable       Kind = "unavailable"
	KindRegistration      Kind = "registration"
)

// Error is the structured error type used throughout the host
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target with an empty Phase matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// IsKind reports whether any error in err's chain is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var u *UnsatisfiedImportError
	if errors.As(err, &u) {
		return KindUnsatisfiedImport
	}
	return ""
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the path (function name, descriptor, config field)
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Validation creates a module validation error
func Validation(cause error) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindValidation,
		Detail: "invalid module",
		Cause:  cause,
	}
}

// InstantiationTrap creates an error for a trap raised while instantiating
func InstantiationTrap(cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindInstantiationTrap,
		Detail: "module start-up trapped",
		Cause:  cause,
	}
}

// ExecutionTrap creates an error for a trap raised by the entry point
func ExecutionTrap(entry string, cause error) *Error {
	return &Error{
		Phase:  PhaseRun,
		Kind:   KindExecutionTrap,
		Path:   []string{entry},
		Detail: "execution trapped",
		Cause:  cause,
	}
}

// Timeout creates a deadline error
func Timeout(phase Phase, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTimeout,
		Detail: "deadline exceeded",
		Cause:  cause,
	}
}

// InvalidDescriptor creates an error for a closed or unknown descriptor
func InvalidDescriptor(fd uint32) *Error {
	return &Error{
		Phase:  PhaseSyscall,
		Kind:   KindInvalidDescriptor,
		Detail: fmt.Sprintf("descriptor %d is not open", fd),
		Value:  fd,
	}
}

// OutOfBounds creates an out of bounds memory access error
func OutOfBounds(offset, length uint64, size uint32) *Error {
	return &Error{
		Phase:  PhaseSyscall,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("range [%d, %d) exceeds memory size %d", offset, offset+length, size),
		Value:  offset,
	}
}

// InvalidOffset creates an error for a negative or unrepresentable offset
func InvalidOffset(offset int64) *Error {
	return &Error{
		Phase:  PhaseSyscall,
		Kind:   KindInvalidOffset,
		Detail: fmt.Sprintf("offset %d is not a valid 32-bit address", offset),
		Value:  offset,
	}
}

// ResourceExhausted creates an error for a write beyond a sink's capacity
func ResourceExhausted(what string, capacity int) *Error {
	return &Error{
		Phase:  PhaseSyscall,
		Kind:   KindResourceExhausted,
		Detail: fmt.Sprintf("%s capacity of %d bytes exceeded", what, capacity),
		Value:  capacity,
	}
}

// NotSupported creates an unsupported operation error
func NotSupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotSupported,
		Detail: what,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Closed creates an error for use of a torn-down object
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", what),
	}
}

// Unavailable creates an error for a module refusing new sessions
func Unavailable(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindUnavailable,
		Detail: what,
		Cause:  cause,
	}
}

// Registration creates a host module registration error
func Registration(module, name string, cause error) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s#%s", module, name),
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidInput,
		Detail: detail,
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingImport represents a single unresolved import
type MissingImport struct {
	Module    string // e.g., "wasi_snapshot_preview1"
	Function  string // e.g., "fd_write"
	Signature string // e.g., "(i32, i32, i32, i32) -> (i32)"
	Reason    string // why resolution failed
}

// UnsatisfiedImportError is returned when a module needs host functions the
// syscall surface cannot provide. It names every missing function.
type UnsatisfiedImportError struct {
	Imports []MissingImport
}

// NewUnsatisfiedImportError creates an error from a list of missing imports
func NewUnsatisfiedImportError(imports ...MissingImport) *UnsatisfiedImportError {
	return &UnsatisfiedImportError{Imports: imports}
}

// Names returns the function names of all missing imports
func (e *UnsatisfiedImportError) Names() []string {
	names := make([]string, 0, len(e.Imports))
	for _, imp := range e.Imports {
		names = append(names, imp.Function)
	}
	return names
}

func (e *UnsatisfiedImportError) Error() string {
	if len(e.Imports) == 0 {
		return "[link] unsatisfied_import: no imports specified"
	}

	if len(e.Imports) == 1 {
		imp := e.Imports[0]
		msg := fmt.Sprintf("[link] unsatisfied_import: %s#%s", imp.Module, demangleRust(imp.Function))
		if imp.Reason != "" {
			msg += " (" + imp.Reason + ")"
		}
		return msg
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("[link] unsatisfied_import: %d host function(s):\n", len(e.Imports)))

	// Group by module for cleaner output
	byModule := make(map[string][]MissingImport)
	var order []string
	for _, imp := range e.Imports {
		if _, exists := byModule[imp.Module]; !exists {
			order = append(order, imp.Module)
		}
		byModule[imp.Module] = append(byModule[imp.Module], imp)
	}

	for _, mod := range order {
		b.WriteString("\n  ")
		b.WriteString(mod)
		b.WriteString(":\n")
		for _, imp := range byModule[mod] {
			b.WriteString("    - ")
			b.WriteString(demangleRust(imp.Function))
			if imp.Signature != "" {
				b.WriteByte(' ')
				b.WriteString(imp.Signature)
			}
			if imp.Reason != "" {
				b.WriteString(" (")
				b.WriteString(imp.Reason)
				b.WriteByte(')')
			}
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *UnsatisfiedImportError) Is(target error) bool {
	switch t := target.(type) {
	case *UnsatisfiedImportError:
		return true
	case *Error:
		return t.Kind == KindUnsatisfiedImport
	}
	return false
}

// demangleRust attempts to extract a readable function name from a mangled Rust symbol
func demangleRust(name string) string {
	// Rust mangled names start with _ZN
	if !strings.HasPrefix(name, "_ZN") {
		return name
	}

	// Format: _ZN<len><name><len><name>...E
	s := name[3:]
	var parts []string

	for len(s) > 0 && s[0] != 'E' {
		lenEnd := 0
		for lenEnd < len(s) && s[lenEnd] >= '0' && s[lenEnd] <= '9' {
			lenEnd++
		}
		if lenEnd == 0 {
			break
		}

		length := 0
		for i := 0; i < lenEnd; i++ {
			length = length*10 + int(s[i]-'0')
		}
		s = s[lenEnd:]
		if length > len(s) {
			break
		}

		part := s[:length]
		s = s[length:]

		// Skip the trailing hash segment (h followed by hex digits)
		if len(part) == 17 && part[0] == 'h' {
			allHex := true
			for _, c := range part[1:] {
				if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
					allHex = false
					break
				}
			}
			if allHex {
				continue
			}
		}
		parts = append(parts, part)
	}

	if len(parts) == 0 {
		return name
	}

	return strings.Join(parts, "::")
}
