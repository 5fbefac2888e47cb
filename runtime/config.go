package runtime

import (
	"encoding/json"
	"io"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"

	wasihost "github.com/wippyai/wasi-host"
	"github.com/wippyai/wasi-host/errors"
)

// DefaultEntryPoint is the export invoked when Config.EntryPoint is empty.
const DefaultEntryPoint = "_start"

// ClockMode selects the time source of a session.
type ClockMode string

const (
	ClockSystem ClockMode = "system"
	// ClockFake starts at the Unix epoch and advances one microsecond per read.
	ClockFake ClockMode = "fake"
)

// PreopenDir describes a directory exposed to the guest.
type PreopenDir struct {
	// Files seeds an in-memory directory. Keys are slash-separated paths
	// relative to the directory root.
	Files map[string]string `yaml:"files" json:"files,omitempty"`

	// HostPath mounts a host directory. Empty means a fresh in-memory
	// filesystem.
	HostPath string `yaml:"host_path" json:"host_path,omitempty"`

	ReadOnly bool `yaml:"read_only" json:"read_only,omitempty"`
}

// Config is the snapshot a session is created from. It is copied when the
// session is built, so later changes do not affect a running guest.
type Config struct {
	// Stdin, Stdout and Stderr redirect the standard descriptors. When
	// Stdout or Stderr is set, that stream is not captured in the Result.
	StdinReader io.Reader `yaml:"-" json:"-"`
	Stdout      io.Writer `yaml:"-" json:"-"`
	Stderr      io.Writer `yaml:"-" json:"-"`

	// ClockSource overrides Clock with a caller-supplied time source.
	ClockSource wasihost.Clock `yaml:"-" json:"-"`

	// RandSeed makes random_get deterministic.
	RandSeed *uint64 `yaml:"rand_seed" json:"rand_seed,omitempty"`

	Preopens map[string]PreopenDir `yaml:"preopens" json:"preopens,omitempty" validate:"dive,keys,required,endkeys"`

	// Stdin is the data served on descriptor 0 when StdinReader is nil.
	Stdin string `yaml:"stdin" json:"stdin,omitempty"`

	EntryPoint  string    `yaml:"entry_point" json:"entry_point,omitempty"`
	// EntryParams are passed to the entry point, encoded as in wazero's
	// api.Function. Their count must match the export's parameters.
	EntryParams []uint64  `yaml:"entry_params" json:"entry_params,omitempty"`
	Clock       ClockMode `yaml:"clock" json:"clock,omitempty" validate:"omitempty,oneof=system fake" jsonschema:"enum=system,enum=fake"`

	Args []string `yaml:"args" json:"args,omitempty"`

	// Env is an ordered list of KEY=VALUE pairs.
	Env []string `yaml:"env" json:"env,omitempty" validate:"dive,envpair"`

	// MaxOutputBytes caps captured stdout and stderr each. Zero is unbounded.
	MaxOutputBytes int `yaml:"max_output_bytes" json:"max_output_bytes,omitempty" validate:"gte=0"`

	// Timeout bounds the whole run; SyscallTimeout bounds a single blocking
	// read. Zero disables either.
	Timeout        time.Duration `yaml:"timeout" json:"timeout,omitempty" validate:"gte=0"`
	SyscallTimeout time.Duration `yaml:"syscall_timeout" json:"syscall_timeout,omitempty" validate:"gte=0"`

	TraceSyscalls bool `yaml:"trace_syscalls" json:"trace_syscalls,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("envpair", func(fl validator.FieldLevel) bool {
		return strings.IndexByte(fl.Field().String(), '=') > 0
	})
	return v
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("invalid session config").
			Cause(err).
			Build()
	}
	return nil
}

func (c *Config) entryPoint() string {
	if c.EntryPoint == "" {
		return DefaultEntryPoint
	}
	return c.EntryPoint
}

func (c *Config) random() io.Reader {
	if c.RandSeed == nil {
		return nil
	}
	var seed [32]byte
	s := *c.RandSeed
	for i := 0; i < 8; i++ {
		seed[i] = byte(s >> (8 * i))
	}
	return rand.NewChaCha8(seed)
}

// ConfigSchema returns the JSON Schema of a run file.
func ConfigSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(&Config{})
	return json.MarshalIndent(schema, "", "  ")
}
