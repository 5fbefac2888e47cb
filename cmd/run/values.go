package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero/api"
)

// parseValues encodes textual arguments for an export taking types.
func parseValues(types []api.ValueType, args []string) ([]uint64, error) {
	if len(args) != len(types) {
		return nil, fmt.Errorf("function takes %d arguments, got %d", len(types), len(args))
	}
	out := make([]uint64, len(args))
	for i, arg := range args {
		var err error
		switch types[i] {
		case api.ValueTypeI32:
			var v int64
			if v, err = strconv.ParseInt(arg, 0, 32); err == nil {
				out[i] = api.EncodeI32(int32(v))
			}
		case api.ValueTypeI64:
			var v int64
			if v, err = strconv.ParseInt(arg, 0, 64); err == nil {
				out[i] = api.EncodeI64(v)
			}
		case api.ValueTypeF32:
			var v float64
			if v, err = strconv.ParseFloat(arg, 32); err == nil {
				out[i] = api.EncodeF32(float32(v))
			}
		case api.ValueTypeF64:
			var v float64
			if v, err = strconv.ParseFloat(arg, 64); err == nil {
				out[i] = api.EncodeF64(v)
			}
		default:
			return nil, fmt.Errorf("argument %d: %s parameters cannot be passed from the command line", i, api.ValueTypeName(types[i]))
		}
		if err != nil {
			return nil, fmt.Errorf("argument %d (%s): %w", i, api.ValueTypeName(types[i]), err)
		}
	}
	return out, nil
}

func formatValues(types []api.ValueType, vals []uint64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		var t api.ValueType
		if i < len(types) {
			t = types[i]
		}
		switch t {
		case api.ValueTypeI32:
			parts[i] = strconv.FormatInt(int64(api.DecodeI32(v)), 10)
		case api.ValueTypeI64:
			parts[i] = strconv.FormatInt(int64(v), 10)
		case api.ValueTypeF32:
			parts[i] = strconv.FormatFloat(float64(api.DecodeF32(v)), 'g', -1, 32)
		case api.ValueTypeF64:
			parts[i] = strconv.FormatFloat(api.DecodeF64(v), 'g', -1, 64)
		default:
			parts[i] = fmt.Sprintf("%#x", v)
		}
	}
	return strings.Join(parts, ", ")
}
