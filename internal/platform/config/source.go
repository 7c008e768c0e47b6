package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// source is a stack of key/value layers, highest precedence first.
type source struct {
	layers []map[string]string
}

func newSource(o loaderOptions) (source, error) {
	dotenv, err := readDotEnv(o.envFile)
	if err != nil {
		return source{}, err
	}
	var s source
	if o.envMap != nil {
		s.layers = append(s.layers, o.envMap)
	}
	if o.useSystemEnv {
		s.layers = append(s.layers, systemEnv())
	}
	if dotenv != nil {
		s.layers = append(s.layers, dotenv)
	}
	return s, nil
}

func (s source) lookup(key string) (string, bool) {
	for _, layer := range s.layers {
		if v, ok := layer[key]; ok {
			return v, true
		}
	}
	return "", false
}

func (s source) flatten() map[string]string {
	out := make(map[string]string)
	for i := len(s.layers) - 1; i >= 0; i-- {
		for k, v := range s.layers[i] {
			out[k] = v
		}
	}
	return out
}

func systemEnv() map[string]string {
	out := make(map[string]string)
	for _, entry := range os.Environ() {
		key, value, ok := strings.Cut(entry, "=")
		if key = strings.TrimSpace(key); ok && key != "" {
			out[key] = value
		}
	}
	return out
}

func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return values, nil
}

// reader converts raw values, noting keys that are set but unparsable so validation can
// report them instead of silently applying the default.
type reader struct {
	src     source
	invalid []string
}

func (r *reader) raw(key string) (string, bool) {
	v, ok := r.src.lookup(key)
	return v, ok && v != ""
}

func (r *reader) str(key, fallback string) string {
	if v, ok := r.raw(key); ok {
		return v
	}
	return fallback
}

func (r *reader) dur(key string, fallback time.Duration) time.Duration {
	v, ok := r.raw(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		r.invalid = append(r.invalid, key)
		return fallback
	}
	return d
}

func (r *reader) num(key string, fallback int) int {
	v, ok := r.raw(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		r.invalid = append(r.invalid, key)
		return fallback
	}
	return n
}

func (r *reader) flag(key string, fallback bool) bool {
	v, ok := r.raw(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		r.invalid = append(r.invalid, key)
		return fallback
	}
	return b
}

// list splits a comma separated value, dropping empty entries.
func (r *reader) list(key string, fallback ...string) []string {
	out := []string{}
	if v, ok := r.raw(key); ok {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	if len(out) == 0 {
		out = append(out, fallback...)
	}
	return out
}
