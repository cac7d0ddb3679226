package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Option customises Load.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env path. An empty path skips the file.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap supplies values that win over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv stops Load from reading the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// source is an ordered list of key/value layers. The first layer holding a key wins.
type source []func(string) (string, bool)

func newSource(o loaderOptions) (source, error) {
	var s source
	if o.envMap != nil {
		s = append(s, mapLayer(o.envMap))
	}
	if o.useSystemEnv {
		s = append(s, os.LookupEnv)
	}
	dotenv, err := readDotEnv(o.envFile)
	if err != nil {
		return nil, err
	}
	if len(dotenv) > 0 {
		s = append(s, mapLayer(dotenv))
	}
	return s, nil
}

func mapLayer(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// get returns the trimmed value for key. Blank values count as unset.
func (s source) get(key string) (string, bool) {
	for _, layer := range s {
		if v, ok := layer(key); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

var durationType = reflect.TypeOf(time.Duration(0))

// binder walks Config and assigns every tagged field from src.
type binder struct {
	src       source
	secrets   []*string
	malformed []string
}

func (b *binder) bind(target any) {
	b.walk(reflect.ValueOf(target).Elem(), "")
}

func (b *binder) walk(v reflect.Value, prefix string) {
	t := v.Type()
	for i := range t.NumField() {
		sf := t.Field(i)
		field := v.Field(i)
		path := sf.Name
		if prefix != "" {
			path = prefix + "." + sf.Name
		}
		if sf.Type.Kind() == reflect.Struct {
			b.walk(field, path)
			continue
		}
		tag, ok := sf.Tag.Lookup("env")
		if !ok {
			continue
		}
		name, flags, _ := strings.Cut(tag, ",")
		raw, found := b.src.get(name)
		if !found {
			raw = sf.Tag.Get("default")
		}
		if strings.Contains(flags, "lower") {
			raw = strings.ToLower(raw)
		}
		if err := assign(field, raw); err != nil {
			b.malformed = append(b.malformed, path)
			continue
		}
		if strings.Contains(flags, "secret") {
			b.secrets = append(b.secrets, field.Addr().Interface().(*string))
		}
	}
}

func assign(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		if raw == "" {
			return nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int64:
		if raw == "" {
			return nil
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	default:
		return fmt.Errorf("config: unsupported field kind %s", field.Kind())
	}
	return nil
}

// readDotEnv parses KEY=VALUE lines. Blank lines and # comments are skipped, an "export "
// prefix is allowed and matching outer quotes are stripped. A missing file is not an error.
func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	values := make(map[string]string)
	sc := bufio.NewScanner(f)
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		key, value, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("config: %s:%d: expected KEY=VALUE", path, lineNo)
		}
		values[key] = unquote(strings.TrimSpace(value))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return values, nil
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}
