package xoeconfig

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/hcobbs/xoe/internal/xoerr"
)

// GetField reads the value of a dotted parameter name (e.g.
// "serial.baud", "mgmt_port") out of c, rendered as a string. The set
// of valid names is derived from the Configuration struct's
// mapstructure tags rather than hand-maintained separately, so a field
// added to the struct is automatically get/set-able.
func GetField(c *Configuration, name string) (string, error) {
	raw, err := toMap(c)
	if err != nil {
		return "", err
	}
	val, ok := lookup(raw, strings.Split(strings.ToLower(name), "."))
	if !ok {
		return "", xoerr.Field(name, "no such parameter")
	}
	return fmt.Sprint(val), nil
}

// SetField parses value and assigns it to the dotted parameter name on
// c. It round-trips through the same map representation GetField uses,
// so only fields actually present on Configuration can be targeted.
func SetField(c *Configuration, name, value string) error {
	raw, err := toMap(c)
	if err != nil {
		return err
	}
	path := strings.Split(strings.ToLower(name), ".")
	if _, ok := lookup(raw, path); !ok {
		return xoerr.Field(name, "no such parameter")
	}
	if err := assign(raw, path, value); err != nil {
		return err
	}

	var updated Configuration
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &updated,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return xoerr.Wrap(xoerr.Unknown, err, "building field decoder")
	}
	if err := dec.Decode(raw); err != nil {
		return xoerr.Field(name, "invalid value %q: %v", value, err)
	}
	*c = updated
	return nil
}

func toMap(c *Configuration) (map[string]any, error) {
	var raw map[string]any
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{Result: &raw})
	if err != nil {
		return nil, xoerr.Wrap(xoerr.Unknown, err, "building field encoder")
	}
	if err := dec.Decode(c); err != nil {
		return nil, xoerr.Wrap(xoerr.Unknown, err, "encoding configuration")
	}
	return raw, nil
}

func lookup(m map[string]any, path []string) (any, bool) {
	cur := any(m)
	for _, p := range path {
		asMap, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = asMap[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func assign(m map[string]any, path []string, value string) error {
	cur := m
	for i, p := range path {
		if i == len(path)-1 {
			cur[p] = coerce(cur[p], value)
			return nil
		}
		next, ok := cur[p].(map[string]any)
		if !ok {
			return xoerr.Field(strings.Join(path, "."), "not a settable leaf parameter")
		}
		cur = next
	}
	return nil
}

// coerce converts the textual value into the same dynamic type
// mapstructure already decoded at existing into, falling back to the
// raw string for types it doesn't recognize (mapstructure's
// WeaklyTypedInput then does the rest).
func coerce(existing any, value string) any {
	switch existing.(type) {
	case bool:
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	case int, int32, int64, float64:
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return value
}
