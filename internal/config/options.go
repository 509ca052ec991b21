package config

// Options is a loosely typed option bag for parser configuration. JSON
// numbers arrive as float64 and maps as map[string]any; the accessors
// coerce those shapes and fall back to the given default on absence or
// type mismatch.
type Options map[string]any

func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

func (o Options) String(key string, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Rune returns the first rune of the string value, or def for absent or
// empty values.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return []rune(s)[0]
		}
	}
	return def
}

// StringMap returns a string-to-string map value, or nil.
func (o Options) StringMap(key string) map[string]string {
	v, ok := o[key]
	if !ok {
		return nil
	}
	switch m := v.(type) {
	case map[string]string:
		return m
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, mv := range m {
			if s, ok := mv.(string); ok {
				out[k] = s
			}
		}
		return out
	}
	return nil
}
