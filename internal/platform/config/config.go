// Package config reads registry configuration from environment variables
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"mpak/internal/platform/logger"
)

// Conf is a prefixed view over the environment, e.g. Prefix("BLOB_")
type Conf struct{ prefix string }

// New returns the root view
func New() Conf { return Conf{} }

// Prefix narrows the view
func (c Conf) Prefix(p string) Conf { return Conf{prefix: c.prefix + p} }

func (c Conf) key(k string) string    { return c.prefix + k }
func (c Conf) lookup(k string) string { return strings.TrimSpace(os.Getenv(c.key(k))) }

// may parses key, falling back to def when unset and warning when unparsable
func may[T any](c Conf, key string, def T, parse func(string) (T, error)) T {
	s := c.lookup(key)
	if s == "" {
		return def
	}
	v, err := parse(s)
	if err != nil {
		logger.Get().Warn().Str("key", c.key(key)).Str("value", s).Interface("default", def).Msg("invalid config value; using default")
		return def
	}
	return v
}

// MustString panics when key is unset
func (c Conf) MustString(key string) string {
	v := c.lookup(key)
	if v == "" {
		logger.Get().Panic().Str("key", c.key(key)).Msg("missing required env")
	}
	return v
}

// MayString returns the value or def
func (c Conf) MayString(key, def string) string {
	return may(c, key, def, func(s string) (string, error) { return s, nil })
}

// MayInt returns the integer value or def
func (c Conf) MayInt(key string, def int) int { return may(c, key, def, strconv.Atoi) }

// MayInt64 returns the 64-bit integer value or def, e.g. byte limits
func (c Conf) MayInt64(key string, def int64) int64 {
	return may(c, key, def, func(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) })
}

// MayBool returns the boolean value or def
func (c Conf) MayBool(key string, def bool) bool { return may(c, key, def, strconv.ParseBool) }

// MayDuration returns the duration value (e.g. "15m") or def
func (c Conf) MayDuration(key string, def time.Duration) time.Duration {
	return may(c, key, def, time.ParseDuration)
}

// MayCSV splits a comma-separated value, dropping blanks; def when nothing remains
func (c Conf) MayCSV(key string, def []string) []string {
	var out []string
	for p := range strings.SplitSeq(c.lookup(key), ",") {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// MayEnum returns the lower-cased value, or def when unset; any other value panics
func (c Conf) MayEnum(key, def string, allowed ...string) string {
	v := c.MayString(key, def)
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return strings.ToLower(a)
		}
	}
	if v != "" {
		logger.Get().Panic().Str("key", c.key(key)).Str("value", v).Strs("allowed", allowed).Msg("invalid enum value")
	}
	return v
}
