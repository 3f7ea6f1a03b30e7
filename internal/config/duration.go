package config

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"time"
)

var durationSuffix = regexp.MustCompile(`^(-?\d+(?:\.\d+)?)(ms|sec|s|min|m)$`)

// parseDuration accepts everything time.ParseDuration does, plus the
// runtime's own "min" and "sec" spellings (duration strings accept
// ms|s|m|min|sec suffixes) that time.ParseDuration rejects outright.
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	m := durationSuffix.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("config: invalid duration %q", s)
	}
	val, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	switch m[2] {
	case "min":
		return time.Duration(val * float64(time.Minute)), nil
	case "sec":
		return time.Duration(val * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("config: invalid duration %q", s)
	}
}

// stringToDurationHook is a mapstructure decode hook so viper.Unmarshal
// resolves duration-suffixed strings (config file values or STELLANE_*
// env overrides) into time.Duration fields using parseDuration instead
// of mapstructure's built-in (min/sec-unaware) duration hook.
func stringToDurationHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	if from.Kind() != reflect.String {
		return data, nil
	}
	s, _ := data.(string)
	return parseDuration(s)
}
