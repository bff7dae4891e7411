// Package featureflags toggles optional scan behaviour at process start, from
// the -features flag or the UNSUS_FEATURES environment variable.
package featureflags

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

var ErrUndefinedFlag = errors.New("undefined feature flag")

var flagRegistry = make(map[string]*FeatureFlag)

// FeatureFlag is the state of a single flag. Flags are only changed by
// Update, which must happen before any scan starts.
type FeatureFlag struct {
	isEnabled bool
}

// new registers name with its default state.
func new(name string, defaultEnabled bool) *FeatureFlag {
	ff := &FeatureFlag{isEnabled: defaultEnabled}
	flagRegistry[name] = ff
	return ff
}

func (ff *FeatureFlag) Enabled() bool {
	return ff.isEnabled
}

// Update applies a comma separated list of flag names. A bare name enables
// the flag and a name prefixed with "-" disables it, so
// "DNSCapture,-VulnLookup" turns DNS capture on and npm audit off.
//
// Every name is validated before any flag changes. An unknown name returns an
// error wrapping ErrUndefinedFlag.
func Update(flags string) error {
	changes := make(map[*FeatureFlag]bool)
	for _, n := range strings.Split(flags, ",") {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		name, disable := strings.CutPrefix(n, "-")
		ff, ok := flagRegistry[name]
		if !ok {
			return fmt.Errorf("%w %q", ErrUndefinedFlag, name)
		}
		changes[ff] = !disable
	}
	for ff, enabled := range changes {
		ff.isEnabled = enabled
	}
	return nil
}

// State maps every flag name to whether it is enabled.
func State() map[string]bool {
	s := make(map[string]bool, len(flagRegistry))
	for name, ff := range flagRegistry {
		s[name] = ff.Enabled()
	}
	return s
}

// Names returns the registered flag names in sorted order.
func Names() []string {
	names := maps.Keys(flagRegistry)
	slices.Sort(names)
	return names
}

// String renders the flag state in the format accepted by Update.
func String() string {
	parts := make([]string, 0, len(flagRegistry))
	for _, name := range Names() {
		if flagRegistry[name].Enabled() {
			parts = append(parts, name)
		} else {
			parts = append(parts, "-"+name)
		}
	}
	return strings.Join(parts, ",")
}
