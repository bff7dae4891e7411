package utils

import (
	"flag"
	"strings"
)

// CommaSeparatedFlag is a flag.Value holding a comma-separated list. Empty
// elements are dropped.
type CommaSeparatedFlag struct {
	Values []string
}

func (f *CommaSeparatedFlag) Set(value string) error {
	var values []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	f.Values = values
	return nil
}

func (f *CommaSeparatedFlag) String() string {
	if f == nil {
		return ""
	}
	return strings.Join(f.Values, ",")
}

// CommaSeparated registers a comma-separated list flag on fs with the given
// default values.
func CommaSeparated(fs *flag.FlagSet, name string, values []string, usage string) *CommaSeparatedFlag {
	f := &CommaSeparatedFlag{Values: values}
	fs.Var(f, name, usage)
	return f
}
