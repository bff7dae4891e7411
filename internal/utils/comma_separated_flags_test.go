package utils

import (
	"flag"
	"reflect"
	"testing"
)

func TestCommaSeparated(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"default", nil, []string{"behavior", "metadata"}},
		{"override", []string{"-tasks", "obfuscation,binary"}, []string{"obfuscation", "binary"}},
		{"blank elements", []string{"-tasks", " iocs,,metadata ,"}, []string{"iocs", "metadata"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			fs := flag.NewFlagSet("test", flag.ContinueOnError)
			tasks := CommaSeparated(fs, "tasks", []string{"behavior", "metadata"}, "")
			if err := fs.Parse(test.args); err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(tasks.Values, test.want) {
				t.Errorf("Values = %v; want %v", tasks.Values, test.want)
			}
		})
	}
}
