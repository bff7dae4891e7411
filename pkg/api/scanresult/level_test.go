package scanresult

import (
	"errors"
	"testing"
)

func TestParseRiskLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    RiskLevel
		wantErr error
	}{
		{"high", High, nil},
		{" Critical ", Critical, nil},
		{"SAFE", Safe, nil},
		{"severe", "", ErrInvalidRiskLevel},
		{"", "", ErrInvalidRiskLevel},
	}
	for _, test := range tests {
		got, err := ParseRiskLevel(test.in)
		if !errors.Is(err, test.wantErr) || got != test.want {
			t.Errorf("ParseRiskLevel(%q) = %q, %v; want %q, %v", test.in, got, err, test.want, test.wantErr)
		}
	}
}

func TestAtLeast(t *testing.T) {
	tests := []struct {
		l, other RiskLevel
		want     bool
	}{
		{Critical, High, true},
		{High, High, true},
		{Medium, High, false},
		{Safe, Low, false},
		{Low, Safe, true},
	}
	for _, test := range tests {
		if got := test.l.AtLeast(test.other); got != test.want {
			t.Errorf("%s.AtLeast(%s) = %v; want %v", test.l, test.other, got, test.want)
		}
	}
}
