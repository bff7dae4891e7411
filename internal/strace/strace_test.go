package strace_test

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/AnishDe12020/unsus/internal/strace"
)

var nopLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestParseSockets(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []strace.SocketInfo
	}{
		{
			name:  "ipv4 with pid prefix",
			input: `1234  connect(3, {sa_family=AF_INET, sin_port=htons(443), sin_addr=inet_addr("93.184.216.34")}, 16) = -1 ENETUNREACH (Network is unreachable)`,
			want:  []strace.SocketInfo{{Address: "93.184.216.34", Port: 443}},
		},
		{
			name:  "ipv4 bracketed pid",
			input: `[pid  4321] connect(5, {sa_family=AF_INET, sin_port=htons(80), sin_addr=inet_addr("10.0.0.1")}, 16) = 0`,
			want:  []strace.SocketInfo{{Address: "10.0.0.1", Port: 80}},
		},
		{
			name:  "ipv6",
			input: `77 connect(4, {sa_family=AF_INET6, sin6_port=htons(8080), sin6_flowinfo=htonl(0), inet_pton(AF_INET6, "2606:2800:220:1::1", &sin6_addr), sin6_scope_id=0}, 28) = -1 ENETUNREACH (Network is unreachable)`,
			want:  []strace.SocketInfo{{Address: "2606:2800:220:1::1", Port: 8080}},
		},
		{
			name:  "no pid",
			input: `connect(3, {sa_family=AF_INET, sin_port=htons(53), sin_addr=inet_addr("8.8.8.8")}, 16) = 0`,
			want:  []strace.SocketInfo{{Address: "8.8.8.8", Port: 53}},
		},
		{
			name: "unfinished and resumed",
			input: "12 connect(3, {sa_family=AF_INET, sin_port=htons(22), sin_addr=inet_addr(\"192.0.2.5\")}, 16 <unfinished ...>\n" +
				"12 <... connect resumed>) = -1 ETIMEDOUT (Connection timed out)",
			want: []strace.SocketInfo{{Address: "192.0.2.5", Port: 22}},
		},
		{
			name:  "unix socket ignored",
			input: `9 connect(3, {sa_family=AF_UNIX, sun_path="/var/run/nscd/socket"}, 110) = -1 ENOENT (No such file or directory)`,
			want:  []strace.SocketInfo{},
		},
		{
			name: "duplicates and sorting",
			input: "1 connect(3, {sa_family=AF_INET, sin_port=htons(443), sin_addr=inet_addr(\"198.51.100.2\")}, 16) = -1 ENETUNREACH\n" +
				"2 connect(4, {sa_family=AF_INET, sin_port=htons(80), sin_addr=inet_addr(\"198.51.100.2\")}, 16) = -1 ENETUNREACH\n" +
				"3 connect(5, {sa_family=AF_INET, sin_port=htons(443), sin_addr=inet_addr(\"198.51.100.2\")}, 16) = -1 ENETUNREACH\n",
			want: []strace.SocketInfo{
				{Address: "198.51.100.2", Port: 80},
				{Address: "198.51.100.2", Port: 443},
			},
		},
		{
			name:  "other syscalls ignored",
			input: `5 execve("/bin/sh", ["sh", "-c", "node x.js"], 0x7ffd /* 10 vars */) = 0`,
			want:  []strace.SocketInfo{},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			res, err := strace.Parse(context.Background(), strings.NewReader(test.input), nopLogger)
			if err != nil || res == nil {
				t.Fatalf("Parse(r) = %v, %v, want _, nil", res, err)
			}
			if got := res.Sockets(); !reflect.DeepEqual(got, test.want) {
				t.Errorf("Sockets() = %v, want %v", got, test.want)
			}
		})
	}
}

func TestParseMalformedContinues(t *testing.T) {
	input := "1 connect(3, {sa_family=AF_INET, garbage}, 16) = -1\n" +
		`2 connect(3, {sa_family=AF_INET, sin_port=htons(443), sin_addr=inet_addr("203.0.113.1")}, 16) = -1 ENETUNREACH`
	res, err := strace.Parse(context.Background(), strings.NewReader(input), nil)
	if err != nil {
		t.Fatalf("Parse(r) error = %v, want nil", err)
	}
	want := []strace.SocketInfo{{Address: "203.0.113.1", Port: 443}}
	if got := res.Sockets(); !reflect.DeepEqual(got, want) {
		t.Errorf("Sockets() = %v, want %v", got, want)
	}
	if res.Calls() != 2 {
		t.Errorf("Calls() = %d, want 2", res.Calls())
	}
}
