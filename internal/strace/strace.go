// Package strace parses the log written by `strace -f -e trace=connect` and
// collects the network endpoints a process tree tried to reach.
package strace

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

var ErrParseFailure = errors.New("parse failure")

var (
	// 1234  connect(3, {sa_family=AF_INET, sin_port=htons(443), sin_addr=inet_addr("93.184.216.34")}, 16) = -1 ENETUNREACH (Network is unreachable)
	// [pid  1234] connect(3, {sa_family=AF_UNIX, sun_path="/var/run/nscd/socket"}, 110) = -1 ENOENT (No such file or directory)
	// 1234  connect(5, {sa_family=AF_INET, sin_port=htons(80), sin_addr=inet_addr("10.0.0.1")}, 16 <unfinished ...>
	stracePattern = regexp.MustCompile(`^(?:\[pid\s+\d+\]\s*|\d+\s+)?(?:\d+:\d+:\d+(?:\.\d+)?\s+)?(\w+)\((.*)$`)

	familyPattern = regexp.MustCompile(`sa_family=(AF_\w+)`)
	// sin_port=htons(443), sin_addr=inet_addr("93.184.216.34")
	inetPattern = regexp.MustCompile(`sin_port=htons\((\d+)\), sin_addr=inet_addr\("([^"]*)"\)`)
	// sin6_port=htons(80), sin6_flowinfo=htonl(0), inet_pton(AF_INET6, "2606:2800:220:1::1", &sin6_addr)
	inet6Pattern = regexp.MustCompile(`sin6_port=htons\((\d+)\).*inet_pton\(AF_INET6, "([^"]*)"`)
)

type SocketInfo struct {
	Address string
	Port    int
}

type Result struct {
	sockets map[string]*SocketInfo
	calls   int
}

func (r *Result) recordSocket(address string, port int) {
	// The space sorts before every address character and the zero padded
	// port keeps ports in numeric order.
	key := fmt.Sprintf("%s %05d", address, port)
	if r.sockets[key] == nil {
		r.sockets[key] = &SocketInfo{Address: address, Port: port}
	}
}

func (r *Result) parseConnect(args string, logger *slog.Logger) error {
	match := familyPattern.FindStringSubmatch(args)
	if match == nil {
		return fmt.Errorf("%w: connect args: %s", ErrParseFailure, args)
	}

	var m []string
	switch family := match[1]; family {
	case "AF_INET":
		m = inetPattern.FindStringSubmatch(args)
	case "AF_INET6":
		m = inet6Pattern.FindStringSubmatch(args)
	default:
		logger.Debug("Ignoring socket", "family", family)
		return nil
	}
	if m == nil {
		return fmt.Errorf("%w: socket address: %s", ErrParseFailure, args)
	}

	port, err := strconv.Atoi(m[1])
	if err != nil {
		return fmt.Errorf("%w: port: %w", ErrParseFailure, err)
	}
	logger.Debug("socket", "address", m[2], "port", port)
	r.recordSocket(m[2], port)
	return nil
}

// Parse reads the output from strace and collects the sockets that were
// connected to. debugLogger can be used to log verbose information about
// strace parsing.
//
// Calls that strace split with "<unfinished ...>" are recorded from their
// first half, which carries the address.
func Parse(ctx context.Context, r io.Reader, debugLogger *slog.Logger) (*Result, error) {
	if debugLogger == nil {
		debugLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	result := &Result{sockets: make(map[string]*SocketInfo)}

	// strace prints whole argument structs on one line, so lines are read
	// without a length limit.
	br := bufio.NewReader(r)
	for done := false; !done; {
		line, err := br.ReadString('\n')
		switch {
		case err == io.EOF:
			done = true
		case err != nil:
			return nil, err
		}
		if err := result.parseLine(strings.TrimRightFunc(line, unicode.IsSpace), debugLogger); err != nil {
			slog.WarnContext(ctx, "Skipping unparsable connect call", "error", err)
		}
	}
	return result, nil
}

func (r *Result) parseLine(line string, logger *slog.Logger) error {
	m := stracePattern.FindStringSubmatch(line)
	if m == nil || m[1] != "connect" {
		return nil
	}
	r.calls++
	return r.parseConnect(m[2], logger)
}

// Sockets returns the distinct IPv4 and IPv6 endpoints, ordered by address
// and then port.
func (r *Result) Sockets() []SocketInfo {
	keys := maps.Keys(r.sockets)
	slices.Sort(keys)

	sockets := make([]SocketInfo, 0, len(keys))
	for _, k := range keys {
		sockets = append(sockets, *r.sockets[k])
	}
	return sockets
}

// Calls is the number of connect calls seen, including non-IP sockets.
func (r *Result) Calls() int {
	return r.calls
}
