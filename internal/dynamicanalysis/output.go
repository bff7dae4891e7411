package dynamicanalysis

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/AnishDe12020/unsus/internal/dnsanalyzer"
	"github.com/AnishDe12020/unsus/internal/packetcapture"
	"github.com/AnishDe12020/unsus/internal/strace"
	"github.com/AnishDe12020/unsus/pkg/api/scanresult"
)

// Files written by execute.sh into the output directory.
const (
	metaFile      = "meta.txt"
	networkFile   = "network.log"
	resourcesFile = "resources.csv"
	fsChangesFile = "fs-changes.log"
	installFile   = "install.log"
	dnsFile       = "dns.pcap"
)

const (
	maxOutputLines = 50
	maxOutputBytes = 16 * 1024
)

// lastLines returns a byte array containing only the last maxLines of lines
// in b.
//
// A line is defined the by the occurance of a '\n' in the output.
//
// If there are fewer than maxLines then the entire intput byte array will be
// returned.
//
// No more than maxBytes will be in the returned byte array.
func lastLines(b []byte, maxLines, maxBytes int) []byte {
	if len(b) == 0 {
		return b
	}
	// only consider the last maxBytes of b, or all of b if maxBytes is bigger
	// than the size of b.
	startOff := max(len(b)-maxBytes, 0)
	b = b[startOff:]
	// count each newline from the end of the bufffer
	lines := 0
	lineOff := len(b) - 1
	for off := len(b) - 1; off > 0; off-- {
		if b[off] == '\n' {
			lines++
			lineOff = off
		}
		if lines > maxLines {
			return b[lineOff+1:]
		}
	}
	return b
}

// parseMeta reads key=value lines. Blank lines and lines without '=' are
// ignored.
func parseMeta(r io.Reader) (map[string]string, error) {
	meta := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok || key == "" {
			continue
		}
		meta[key] = value
	}
	return meta, scanner.Err()
}

// parseResources reads the timestamp,cpu_percent,mem_kb samples written by
// monitor.sh. The header and malformed rows are skipped.
func parseResources(ctx context.Context, r io.Reader) ([]scanresult.ResourceSample, error) {
	var samples []scanresult.ResourceSample
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "timestamp,") {
			continue
		}
		sample, err := parseSample(line)
		if err != nil {
			slog.DebugContext(ctx, "Skipping resource sample", "line", line, "error", err)
			continue
		}
		samples = append(samples, sample)
	}
	return samples, scanner.Err()
}

func parseSample(line string) (scanresult.ResourceSample, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 3 {
		return scanresult.ResourceSample{}, fmt.Errorf("expected 3 fields, got %d", len(fields))
	}
	ts, err := time.Parse(time.RFC3339, fields[0])
	if err != nil {
		return scanresult.ResourceSample{}, err
	}
	cpu, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return scanresult.ResourceSample{}, err
	}
	mem, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return scanresult.ResourceSample{}, err
	}
	return scanresult.ResourceSample{Timestamp: ts, CPUPercent: cpu, MemoryKB: mem}, nil
}

// parseFSChanges reads "A|path" and "M|path" lines and returns the paths.
func parseFSChanges(r io.Reader) ([]string, error) {
	var paths []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		kind, path, ok := strings.Cut(scanner.Text(), "|")
		if !ok || path == "" || (kind != "A" && kind != "M") {
			continue
		}
		paths = append(paths, path)
	}
	return paths, scanner.Err()
}

// openOutput opens name in dir. A file the stage did not write yields a nil
// reader and no error.
func openOutput(dir, name string) (*os.File, error) {
	f, err := os.Open(filepath.Join(dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return f, err
}

// readOutput fills result from the files in dir.
func readOutput(ctx context.Context, dir string, result *scanresult.DynamicResult, straceLogger *slog.Logger) error {
	if f, err := openOutput(dir, metaFile); err != nil {
		return err
	} else if f != nil {
		meta, err := parseMeta(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", metaFile, err)
		}
		applyMeta(meta, result)
	}

	if f, err := openOutput(dir, networkFile); err != nil {
		return err
	} else if f != nil {
		straceResult, err := strace.Parse(ctx, f, straceLogger)
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", networkFile, err)
		}
		for _, s := range straceResult.Sockets() {
			result.Connections = append(result.Connections, scanresult.Connection{Host: s.Address, Port: s.Port})
		}
	}

	if f, err := openOutput(dir, resourcesFile); err != nil {
		return err
	} else if f != nil {
		samples, err := parseResources(ctx, f)
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", resourcesFile, err)
		}
		result.Resources = samples
	}

	if f, err := openOutput(dir, fsChangesFile); err != nil {
		return err
	} else if f != nil {
		paths, err := parseFSChanges(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", fsChangesFile, err)
		}
		result.FilesChanged = paths
	}

	if b, err := os.ReadFile(filepath.Join(dir, installFile)); err == nil {
		result.Output = string(lastLines(b, maxOutputLines, maxOutputBytes))
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if f, err := openOutput(dir, dnsFile); err != nil {
		return err
	} else if f != nil {
		dns, err := readDNS(ctx, f)
		f.Close()
		if err != nil {
			// tcpdump may have been killed before writing the header.
			slog.WarnContext(ctx, "Failed to read DNS capture", "error", err)
		}
		result.DNSQueries = dns.Queries()
		for i, c := range result.Connections {
			result.Connections[i].Hostname = strings.Join(dns.Hostname(c.Host), ",")
		}
	}
	return nil
}

func applyMeta(meta map[string]string, result *scanresult.DynamicResult) {
	if v, err := strconv.Atoi(meta["exit_code"]); err == nil && v != 0 {
		result.ExitCode = v
	}
	if meta["timed_out"] == "1" {
		result.TimedOut = true
	}
	if hooks := meta["hooks"]; hooks != "" {
		result.Hooks = strings.Split(hooks, ",")
	}
}

// readDNS replays a pcap into a DNS analyzer. The analyzer holds whatever was
// read before an error.
func readDNS(ctx context.Context, r io.Reader) (*dnsanalyzer.DNSAnalyzer, error) {
	dns := dnsanalyzer.New()
	pc := packetcapture.New()
	pc.RegisterReceiver(dns)
	return dns, pc.ReadFrom(ctx, r)
}
