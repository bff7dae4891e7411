package sandbox

import (
	"fmt"
	"strings"
)

// mount maps a host path or named volume into the container.
//
// src is either an absolute host path (bind mount) or the name of a volume
// created with VolumeCreate. See
// https://docs.docker.com/reference/cli/docker/container/run/#volume for the
// semantics of the -v flag, which podman shares.
type mount struct {
	src      string
	dest     string
	readOnly bool
}

func (m mount) Args() []string {
	spec := fmt.Sprintf("%s:%s", m.src, m.dest)
	if m.readOnly {
		spec += ":ro"
	}
	return []string{"-v", spec}
}

func (m mount) String() string {
	return strings.Join(m.Args(), " ")
}

// tmpfs is a writable in-memory filesystem mounted at path.
type tmpfs struct {
	path string
	size string
}

func (t tmpfs) Args() []string {
	spec := t.path
	if t.size != "" {
		spec += ":rw,size=" + t.size
	}
	return []string{"--tmpfs", spec}
}
