// Package environ holds the execution environment accumulated during
// provisioning and replayed by every later build, flash, and checkout command.
package environ

import (
	"os"
	"path/filepath"
	"strings"
)

// Env is a mutable mapping of environment variable names to values.
// During provisioning each installed artifact prepends its executable
// directory to the path variable; afterward the map is persisted as part of
// the workspace configuration and treated as immutable until the next run.
type Env map[string]string

// FromHost returns a snapshot of the current process environment.
// Provisioning always starts from a host snapshot so the accumulated
// environment is a strict superset of what the user's shell provides.
func FromHost() Env {
	e := make(Env)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			e[k] = v
		}
	}
	return e
}

// Clone returns an independent copy of the environment.
func (e Env) Clone() Env {
	out := make(Env, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Set assigns a variable, overwriting any previous value.
func (e Env) Set(key, value string) {
	e[key] = value
}

// Get returns the value for key, or the empty string when unset.
func (e Env) Get(key string) string {
	return e[key]
}

// pathKey returns the name of the search-path variable in this environment.
// Windows environments commonly carry "Path"; the original casing is
// preserved so the variable is not duplicated under a second name.
func (e Env) pathKey() string {
	for k := range e {
		if strings.EqualFold(k, "PATH") {
			return k
		}
	}
	return "PATH"
}

// PrependPath puts dir at the front of the search-path variable, so the
// most recently installed artifact wins lookup.
func (e Env) PrependPath(dir string) {
	key := e.pathKey()
	cur := e[key]
	if cur == "" {
		e[key] = dir
		return
	}
	e[key] = dir + string(os.PathListSeparator) + cur
}

// PathList returns the search-path entries in lookup order.
func (e Env) PathList() []string {
	cur := e[e.pathKey()]
	if cur == "" {
		return nil
	}
	return filepath.SplitList(cur)
}

// Slice renders the environment in the KEY=VALUE form expected by os/exec.
func (e Env) Slice() []string {
	out := make([]string, 0, len(e))
	for k, v := range e {
		out = append(out, k+"="+v)
	}
	return out
}
