// Package mcpconfig loads and represents MCP server configurations.
//
// ServerConfig is a tagged variant (spec.md §3, design note in spec.md §9):
// exactly one of Stdio or HTTP is populated, never both, never neither.
// Presence-based discrimination is deliberately avoided beyond the single
// validation check that enforces the invariant at load time, before the
// core ever sees a config.
package mcpconfig

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"time"
)

// Transport names the two ServerConfig variants.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportHTTP  Transport = "http"
)

// StdioConfig describes a child process to spawn.
type StdioConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
}

// HTTPConfig describes a remote MCP endpoint.
type HTTPConfig struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Timeout time.Duration     `json:"timeout,omitempty"`
}

// ServerConfig is one named server's configuration, plus the tool-name
// glob filters attached to it and the provenance of where it came from.
type ServerConfig struct {
	Name string

	Transport Transport
	Stdio     *StdioConfig
	HTTP      *HTTPConfig

	IncludeTools  []string
	DisabledTools []string

	// Source is the provenance the Router forwards to the daemon so
	// `daemon status` can display it (spec.md §4.7 point 3): a file path,
	// "<inline>", or "<none>".
	Source string
}

// rawServerConfig is the on-disk shape: a flat record where presence of
// command vs. url indicates the variant. This presence check is the
// configuration-error surface spec.md §3 says is "surfaced before the
// core is reached" — ServerConfig itself stays a clean tagged variant.
type rawServerConfig struct {
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`

	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Timeout *time.Duration    `json:"timeout,omitempty"`

	IncludeTools  []string `json:"includeTools,omitempty"`
	AllowedTools  []string `json:"allowedTools,omitempty"`
	DisabledTools []string `json:"disabledTools,omitempty"`
}

type rawFile struct {
	MCPServers map[string]rawServerConfig `json:"mcpServers"`
}

// Parse turns raw config bytes plus a source label into named
// ServerConfigs, validating the tagged-variant invariant for each.
func Parse(data []byte, source string) (map[string]ServerConfig, error) {
	var file rawFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid config JSON: %w", err)
	}

	out := make(map[string]ServerConfig, len(file.MCPServers))
	for name, raw := range file.MCPServers {
		cfg, err := fromRaw(name, raw, source)
		if err != nil {
			return nil, fmt.Errorf("server %q: %w", name, err)
		}
		out[name] = cfg
	}
	return out, nil
}

func fromRaw(name string, raw rawServerConfig, source string) (ServerConfig, error) {
	if len(raw.IncludeTools) > 0 && len(raw.AllowedTools) > 0 {
		return ServerConfig{}, fmt.Errorf("includeTools and allowedTools are aliases and must not both be set")
	}
	include := raw.IncludeTools
	if len(include) == 0 {
		include = raw.AllowedTools
	}

	hasStdio := raw.Command != ""
	hasHTTP := raw.URL != ""

	switch {
	case hasStdio && hasHTTP:
		return ServerConfig{}, fmt.Errorf("command and url are mutually exclusive")
	case hasStdio:
		return ServerConfig{
			Name:      name,
			Transport: TransportStdio,
			Stdio: &StdioConfig{
				Command: raw.Command,
				Args:    raw.Args,
				Env:     raw.Env,
				Cwd:     raw.Cwd,
			},
			IncludeTools:  include,
			DisabledTools: raw.DisabledTools,
			Source:        source,
		}, nil
	case hasHTTP:
		timeout := 30 * time.Second
		if raw.Timeout != nil {
			timeout = *raw.Timeout
		}
		return ServerConfig{
			Name:      name,
			Transport: TransportHTTP,
			HTTP: &HTTPConfig{
				URL:     raw.URL,
				Headers: raw.Headers,
				Timeout: timeout,
			},
			IncludeTools:  include,
			DisabledTools: raw.DisabledTools,
			Source:        source,
		}, nil
	default:
		return ServerConfig{}, fmt.Errorf("exactly one of command or url is required")
	}
}

// ParseOne parses a single server's raw config object — the shape carried
// inside a daemon wire request's "config" field (spec.md §6) — rather
// than a whole mcpServers file.
func ParseOne(name string, data []byte, source string) (ServerConfig, error) {
	var raw rawServerConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid config JSON: %w", err)
	}
	return fromRaw(name, raw, source)
}

// Load reads and parses a config file from disk.
func Load(configPath string) (map[string]ServerConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}
	return Parse(data, configPath)
}

// LoadInline parses a config given directly as a JSON string (the `-c`
// flag accepts either a path or inline JSON, per spec.md §6).
func LoadInline(inline string) (map[string]ServerConfig, error) {
	return Parse([]byte(inline), "<inline>")
}

// Resolve implements the `-c <path|inline-json>` contract: if the value
// looks like a path to an existing file, load it from disk; otherwise
// treat it as inline JSON. An empty value yields an empty server map.
func Resolve(flag string) (map[string]ServerConfig, error) {
	if flag == "" {
		return map[string]ServerConfig{}, nil
	}
	trimmed := strings.TrimSpace(flag)
	if strings.HasPrefix(trimmed, "{") {
		return LoadInline(flag)
	}
	if _, err := os.Stat(flag); err == nil {
		return Load(flag)
	}
	return LoadInline(flag)
}

// ToRaw re-serializes a ServerConfig back to the on-disk rawServerConfig
// shape, for handing to the daemon over the wire (spec.md §6's "config"
// request field carries exactly this shape).
func ToRaw(cfg ServerConfig) (json.RawMessage, error) {
	raw := rawServerConfig{
		IncludeTools:  cfg.IncludeTools,
		DisabledTools: cfg.DisabledTools,
	}
	switch cfg.Transport {
	case TransportStdio:
		if cfg.Stdio != nil {
			raw.Command = cfg.Stdio.Command
			raw.Args = cfg.Stdio.Args
			raw.Env = cfg.Stdio.Env
			raw.Cwd = cfg.Stdio.Cwd
		}
	case TransportHTTP:
		if cfg.HTTP != nil {
			raw.URL = cfg.HTTP.URL
			raw.Headers = cfg.HTTP.Headers
			raw.Timeout = &cfg.HTTP.Timeout
		}
	}
	return json.Marshal(raw)
}

// Hash computes a stable digest of a ServerConfig with object keys sorted
// recursively (spec.md §3's "Config hash" in the GLOSSARY), so that two
// structurally-equal configs hash identically regardless of map iteration
// order. Length is the full 64 hex chars of a sha256 sum, satisfying the
// "≥ 16 hex chars" invariant with room to spare.
func Hash(cfg ServerConfig) string {
	canon := canonicalize(cfg)
	sum := sha256.Sum256([]byte(canon))
	return hex.EncodeToString(sum[:])
}

// canonicalize renders a ServerConfig as a '|'-delimited string with every
// map's entries sorted by key, using only the fields that affect session
// identity —
// Source and the tool filters don't change what a Session *is*, so they
// are excluded from the hash (two entries that differ only in provenance
// or filtering should not be treated as config drift).
func canonicalize(cfg ServerConfig) string {
	var b strings.Builder
	b.WriteString(string(cfg.Transport))
	b.WriteByte('|')
	switch cfg.Transport {
	case TransportStdio:
		if cfg.Stdio != nil {
			b.WriteString(cfg.Stdio.Command)
			b.WriteByte('|')
			b.WriteString(strings.Join(cfg.Stdio.Args, "\x1f"))
			b.WriteByte('|')
			b.WriteString(sortedMap(cfg.Stdio.Env))
			b.WriteByte('|')
			b.WriteString(cfg.Stdio.Cwd)
		}
	case TransportHTTP:
		if cfg.HTTP != nil {
			b.WriteString(cfg.HTTP.URL)
			b.WriteByte('|')
			b.WriteString(sortedMap(cfg.HTTP.Headers))
			b.WriteByte('|')
			b.WriteString(cfg.HTTP.Timeout.String())
		}
	}
	return b.String()
}

func sortedMap(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(m[k])
		b.WriteByte(';')
	}
	return b.String()
}

// Blocked reports whether a server/tool pair is excluded by the config's
// glob filters: a disabledTools match always blocks; an includeTools list,
// when non-empty, additionally requires a positive match. Each pattern is
// matched against both "server/tool" and the bare tool name using
// shell-glob semantics (path.Match), so a pattern of "*/*" — the boundary case in spec.md §8 — blocks every
// tool on every server.
func Blocked(cfg ServerConfig, toolName string) bool {
	target := cfg.Name + "/" + toolName

	for _, pattern := range cfg.DisabledTools {
		if globMatch(pattern, target, toolName) {
			return true
		}
	}

	if len(cfg.IncludeTools) == 0 {
		return false
	}
	for _, pattern := range cfg.IncludeTools {
		if globMatch(pattern, target, toolName) {
			return false
		}
	}
	return true
}

func globMatch(pattern, target, toolOnly string) bool {
	if ok, err := path.Match(pattern, target); err == nil && ok {
		return true
	}
	if ok, err := path.Match(pattern, toolOnly); err == nil && ok {
		return true
	}
	return false
}
