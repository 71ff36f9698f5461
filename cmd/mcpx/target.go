package mcpx

import (
	"fmt"
	"strings"

	"github.com/cs50victor/mcpx/internal/errs"
	"github.com/cs50victor/mcpx/internal/mcpconfig"
)

// parseTarget splits the `server/tool` and `server/tool <json>` forms
// spec.md §6's CLI surface describes into a server name and tool name.
func parseTarget(target string) (server, tool string, err error) {
	i := strings.IndexByte(target, '/')
	if i <= 0 || i == len(target)-1 {
		return "", "", errs.New(errs.KindClient, fmt.Sprintf("invalid target %q: expected server/tool", target), nil)
	}
	return target[:i], target[i+1:], nil
}

func resolveServer(servers map[string]mcpconfig.ServerConfig, name string) (mcpconfig.ServerConfig, error) {
	cfg, ok := servers[name]
	if !ok {
		return mcpconfig.ServerConfig{}, errs.New(errs.KindClient, fmt.Sprintf("unknown server %q", name), nil)
	}
	return cfg, nil
}
