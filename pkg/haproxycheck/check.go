// Package haproxycheck re-parses generated configuration with HAProxy's own
// config parser from client-native and compares the result with the
// configuration it was generated from.
//
// Only syntax is checked. Semantic checks such as file existence or
// directive compatibility need the haproxy binary.
package haproxycheck

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	parser "github.com/haproxytech/client-native/v6/config-parser"
	"github.com/haproxytech/client-native/v6/config-parser/types"

	"github.com/openfroyo/haproxy-translate/pkg/ir"
)

// parserMutex serializes parsing. client-native writes a package-level
// variable (DefaultSectionName) while parsing.
var parserMutex sync.Mutex

// Summary lists what the parser found in a configuration.
type Summary struct {
	Frontends []string
	Backends  []string

	// Servers maps backend names to their server names.
	Servers map[string][]string
}

// Check parses text and summarizes its proxies.
func Check(text string) (*Summary, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("configuration is empty")
	}

	parserMutex.Lock()
	defer parserMutex.Unlock()

	p, err := parser.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create parser: %w", err)
	}
	if err := p.Process(strings.NewReader(text)); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	summary := &Summary{Servers: map[string][]string{}}
	if sections, err := p.SectionsGet(parser.Frontends); err == nil {
		summary.Frontends = sorted(sections)
	}
	if sections, err := p.SectionsGet(parser.Backends); err == nil {
		summary.Backends = sorted(sections)
	}

	for _, name := range summary.Backends {
		data, err := p.Get(parser.Backends, name, "server")
		if err != nil {
			// No servers in this backend.
			continue
		}
		servers, ok := data.([]types.Server)
		if !ok {
			continue
		}
		names := make([]string, 0, len(servers))
		for _, s := range servers {
			names = append(names, s.Name)
		}
		summary.Servers[name] = names
	}
	return summary, nil
}

func sorted(names []string) []string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	return out
}

// Verify parses text and checks that every frontend and backend of cfg, and
// every server of each backend, is present in it.
func Verify(cfg *ir.Config, text string) (*Summary, error) {
	summary, err := Check(text)
	if err != nil {
		return nil, err
	}

	var missing []string
	frontends := set(summary.Frontends)
	backends := set(summary.Backends)
	for _, fe := range ir.ChildrenOf[*ir.Frontend](cfg) {
		if !frontends[fe.Name] {
			missing = append(missing, "frontend "+fe.Name)
		}
	}
	for _, be := range ir.ChildrenOf[*ir.Backend](cfg) {
		if !backends[be.Name] {
			missing = append(missing, "backend "+be.Name)
			continue
		}
		servers := set(summary.Servers[be.Name])
		for _, srv := range ir.ChildrenOf[*ir.Server](be) {
			if !servers[srv.Name] {
				missing = append(missing, fmt.Sprintf("server %s/%s", be.Name, srv.Name))
			}
		}
	}

	if len(missing) > 0 {
		return summary, fmt.Errorf("generated configuration is missing %s", strings.Join(missing, ", "))
	}
	return summary, nil
}

func set(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}
