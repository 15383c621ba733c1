package validate

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/openfroyo/haproxy-translate/pkg/ir"
)

// SchemaRegistry manages the CUE schemas that constrain property values of
// each node kind.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[ir.NodeKind]cue.Value
	enums   map[ir.NodeKind]map[string]bool
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a registry with the built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[ir.NodeKind]cue.Value),
		enums:   make(map[ir.NodeKind]map[string]bool),
	}
	for _, s := range builtinSchemas {
		if err := sr.RegisterSchema(s.kind, s.source, s.enums...); err != nil {
			// Built-in schemas are constants; failing to compile one is a
			// programming error.
			panic(err)
		}
	}
	return sr
}

// RegisterSchema compiles a schema for kind. The source must define a
// "#Node" definition. enumFields names the fields whose violations are
// reported as invalid enumerations rather than out-of-range values.
func (sr *SchemaRegistry) RegisterSchema(kind ir.NodeKind, source string, enumFields ...string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(commonDefinitions + source)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", kind, err)
	}
	def := val.LookupPath(cue.ParsePath("#Node"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("schema %s has no #Node definition: %w", kind, err)
	}

	enums := make(map[string]bool, len(enumFields))
	for _, f := range enumFields {
		enums[f] = true
	}
	sr.schemas[kind] = def
	sr.enums[kind] = enums
	return nil
}

// HasSchema reports whether a schema is registered for kind.
func (sr *SchemaRegistry) HasSchema(kind ir.NodeKind) bool {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	_, ok := sr.schemas[kind]
	return ok
}

// Violation is one schema failure.
type Violation struct {
	// Field is the top-level field that failed, empty when unknown.
	Field   string
	Message string
	Enum    bool
}

// Check unifies data with the schema of kind and returns every violation.
func (sr *SchemaRegistry) Check(kind ir.NodeKind, data map[string]interface{}) ([]Violation, error) {
	sr.mu.RLock()
	schema, ok := sr.schemas[kind]
	enums := sr.enums[kind]
	sr.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", kind, err)
	}

	err := schema.Unify(dataVal).Validate(cue.Concrete(true))
	if err == nil {
		return nil, nil
	}

	var out []Violation
	seen := map[string]bool{}
	for _, e := range cueerrors.Errors(err) {
		field := fieldOf(e.Path(), data)
		// Disjunctions report one error per failed branch; keep the first.
		if field != "" && seen[field] {
			continue
		}
		seen[field] = true

		format, args := e.Msg()
		out = append(out, Violation{
			Field:   field,
			Message: fmt.Sprintf(format, args...),
			Enum:    enums[field],
		})
	}
	return out, nil
}

// fieldOf returns the first path element naming a field of data. Paths of
// errors raised inside a definition carry the definition name first.
func fieldOf(path []string, data map[string]interface{}) string {
	for _, p := range path {
		if _, ok := data[p]; ok {
			return p
		}
	}
	return ""
}

type builtinSchema struct {
	kind   ir.NodeKind
	source string
	enums  []string
}

const commonDefinitions = `
#Port:     int & >=1 & <=65535
#Status:   int & >=100 & <=599
#Duration: int & >0
#Mode:     "http" | "tcp"
#Verify:   "none" | "optional" | "required"
#Balance:  "roundrobin" | "static-rr" | "leastconn" | "first" | "source" | "uri" | "url_param" | "hdr" | "random" | "rdp-cookie" | "hash" | =~"^(uri|url_param|hdr|random|rdp-cookie|hash)[ (]"

#ServerOptions: {
	port?:      #Port
	inter?:     #Duration
	fastinter?: #Duration
	downinter?: #Duration
	rise?:      int & >=1
	fall?:      int & >=1
	weight?:    int & >=0 & <=256
	maxconn?:   int & >=0
	maxqueue?:  int & >=0
	verify?:    #Verify
	...
}

#Proxy: {
	mode?:    #Mode
	maxconn?: int & >=0
	timeout?: {[string]: #Duration}
	...
}
`

var builtinSchemas = []builtinSchema{
	{
		kind: ir.KindGlobal,
		source: `
#Node: {
	maxconn?:                   int & >=0
	nbthread?:                  int & >=1
	stats_timeout?:             #Duration
	tune_ssl_default_dh_param?: int & >=1
	...
}`,
	},
	{
		kind: ir.KindDefaults,
		source: `
#Node: #Proxy & {
	balance?: #Balance
	retries?: int & >=0
	log?:     "global" | string | [...string]
	...
}`,
		enums: []string{"mode", "balance"},
	},
	{
		kind:   ir.KindFrontend,
		source: `#Node: #Proxy`,
		enums:  []string{"mode"},
	},
	{
		kind: ir.KindBackend,
		source: `
#Node: #Proxy & {
	balance?:  #Balance
	retries?:  int & >=0
	fullconn?: int & >=0
	...
}`,
		enums: []string{"mode", "balance"},
	},
	{
		kind: ir.KindListen,
		source: `
#Node: #Proxy & {
	balance?:  #Balance
	retries?:  int & >=0
	fullconn?: int & >=0
	...
}`,
		enums: []string{"mode", "balance"},
	},
	{
		kind:   ir.KindServer,
		source: `#Node: #ServerOptions`,
		enums:  []string{"verify"},
	},
	{
		kind: ir.KindServerTemplate,
		source: `
#Node: #ServerOptions & {
	count?: int & >=1
	...
}`,
		enums: []string{"verify"},
	},
	{
		kind: ir.KindBind,
		source: `
#Node: {
	port?:   #Port
	verify?: #Verify
	...
}`,
		enums: []string{"verify"},
	},
	{
		kind: ir.KindHealthCheck,
		source: `
#Node: {
	method?:        "GET" | "HEAD" | "POST" | "PUT" | "DELETE" | "OPTIONS" | "PATCH" | "TRACE" | "CONNECT"
	expect_status?: #Status
	...
}`,
		enums: []string{"method"},
	},
	{
		kind: ir.KindStickTable,
		source: `
#Node: {
	type?:   "ip" | "ipv6" | "integer" | "string" | "binary"
	expire?: #Duration
	...
}`,
		enums: []string{"type"},
	},
	{
		kind: ir.KindRequestRule,
		source: `
#Node: {
	status?: #Status
	...
}`,
	},
	{
		kind: ir.KindResponseRule,
		source: `
#Node: {
	status?: #Status
	...
}`,
	},
}
