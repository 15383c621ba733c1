package ir

import (
	"strings"
)

// Shape is how a modeled property value is rendered.
type Shape int

const (
	// ShapeScalar renders the value's text after the keyword.
	ShapeScalar Shape = iota
	// ShapeBool renders the bare keyword when true and nothing when false.
	ShapeBool
	ShapeInt
	ShapeDuration
	ShapeWord
	ShapeString
	// ShapeListLines renders one keyword line per list item.
	ShapeListLines
	// ShapeListJoin renders one keyword followed by comma-joined items.
	ShapeListJoin
	// ShapeObjectLines renders "keyword key value" per object field.
	ShapeObjectLines
)

// KeywordSpec describes one modeled property.
type KeywordSpec struct {
	// Name is the DSL property name.
	Name string
	// Keyword is the HAProxy spelling.
	Keyword string
	Shape   Shape
	// Raw values are written verbatim, never quoted.
	Raw bool
}

var (
	proxyCommon = []KeywordSpec{
		{Name: "description", Keyword: "description", Shape: ShapeString, Raw: true},
		{Name: "mode", Keyword: "mode", Shape: ShapeWord},
		{Name: "maxconn", Keyword: "maxconn", Shape: ShapeInt},
		{Name: "log", Keyword: "log", Shape: ShapeListLines, Raw: true},
		{Name: "option", Keyword: "option", Shape: ShapeListLines, Raw: true},
		{Name: "timeout", Keyword: "timeout", Shape: ShapeObjectLines},
	}

	backendOnly = []KeywordSpec{
		{Name: "balance", Keyword: "balance", Shape: ShapeWord, Raw: true},
		{Name: "hash_type", Keyword: "hash-type", Shape: ShapeString, Raw: true},
		{Name: "retries", Keyword: "retries", Shape: ShapeInt},
		{Name: "fullconn", Keyword: "fullconn", Shape: ShapeInt},
		{Name: "cookie", Keyword: "cookie", Shape: ShapeString, Raw: true},
		{Name: "http_reuse", Keyword: "http-reuse", Shape: ShapeWord},
		{Name: "default_server", Keyword: "default-server", Shape: ShapeString, Raw: true},
	}

	frontendOnly = []KeywordSpec{
		{Name: "default_backend", Keyword: "default_backend", Shape: ShapeWord},
	}

	serverOptions = []KeywordSpec{
		{Name: "check", Keyword: "check", Shape: ShapeBool},
		{Name: "inter", Keyword: "inter", Shape: ShapeDuration},
		{Name: "rise", Keyword: "rise", Shape: ShapeInt},
		{Name: "fall", Keyword: "fall", Shape: ShapeInt},
		{Name: "weight", Keyword: "weight", Shape: ShapeInt},
		{Name: "backup", Keyword: "backup", Shape: ShapeBool},
		{Name: "ssl", Keyword: "ssl", Shape: ShapeBool},
		{Name: "verify", Keyword: "verify", Shape: ShapeWord},
		{Name: "sni", Keyword: "sni", Shape: ShapeString, Raw: true},
		{Name: "maxconn", Keyword: "maxconn", Shape: ShapeInt},
		{Name: "cookie", Keyword: "cookie", Shape: ShapeString},
		{Name: "send_proxy", Keyword: "send-proxy", Shape: ShapeBool},
		{Name: "disabled", Keyword: "disabled", Shape: ShapeBool},
		{Name: "fastinter", Keyword: "fastinter", Shape: ShapeDuration},
		{Name: "downinter", Keyword: "downinter", Shape: ShapeDuration},
		{Name: "check_ssl", Keyword: "check-ssl", Shape: ShapeBool},
		{Name: "send_proxy_v2", Keyword: "send-proxy-v2", Shape: ShapeBool},
		{Name: "ca_file", Keyword: "ca-file", Shape: ShapeString},
		{Name: "crt", Keyword: "crt", Shape: ShapeString},
		{Name: "maxqueue", Keyword: "maxqueue", Shape: ShapeInt},
		{Name: "resolvers", Keyword: "resolvers", Shape: ShapeWord},
		{Name: "init_addr", Keyword: "init-addr", Shape: ShapeString, Raw: true},
	}
)

func concat(groups ...[]KeywordSpec) []KeywordSpec {
	var out []KeywordSpec
	seen := map[string]bool{}
	for _, g := range groups {
		for _, s := range g {
			if !seen[s.Name] {
				seen[s.Name] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// catalog lists modeled properties per node kind in output order. It is
// read-only after package initialization.
var catalog = map[NodeKind][]KeywordSpec{
	KindGlobal: {
		{Name: "daemon", Keyword: "daemon", Shape: ShapeBool},
		{Name: "user", Keyword: "user", Shape: ShapeWord},
		{Name: "group", Keyword: "group", Shape: ShapeWord},
		{Name: "chroot", Keyword: "chroot", Shape: ShapeString, Raw: true},
		{Name: "pidfile", Keyword: "pidfile", Shape: ShapeString, Raw: true},
		{Name: "maxconn", Keyword: "maxconn", Shape: ShapeInt},
		{Name: "nbthread", Keyword: "nbthread", Shape: ShapeInt},
		{Name: "log", Keyword: "log", Shape: ShapeListLines, Raw: true},
		{Name: "stats_socket", Keyword: "stats socket", Shape: ShapeListLines, Raw: true},
		{Name: "stats_timeout", Keyword: "stats timeout", Shape: ShapeDuration},
		{Name: "ssl_default_bind_ciphers", Keyword: "ssl-default-bind-ciphers", Shape: ShapeString, Raw: true},
		{Name: "ssl_default_bind_options", Keyword: "ssl-default-bind-options", Shape: ShapeString, Raw: true},
		{Name: "tune_ssl_default_dh_param", Keyword: "tune.ssl.default-dh-param", Shape: ShapeInt},
		{Name: "lua_prepend_path", Keyword: "lua-prepend-path", Shape: ShapeString, Raw: true},
	},
	KindDefaults: concat(
		[]KeywordSpec{{Name: "mode", Keyword: "mode", Shape: ShapeWord}},
		proxyCommon,
		[]KeywordSpec{
			{Name: "balance", Keyword: "balance", Shape: ShapeWord, Raw: true},
			{Name: "retries", Keyword: "retries", Shape: ShapeInt},
			{Name: "default_server", Keyword: "default-server", Shape: ShapeString, Raw: true},
			{Name: "errorfile", Keyword: "errorfile", Shape: ShapeObjectLines, Raw: true},
		},
	),
	KindFrontend: concat(proxyCommon, frontendOnly),
	KindBackend:  concat(proxyCommon, backendOnly),
	KindListen:   concat(proxyCommon, backendOnly, frontendOnly),
	KindServer: concat(
		[]KeywordSpec{
			{Name: "address", Keyword: "", Shape: ShapeScalar},
			{Name: "port", Keyword: "", Shape: ShapeInt},
		},
		serverOptions,
	),
	KindServerTemplate: concat(
		[]KeywordSpec{
			{Name: "count", Keyword: "", Shape: ShapeInt},
			{Name: "address", Keyword: "", Shape: ShapeScalar},
			{Name: "port", Keyword: "", Shape: ShapeInt},
		},
		serverOptions,
	),
	KindBind: {
		{Name: "address", Keyword: "", Shape: ShapeScalar},
		{Name: "ssl", Keyword: "ssl", Shape: ShapeBool},
		{Name: "crt", Keyword: "crt", Shape: ShapeString},
		{Name: "alpn", Keyword: "alpn", Shape: ShapeListJoin},
		{Name: "verify", Keyword: "verify", Shape: ShapeWord},
		{Name: "ca_file", Keyword: "ca-file", Shape: ShapeString},
		{Name: "accept_proxy", Keyword: "accept-proxy", Shape: ShapeBool},
		{Name: "transparent", Keyword: "transparent", Shape: ShapeBool},
		{Name: "v4v6", Keyword: "v4v6", Shape: ShapeBool},
	},
	KindHealthCheck: {
		{Name: "method", Keyword: "", Shape: ShapeWord},
		{Name: "uri", Keyword: "", Shape: ShapeString, Raw: true},
		{Name: "version", Keyword: "", Shape: ShapeString, Raw: true},
		{Name: "host", Keyword: "", Shape: ShapeString, Raw: true},
		{Name: "expect_status", Keyword: "", Shape: ShapeInt},
		{Name: "expect", Keyword: "", Shape: ShapeString, Raw: true},
	},
	KindStickTable: {
		{Name: "type", Keyword: "type", Shape: ShapeWord},
		{Name: "size", Keyword: "size", Shape: ShapeScalar},
		{Name: "expire", Keyword: "expire", Shape: ShapeDuration},
		{Name: "store", Keyword: "store", Shape: ShapeListJoin, Raw: true},
		{Name: "peers", Keyword: "peers", Shape: ShapeWord},
		{Name: "nopurge", Keyword: "nopurge", Shape: ShapeBool},
	},
}

// Keywords returns the modeled properties of kind in output order.
func Keywords(kind NodeKind) []KeywordSpec {
	return catalog[kind]
}

// LookupKeyword returns the spec for a modeled property.
func LookupKeyword(kind NodeKind, name string) (KeywordSpec, bool) {
	for _, s := range catalog[kind] {
		if s.Name == name {
			return s, true
		}
	}
	return KeywordSpec{}, false
}

// Modeled reports whether name is a modeled property of kind.
func Modeled(kind NodeKind, name string) bool {
	_, ok := LookupKeyword(kind, name)
	return ok
}

// Hyphenate maps an underscore property name to HAProxy's keyword spelling.
func Hyphenate(name string) string {
	return strings.ReplaceAll(name, "_", "-")
}
