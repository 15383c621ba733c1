package validate

import (
	"strconv"
	"strings"

	"github.com/openfroyo/haproxy-translate/pkg/ir"
)

// encode returns the plain-data view of n checked against its schema, and
// the IR value each field came from. Durations are encoded as nanoseconds.
func encode(n ir.Node) (map[string]interface{}, map[string]ir.Value) {
	data := map[string]interface{}{}
	sources := map[string]ir.Value{}
	set := func(key string, v ir.Value) {
		if _, ok := data[key]; ok {
			return
		}
		data[key] = plain(v)
		sources[key] = v
	}

	ir.Common(n).Props.Each(func(key string, v ir.Value) {
		set(key, v)
	})

	switch v := n.(type) {
	case *ir.Server:
		optionArgs(ir.KindServer, v.Args, set)
		addressPort(ir.Common(n).Props, set)
	case *ir.ServerTemplate:
		optionArgs(ir.KindServerTemplate, v.Args, set)
		addressPort(ir.Common(n).Props, set)
	case *ir.Bind:
		optionArgs(ir.KindBind, v.Args, set)
		if port, ok := portOf(v.Address); ok {
			set("port", port)
		}
		addressPort(ir.Common(n).Props, set)
	case *ir.RequestRule:
		ruleStatus(v.RuleSpec, set)
	case *ir.ResponseRule:
		ruleStatus(v.RuleSpec, set)
	}
	return data, sources
}

func plain(v ir.Value) interface{} {
	switch v.Kind {
	case ir.IntValue:
		return v.Int
	case ir.FloatValue:
		return v.Float
	case ir.BoolValue:
		return v.Bool
	case ir.DurationValue:
		return int64(v.Dur)
	case ir.StringValue, ir.WordValue:
		if i, err := strconv.ParseInt(v.Str, 10, 64); err == nil {
			return i
		}
		if d, err := ir.ParseDuration(v.Str); err == nil {
			return int64(d)
		}
		return v.Str
	case ir.ListValue:
		items := make([]interface{}, len(v.Items))
		for i, item := range v.Items {
			items[i] = plain(item)
		}
		return items
	case ir.ObjectValue:
		fields := map[string]interface{}{}
		v.Fields.Each(func(key string, f ir.Value) {
			fields[key] = plain(f)
		})
		return fields
	}
	return v.Text()
}

// optionArgs reads "keyword value" pairs and bare flags from a directive
// line's arguments.
func optionArgs(kind ir.NodeKind, args []ir.Value, set func(string, ir.Value)) {
	for i := 0; i < len(args); i++ {
		spec, ok := ir.LookupKeyword(kind, strings.ReplaceAll(args[i].Text(), "-", "_"))
		if !ok || spec.Keyword == "" {
			continue
		}
		if spec.Shape == ir.ShapeBool {
			set(spec.Name, ir.Bool(true).At(args[i].Pos))
			continue
		}
		if i+1 < len(args) {
			set(spec.Name, args[i+1])
			i++
		}
	}
}

func addressPort(props ir.Properties, set func(string, ir.Value)) {
	if addr, ok := props.Get("address"); ok {
		if port, ok := portOf(addr); ok {
			set("port", port)
		}
	}
}

// portOf extracts the port of a "host:port" address.
func portOf(addr ir.Value) (ir.Value, bool) {
	text := addr.Text()
	idx := strings.LastIndex(text, ":")
	if idx < 0 || idx == len(text)-1 {
		return ir.Value{}, false
	}
	port, err := strconv.ParseInt(text[idx+1:], 10, 64)
	if err != nil {
		return ir.Value{}, false
	}
	return ir.Int(port).At(addr.Pos), true
}

func ruleStatus(r ir.RuleSpec, set func(string, ir.Value)) {
	if r.Action == "set-status" && len(r.Args) > 0 {
		set("status", r.Args[0])
		return
	}
	for i := 0; i+1 < len(r.Args); i++ {
		switch r.Args[i].Text() {
		case "deny_status", "status", "code":
			set("status", r.Args[i+1])
			return
		}
	}
}
