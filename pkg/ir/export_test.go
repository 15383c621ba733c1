package ir

import (
	"encoding/json"
	"testing"
)

func TestExport(t *testing.T) {
	cfg := mustBuild(t, `
let region = "eu"
frontend fe {
    bind *:80
    use_backend app if is_api
}
backend app {
    server s1 10.0.0.1:80
}
`)
	out := Export(cfg)

	vars := out["variables"].(map[string]interface{})
	if vars["region"] != "eu" {
		t.Errorf("variables = %v", vars)
	}

	fes := out["frontends"].([]interface{})
	if len(fes) != 1 {
		t.Fatalf("frontends = %v", fes)
	}
	fe := fes[0].(map[string]interface{})
	if fe["name"] != "fe" {
		t.Errorf("frontend name = %v", fe["name"])
	}
	routes := fe["routes"].([]interface{})
	if len(routes) != 1 || routes[0].(map[string]interface{})["backend"] != "app" {
		t.Errorf("routes = %v", routes)
	}
	if acls := fe["acls"].([]interface{}); len(acls) != 0 {
		t.Errorf("acls = %v", acls)
	}

	be := out["backends"].([]interface{})[0].(map[string]interface{})
	if servers := be["servers"].([]interface{}); len(servers) != 1 {
		t.Errorf("servers = %v", servers)
	}

	if _, err := json.Marshal(out); err != nil {
		t.Errorf("export is not JSON encodable: %v", err)
	}
}
