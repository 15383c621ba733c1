// Package config loads the translator's settings file and env files.
//
// Settings are read from YAML (gopkg.in/yaml.v3) and checked with
// go-playground/validator struct tags. Unknown keys are rejected so typos
// surface instead of being silently ignored.
//
//	settings, err := config.Load("")  // .haproxy-translate.yaml if present
//	if err != nil {
//	    return err
//	}
//	tel, err := telemetry.NewTelemetry(settings.Telemetry(version))
//
// Command line flags override file values; see cmd/haproxy-translate.
package config
