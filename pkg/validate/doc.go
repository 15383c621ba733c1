// Package validate performs semantic validation of a fully resolved
// configuration.
//
// Checks fall into four groups: references (backends, ACLs, templates),
// numeric domains, enumerations and name uniqueness. Domains and
// enumerations are CUE schemas, one per node kind, held by a SchemaRegistry
// and unified with a plain-data view of each node. Every violation is
// collected; Validate returns them together as a diag.List.
package validate
