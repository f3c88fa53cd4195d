// Package output renders command results as a table, JSON or YAML.
//
// Tables are built by reflection. A slice of structs becomes one row per
// element, a single struct or a map becomes a two column listing. Column
// names come from a field's json, yaml or codec tag, upper-cased. A
// `table:"-"` tag hides a field and `table:"wide"` shows it only with
// --wide. Values a table cannot show, such as a bare string, fall back to
// JSON.
package output
