// Package confloader loads layered configuration with koanf.
//
// Priority (highest to lowest):
//
//  1. Command-line flags (LoadMap)
//  2. Environment variables (REMOTELY_ prefix)
//  3. The YAML configuration file
//  4. Defaults already present in the target struct
//
// Environment variables separate nesting levels with a double underscore so
// that keys may contain single underscores:
//
//	REMOTELY_SERVER__MAX_MSG_CAPACITY=200  ->  server.max_msg_capacity
//
// Watcher reports writes to the configuration file so that settings which
// are safe to change at runtime, such as log.level, can be reapplied.
package confloader
