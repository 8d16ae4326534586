// Package confloader loads layered configuration with koanf.
//
// Sources, later overriding earlier:
//
//  1. the defaults already present in the target struct
//  2. a YAML file
//  3. environment variables (RSVPGUARD_ prefix, "__" between levels)
//  4. an explicit map, used for command-line flags
//
// Watcher reports changes to a configuration file so callers can reload
// the parts that are safe to change at runtime.
package confloader
