// Package config provides map-backed configuration with typed accessors
// and YAML/JSON file loading.
//
// Values are looked up by key with a caller-supplied default, so a
// partially-specified file still produces a fully usable configuration:
//
//	cfg, err := config.FromFile("canvas.yaml")
//	if err != nil {
//	    // handle
//	}
//	capacity := cfg.Int("history_capacity", 50)
//	debounce := cfg.Duration("offload_debounce", 4*time.Second)
//
// See canvasgraph.OptionsFromConfig for mapping a Config onto engine options.
package config
