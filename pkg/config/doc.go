// Package config loads application configuration in three layers:
// built-in defaults, an optional YAML file named by PLATEMILL_CONFIG_FILE,
// and PLATEMILL_* environment variables. Later layers win, so a container
// can mount a base file and override a handful of values per environment.
//
// Usage:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Listening on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// LoadConfig validates the merged result; a missing Postgres URL or an
// unknown uploads backend fails startup rather than surfacing later.
package config
