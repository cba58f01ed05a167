// Edgecache is a caching reverse proxy that stores origin responses by URL,
// honours Cache-Control, and supports purging by Cache-Tag.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/eugener/edgecache/internal/config"
)

var version = "dev"

// defaultConfigPath is overridden by EDGECACHE_CONFIG.
const defaultConfigPath = "configs/edgecache.yaml"

func main() {
	path := defaultConfigPath
	if env := os.Getenv("EDGECACHE_CONFIG"); env != "" {
		path = env
	}
	configPath := flag.String("config", path, "path to config file (env EDGECACHE_CONFIG)")
	check := flag.Bool("check", false, "validate the config file and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	switch {
	case *showVersion:
		fmt.Println("edgecache", version)
	case *check:
		if err := checkConfig(os.Stdout, *configPath); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	default:
		if err := run(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
}

// checkConfig loads and validates the config at path and prints what the
// service would start with.
func checkConfig(w io.Writer, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	admin := "disabled"
	if cfg.Admin.APIKey != "" {
		admin = "enabled"
	}
	purgeLog := "disabled"
	if cfg.Database.Enabled {
		purgeLog = cfg.Database.DSN
	}
	fmt.Fprintf(w, "config ok: %s\n", path)
	fmt.Fprintf(w, "  origin:    %s\n", cfg.Origin.URL)
	fmt.Fprintf(w, "  cache:     %s, %d entries, %d shards\n", cfg.Cache.Backend, cfg.Cache.MaxEntries, cfg.Cache.Shards)
	fmt.Fprintf(w, "  admin:     %s\n", admin)
	fmt.Fprintf(w, "  purge log: %s\n", purgeLog)
	return nil
}
