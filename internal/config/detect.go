package config

import (
	"os"
	"path/filepath"
)

// Detect checks a volume root for well-known service config files and returns
// the ones present as allowlist entries. Only the named candidates are
// stat'ed; the directory is never listed.
func Detect(volumeRoot string) []File {
	candidates := []File{
		{"nginx.conf", "Nginx Config"},
		{"conf.d/default.conf", "Nginx Site"},
		{"Caddyfile", "Caddyfile"},
		{"haproxy.cfg", "HAProxy Config"},
		{"traefik.yml", "Traefik Config"},
		{"redis.conf", "Redis Config"},
		{"postgresql.conf", "PostgreSQL Config"},
		{"pg_hba.conf", "PostgreSQL Client Auth"},
		{"my.cnf", "MySQL Config"},
		{"mosquitto.conf", "Mosquitto Config"},
		{"prometheus.yml", "Prometheus Config"},
		{"config.yaml", "Config"},
		{"config.yml", "Config"},
		{"config.json", "Config"},
		{"settings.json", "Settings"},
		{".env", "Environment"},
	}

	var found []File
	for _, c := range candidates {
		info, err := os.Stat(filepath.Join(volumeRoot, c.Path))
		if err == nil && info.Mode().IsRegular() {
			found = append(found, c)
		}
	}
	return found
}
