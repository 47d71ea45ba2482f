package config

import (
	"net"
	"net/url"
	"os"
	"strings"
	"sync"
)

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker returns true if the application is running inside a Docker container.
// Detection is based on the presence of /.dockerenv file which exists in all Docker containers.
// The result is cached after the first call.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveConnectionStringForDocker points localhost connection strings at
// the Docker host when running in a container. Other strings are unchanged.
func ResolveConnectionStringForDocker(connStr string) string {
	return rewriteLocalhost(connStr, IsRunningInDocker())
}

func rewriteLocalhost(connStr string, inDocker bool) string {
	if !inDocker || connStr == "" {
		return connStr
	}
	u, err := url.Parse(connStr)
	if err != nil || u.Host == "" {
		return connStr
	}

	// Multi-host strings (replica sets) are rewritten host by host.
	hosts := strings.Split(u.Host, ",")
	changed := false
	for i, h := range hosts {
		host, port, err := net.SplitHostPort(h)
		if err != nil {
			host, port = h, ""
		}
		if host != "localhost" && host != "127.0.0.1" {
			continue
		}
		changed = true
		hosts[i] = "host.docker.internal"
		if port != "" {
			hosts[i] = net.JoinHostPort("host.docker.internal", port)
		}
	}
	if !changed {
		return connStr
	}
	u.Host = strings.Join(hosts, ",")
	return u.String()
}
