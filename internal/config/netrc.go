package config

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// NetrcEntry represents credentials for a single machine in .netrc.
type NetrcEntry struct {
	Machine  string
	Login    string
	Password string
	Account  string
}

// parseNetrc reads a .netrc file into a machine -> entry map. A missing
// file is not an error.
func parseNetrc(path string) (map[string]NetrcEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("netrc: open: %w", err)
	}
	defer file.Close()

	// netrc is token-based; newlines only matter for comments.
	var tokens []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tokens = append(tokens, strings.Fields(line)...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("netrc: scan: %w", err)
	}

	entries := make(map[string]NetrcEntry)
	var current NetrcEntry
	flush := func() {
		if current.Machine != "" {
			entries[current.Machine] = current
		}
	}

	for i := 0; i < len(tokens); i++ {
		next := func() string {
			if i+1 < len(tokens) {
				i++
				return tokens[i]
			}
			return ""
		}

		switch tokens[i] {
		case "machine":
			flush()
			current = NetrcEntry{Machine: next()}
		case "default":
			flush()
			current = NetrcEntry{Machine: "default"}
		case "login":
			current.Login = next()
		case "password":
			current.Password = next()
		case "account":
			current.Account = next()
		}
	}
	flush()

	return entries, nil
}

// findNetrcPath honors the NETRC environment variable, then ~/.netrc.
func findNetrcPath() string {
	if netrcPath := os.Getenv("NETRC"); netrcPath != "" {
		return netrcPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".netrc")
}

// loadNetrcCredentials looks up credentials for a site, matching the exact
// host, the host without port, then the default entry.
func loadNetrcCredentials(site string) (login, password string, err error) {
	netrcPath := findNetrcPath()
	if netrcPath == "" {
		return "", "", nil
	}

	entries, err := parseNetrc(netrcPath)
	if err != nil {
		return "", "", err
	}
	if len(entries) == 0 {
		return "", "", nil
	}

	hostname := site
	if parsed, err := url.Parse(site); err == nil && parsed.Host != "" {
		hostname = parsed.Host
	}

	if entry, ok := entries[hostname]; ok {
		return entry.Login, entry.Password, nil
	}
	if host := strings.Split(hostname, ":")[0]; host != hostname {
		if entry, ok := entries[host]; ok {
			return entry.Login, entry.Password, nil
		}
	}
	if entry, ok := entries["default"]; ok {
		return entry.Login, entry.Password, nil
	}

	return "", "", nil
}

// applyNetrcDefaults fills in missing email/api_token from .netrc. Explicit
// config or environment credentials win.
func (c *Config) applyNetrcDefaults() error {
	auth := &c.Confluence.Auth
	if c.Confluence.Site == "" || auth.Email != "" || auth.APIToken != "" || auth.OAuthToken != "" {
		return nil
	}

	login, password, err := loadNetrcCredentials(c.Confluence.Site)
	if err != nil {
		return fmt.Errorf("config: load netrc: %w", err)
	}
	if login != "" && password != "" {
		auth.Email = login
		auth.APIToken = password
	}
	return nil
}
