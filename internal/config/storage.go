package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// PostgresConnectionString builds a key=value DSN for pgx.
func (c *Config) PostgresConnectionString() string {
	parts := []string{
		fmt.Sprintf("host=%s", c.PostgresHost),
		fmt.Sprintf("port=%d", c.PostgresPort),
		fmt.Sprintf("user=%s", c.PostgresUser),
		fmt.Sprintf("dbname=%s", c.PostgresDBName),
		fmt.Sprintf("sslmode=%s", c.PostgresSSLMode),
	}
	if c.PostgresPassword != "" {
		parts = append(parts, fmt.Sprintf("password=%s", quoteDSNValue(c.PostgresPassword)))
	}
	return strings.Join(parts, " ")
}

// PostgresURL builds a postgres:// URL, required by golang-migrate.
func (c *Config) PostgresURL() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.PostgresHost, strconv.Itoa(c.PostgresPort)),
		Path:   "/" + c.PostgresDBName,
	}
	if c.PostgresPassword != "" {
		u.User = url.UserPassword(c.PostgresUser, c.PostgresPassword)
	} else {
		u.User = url.User(c.PostgresUser)
	}
	q := url.Values{}
	q.Set("sslmode", c.PostgresSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// parseDatabaseURL overrides the Postgres fields from DATABASE_URL when set.
// A malformed URL is an error rather than a silent fallback.
func (c *Config) parseDatabaseURL() error {
	raw := os.Getenv("DATABASE_URL")
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parsing DATABASE_URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("parsing DATABASE_URL: unsupported scheme %q", u.Scheme)
	}

	if host := u.Hostname(); host != "" {
		c.PostgresHost = host
	}
	if port := u.Port(); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("parsing DATABASE_URL port: %w", err)
		}
		c.PostgresPort = p
	}
	if u.User != nil {
		if name := u.User.Username(); name != "" {
			c.PostgresUser = name
		}
		if pw, ok := u.User.Password(); ok {
			c.PostgresPassword = pw
		}
	}
	if db := strings.TrimPrefix(u.Path, "/"); db != "" {
		c.PostgresDBName = db
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.PostgresSSLMode = mode
	}
	return nil
}

// quoteDSNValue quotes a DSN value if it contains spaces or quotes.
func quoteDSNValue(value string) string {
	if !strings.ContainsAny(value, " '\\") {
		return value
	}
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)
	return "'" + escaped + "'"
}
