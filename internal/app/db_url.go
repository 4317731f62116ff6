package app

import (
	"net/url"
	"strings"
)

const rdsHostSuffix = ".rds.amazonaws.com"

func normalizeDBURL(raw string, disablePreparedBinaryResult bool) string {
	raw = ensureRDSSSLMode(raw)
	if !disablePreparedBinaryResult {
		return raw
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil || parsed.Scheme == "" {
		return raw
	}

	query := parsed.Query()
	if query.Get("disable_prepared_binary_result") == "" {
		query.Set("disable_prepared_binary_result", "yes")
		parsed.RawQuery = query.Encode()
	}

	return parsed.String()
}

// ensureRDSSSLMode requires TLS for RDS hosts unless sslmode is set explicitly.
func ensureRDSSSLMode(raw string) string {
	trimmed := strings.TrimSpace(raw)
	parsed, err := url.Parse(trimmed)
	if err == nil && parsed != nil && parsed.Scheme != "" {
		if !strings.HasSuffix(strings.ToLower(parsed.Hostname()), rdsHostSuffix) {
			return raw
		}
		query := parsed.Query()
		if query.Get("sslmode") != "" {
			return raw
		}
		query.Set("sslmode", "require")
		parsed.RawQuery = query.Encode()
		return parsed.String()
	}

	isRDS := false
	for _, token := range strings.Fields(trimmed) {
		if strings.HasPrefix(token, "sslmode=") {
			return raw
		}
		if strings.HasPrefix(token, "host=") {
			host := strings.Trim(strings.TrimPrefix(token, "host="), `"'`)
			isRDS = strings.HasSuffix(strings.ToLower(host), rdsHostSuffix)
		}
	}
	if !isRDS {
		return raw
	}
	return trimmed + " sslmode=require"
}

func dbNameFromURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	parsed, err := url.Parse(trimmed)
	if err == nil && parsed != nil && parsed.Scheme != "" {
		name := strings.TrimSpace(strings.TrimPrefix(parsed.Path, "/"))
		if name != "" {
			return name
		}
	}

	for _, token := range strings.Fields(trimmed) {
		if !strings.HasPrefix(token, "dbname=") {
			continue
		}
		name := strings.TrimSpace(strings.TrimPrefix(token, "dbname="))
		name = strings.Trim(name, `"'`)
		if name != "" {
			return name
		}
	}

	return ""
}
