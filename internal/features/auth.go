package features

import (
	"strings"
)

var authMechanisms = []string{"spf", "dkim", "dmarc"}

// AuthResultsFromHeaders builds the mechanism -> result map from the
// Authentication-Results and Received-SPF headers of a message. The first
// verdict seen for a mechanism wins, matching the topmost (most trusted)
// header added by the receiving server.
func AuthResultsFromHeaders(authResults []string, receivedSPF []string) map[string]string {
	results := make(map[string]string, len(authMechanisms))

	for _, header := range authResults {
		for mech, verdict := range parseAuthenticationResults(header) {
			if _, seen := results[mech]; !seen {
				results[mech] = verdict
			}
		}
	}

	if _, seen := results["spf"]; !seen {
		for _, header := range receivedSPF {
			fields := strings.Fields(strings.TrimSpace(header))
			if len(fields) > 0 {
				results["spf"] = strings.ToLower(fields[0])
				break
			}
		}
	}

	return results
}

// parseAuthenticationResults extracts "mech=result" pairs from one
// Authentication-Results header value (RFC 8601).
func parseAuthenticationResults(header string) map[string]string {
	out := make(map[string]string)

	// The first element is the authserv-id; results follow separated by ';'.
	parts := strings.Split(header, ";")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		for _, mech := range authMechanisms {
			prefix := mech + "="
			if len(part) < len(prefix) || !strings.EqualFold(part[:len(prefix)], prefix) {
				continue
			}
			verdict := part[len(prefix):]
			if i := strings.IndexAny(verdict, " \t("); i >= 0 {
				verdict = verdict[:i]
			}
			if _, seen := out[mech]; !seen && verdict != "" {
				out[mech] = strings.ToLower(verdict)
			}
		}
	}

	return out
}
