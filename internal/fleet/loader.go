// Package fleet loads the target inventory from the two discovery sources in
// the field: a Prometheus-style file_sd JSON export and a lognavigator XML
// access config. Both formats are owned by other teams; the loaders are
// tolerant of entries they do not understand.
package fleet

import (
	"encoding/json"
	"encoding/xml"
	"net/url"
	"os"
	"strings"

	"fleetops/internal/core/domain"
	"fleetops/internal/platform/errors"
)

// sdEntry is one entry of the file_sd JSON export:
// [{"targets":["10.0.0.1:9100"],"labels":{"hostname":"cp-01","group":"OSM_CP"}}]
type sdEntry struct {
	Targets []string          `json:"targets"`
	Labels  map[string]string `json:"labels"`
}

// LoadServiceDiscovery parses a file_sd JSON document into targets.
//
// Entries belonging to the streaming relay fleet (SRS) are skipped: those
// hosts must never receive fleet operations. Relay hosts are recognized by
// their group label or by the hostname prefix; group labels are maintained by
// hand and have lagged behind renamed hosts before.
func LoadServiceDiscovery(data []byte) ([]domain.Target, error) {
	var entries []sdEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidResponse, "service discovery JSON: %v", err)
	}

	var targets []domain.Target
	for _, entry := range entries {
		group := entry.Labels["group"]
		hostname := entry.Labels["hostname"]
		if isRelayHost(group, hostname) {
			continue
		}

		for _, raw := range entry.Targets {
			address := strings.TrimSpace(raw)
			if address == "" {
				continue
			}
			// The exporter port is not the management port; keep the host only.
			if host, _, found := strings.Cut(address, ":"); found {
				address = host
			}
			targets = append(targets, domain.NewTarget(address, hostname, group))
		}
	}

	return targets, nil
}

// isRelayHost reports whether an inventory entry belongs to the streaming
// relay fleet. The hostname check mirrors how relay operators name their
// hosts: the label is the segment before the first dash.
func isRelayHost(group, hostname string) bool {
	if strings.Contains(strings.ToUpper(group), "SRS") {
		return true
	}
	label, _, _ := strings.Cut(hostname, "-")
	return strings.EqualFold(label, "SRS")
}

// LoadServiceDiscoveryFile reads and parses a file_sd JSON file.
func LoadServiceDiscoveryFile(path string) ([]domain.Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "read service discovery file: %v", err)
	}
	return LoadServiceDiscovery(data)
}

// lognavigatorConfig mirrors the lognavigator XML layout:
//
//	<lognavigator-config>
//	  <log-access-config id="cp-01" type="ssh" url="pi@10.0.0.1:/home/pi/osm"
//	                     display-group="OSM_CP"/>
//	</lognavigator-config>
type lognavigatorConfig struct {
	XMLName xml.Name          `xml:"lognavigator-config"`
	Entries []logAccessConfig `xml:"log-access-config"`
}

type logAccessConfig struct {
	ID           string `xml:"id,attr"`
	Type         string `xml:"type,attr"`
	URL          string `xml:"url,attr"`
	DisplayGroup string `xml:"display-group,attr"`
}

// LoadLogAccessConfig parses a lognavigator XML document into targets,
// keeping only entries whose display group is in allowedGroups. An empty
// allowedGroups list keeps everything.
func LoadLogAccessConfig(data []byte, allowedGroups []string) ([]domain.Target, error) {
	var cfg lognavigatorConfig
	if err := xml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidResponse, "lognavigator XML: %v", err)
	}

	allowed := make(map[string]bool, len(allowedGroups))
	for _, g := range allowedGroups {
		allowed[strings.ToUpper(strings.TrimSpace(g))] = true
	}

	var targets []domain.Target
	for _, entry := range cfg.Entries {
		if len(allowed) > 0 && !allowed[strings.ToUpper(entry.DisplayGroup)] {
			continue
		}
		address := hostFromAccessURL(entry.URL)
		if address == "" {
			continue
		}
		t := domain.NewTarget(address, entry.ID, entry.DisplayGroup)
		t.ID = entry.ID
		targets = append(targets, t)
	}

	return targets, nil
}

// LoadLogAccessConfigFile reads and parses a lognavigator XML file.
func LoadLogAccessConfigFile(path string, allowedGroups []string) ([]domain.Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "read lognavigator file: %v", err)
	}
	return LoadLogAccessConfig(data, allowedGroups)
}

// hostFromAccessURL extracts the host from a lognavigator access URL.
// Two shapes exist in the field: "user@host:/path" (ssh) and full http URLs.
func hostFromAccessURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		return u.Hostname()
	}

	if _, rest, found := strings.Cut(raw, "@"); found {
		raw = rest
	}
	if host, _, found := strings.Cut(raw, ":"); found {
		return host
	}
	return raw
}

// Merge combines targets from several sources, deduplicating by Key. The
// first occurrence wins; later sources only fill gaps.
func Merge(lists ...[]domain.Target) []domain.Target {
	seen := make(map[string]bool)
	var merged []domain.Target
	for _, list := range lists {
		for _, t := range list {
			if seen[t.Key()] {
				continue
			}
			seen[t.Key()] = true
			merged = append(merged, t)
		}
	}
	return merged
}
