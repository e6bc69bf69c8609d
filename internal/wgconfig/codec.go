package wgconfig

import (
	"strings"

	"github.com/wirevault/backend/internal/models"
)

// DefaultPersistentKeepalive is emitted when neither the imported source
// nor the server defaults carry a keepalive value.
const DefaultPersistentKeepalive = "25"

// MalformedConfigError reports which required fields were absent from a
// parsed config. Required fields are PrivateKey, Address and Endpoint.
type MalformedConfigError struct {
	Missing []string
}

func (e *MalformedConfigError) Error() string {
	return "malformed config: missing required fields: " + strings.Join(e.Missing, ", ")
}

// ServerDefaults holds the server-wide fallback values used when
// generating output for a credential whose imported source did not carry
// the corresponding optional field.
type ServerDefaults struct {
	PublicKey  string
	DNSServers string
	AllowedIPs string
	MTU        string
}

// Parse decodes WireGuard .conf text into a credential record. When
// endpointOverride is non-empty it takes the place of the Endpoint line,
// which then no longer needs to be present in the text. Optional fields
// are captured verbatim when present and left nil otherwise; nil controls
// whether the field is re-emitted by Generate.
func Parse(text string, endpointOverride string) (*models.Credential, error) {
	fields := parseSections(text)

	cred := &models.Credential{}

	if v, ok := fields["privatekey"]; ok {
		cred.PrivateKey = v
	}

	if v, ok := fields["address"]; ok {
		addrs := splitAddresses(v)
		// Comma-join with no spaces to stay hash-stable on re-import
		cred.InterfaceIP = strings.Join(addrs, ",")
		cred.IPv4Address, cred.IPv6Local, cred.IPv6Global = classifyAddresses(addrs)
	}

	if endpointOverride != "" {
		cred.Endpoint = endpointOverride
	} else if v, ok := fields["endpoint"]; ok {
		cred.Endpoint = v
	}

	var missing []string
	if cred.PrivateKey == "" {
		missing = append(missing, "PrivateKey")
	}
	if cred.InterfaceIP == "" {
		missing = append(missing, "Address")
	}
	if cred.Endpoint == "" {
		missing = append(missing, "Endpoint")
	}
	if len(missing) > 0 {
		return nil, &MalformedConfigError{Missing: missing}
	}

	cred.PresharedKey = optional(fields, "presharedkey")
	cred.PublicKey = optional(fields, "publickey")
	cred.DNS = optional(fields, "dns")
	cred.MTU = optional(fields, "mtu")
	cred.AllowedIPs = optional(fields, "allowedips")
	cred.PersistentKeepalive = optional(fields, "persistentkeepalive")
	cred.RoutingTable = optional(fields, "table")
	cred.SaveConfig = optional(fields, "saveconfig")
	cred.FwMark = optional(fields, "fwmark")

	return cred, nil
}

// Generate reconstructs .conf text from a credential, [Interface] first
// then [Peer]. Optional lines appear only when a value resolves: the
// credential's own preserved value wins, then the server defaults when
// supplied. Passing nil defaults makes Generate(Parse(x)) byte-stable.
func Generate(cred *models.Credential, defaults *ServerDefaults) string {
	var b strings.Builder

	emit := func(key, value string) {
		b.WriteString(key)
		b.WriteString(" = ")
		b.WriteString(value)
		b.WriteString("\n")
	}
	resolve := func(own *string, fallback string) string {
		if own != nil && *own != "" {
			return *own
		}
		if defaults != nil {
			return fallback
		}
		return ""
	}

	b.WriteString("[Interface]\n")
	emit("PrivateKey", cred.PrivateKey)
	emit("Address", cred.InterfaceIP)

	var dns, mtu string
	if defaults != nil {
		dns = defaults.DNSServers
		mtu = defaults.MTU
	}
	if v := resolve(cred.DNS, dns); v != "" {
		emit("DNS", v)
	}
	if v := resolve(cred.MTU, mtu); v != "" {
		emit("MTU", v)
	}
	if v := resolve(cred.RoutingTable, ""); v != "" {
		emit("Table", v)
	}
	if v := resolve(cred.SaveConfig, ""); v != "" {
		emit("SaveConfig", v)
	}
	if v := resolve(cred.FwMark, ""); v != "" {
		emit("FwMark", v)
	}

	b.WriteString("\n[Peer]\n")

	var pub, allowed string
	if defaults != nil {
		pub = defaults.PublicKey
		allowed = defaults.AllowedIPs
	}
	if v := resolve(cred.PublicKey, pub); v != "" {
		emit("PublicKey", v)
	}
	if cred.PresharedKey != nil && *cred.PresharedKey != "" {
		emit("PresharedKey", *cred.PresharedKey)
	}
	emit("Endpoint", cred.Endpoint)
	if v := resolve(cred.AllowedIPs, allowed); v != "" {
		emit("AllowedIPs", v)
	}

	keepalive := DefaultPersistentKeepalive
	if cred.PersistentKeepalive != nil && *cred.PersistentKeepalive != "" {
		keepalive = *cred.PersistentKeepalive
	}
	emit("PersistentKeepalive", keepalive)

	return b.String()
}

// parseSections flattens the INI-style config into a key/value map.
// Section headers are consumed but key names do not repeat between the
// [Interface] and [Peer] sections, so a flat map is unambiguous. Keys are
// lowercased; unrecognized keys are carried harmlessly and ignored.
func parseSections(text string) map[string]string {
	fields := make(map[string]string)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		if _, exists := fields[key]; !exists {
			fields[key] = value
		}
	}

	return fields
}

func splitAddresses(v string) []string {
	parts := strings.Split(v, ",")
	addrs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			addrs = append(addrs, p)
		}
	}
	return addrs
}

// classifyAddresses derives the typed addresses from the CIDR list: the
// first dotted-quad is the IPv4 address, fd00:/fe80: prefixes are local
// IPv6, any other colon form is global IPv6.
func classifyAddresses(addrs []string) (ipv4, ipv6Local, ipv6Global string) {
	for _, cidr := range addrs {
		addr := cidr
		if i := strings.Index(addr, "/"); i >= 0 {
			addr = addr[:i]
		}

		switch {
		case !strings.Contains(addr, ":") && strings.Count(addr, ".") == 3:
			if ipv4 == "" {
				ipv4 = addr
			}
		case hasLocalPrefix(addr):
			if ipv6Local == "" {
				ipv6Local = addr
			}
		case strings.Contains(addr, ":"):
			if ipv6Global == "" {
				ipv6Global = addr
			}
		}
	}
	return
}

func hasLocalPrefix(addr string) bool {
	lower := strings.ToLower(addr)
	return strings.HasPrefix(lower, "fd00:") || strings.HasPrefix(lower, "fe80:")
}

func optional(fields map[string]string, key string) *string {
	if v, ok := fields[key]; ok {
		return &v
	}
	return nil
}
