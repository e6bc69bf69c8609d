package wgconfig

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `[Interface]
PrivateKey = cGxhY2Vob2xkZXItcHJpdmF0ZS1rZXk=
Address = 10.8.0.2/24, fd00:8::2/64, 2001:db8::2/64
DNS = 1.1.1.1, 8.8.8.8
MTU = 1420

[Peer]
PublicKey = cGxhY2Vob2xkZXItcHVibGljLWtleQ==
PresharedKey = cGxhY2Vob2xkZXItcHNr
Endpoint = vpn.example.com:51820
AllowedIPs = 0.0.0.0/0, ::/0
PersistentKeepalive = 25
`

func TestParseFullConfig(t *testing.T) {
	cred, err := Parse(sampleConfig, "")
	require.NoError(t, err)

	assert.Equal(t, "cGxhY2Vob2xkZXItcHJpdmF0ZS1rZXk=", cred.PrivateKey)
	assert.Equal(t, "10.8.0.2/24,fd00:8::2/64,2001:db8::2/64", cred.InterfaceIP)
	assert.Equal(t, "10.8.0.2", cred.IPv4Address)
	assert.Equal(t, "fd00:8::2", cred.IPv6Local)
	assert.Equal(t, "2001:db8::2", cred.IPv6Global)
	assert.Equal(t, "vpn.example.com:51820", cred.Endpoint)

	require.NotNil(t, cred.DNS)
	assert.Equal(t, "1.1.1.1, 8.8.8.8", *cred.DNS)
	require.NotNil(t, cred.MTU)
	assert.Equal(t, "1420", *cred.MTU)
	require.NotNil(t, cred.PresharedKey)
	require.NotNil(t, cred.PublicKey)
	require.NotNil(t, cred.AllowedIPs)
	require.NotNil(t, cred.PersistentKeepalive)
	assert.Equal(t, "25", *cred.PersistentKeepalive)

	// Fields that were absent must stay absent
	assert.Nil(t, cred.RoutingTable)
	assert.Nil(t, cred.SaveConfig)
	assert.Nil(t, cred.FwMark)
}

func TestParseMissingFields(t *testing.T) {
	_, err := Parse("[Interface]\nDNS = 1.1.1.1\n", "")
	require.Error(t, err)

	var malformed *MalformedConfigError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, []string{"PrivateKey", "Address", "Endpoint"}, malformed.Missing)
	assert.Equal(t, "malformed config: missing required fields: PrivateKey, Address, Endpoint", err.Error())
}

func TestParseEndpointOverride(t *testing.T) {
	text := "[Interface]\nPrivateKey = abc\nAddress = 10.0.0.5/32\n\n[Peer]\nEndpoint = old.example.com:51820\n"

	cred, err := Parse(text, "new.example.com:443")
	require.NoError(t, err)
	assert.Equal(t, "new.example.com:443", cred.Endpoint)

	// Override also satisfies configs with no Endpoint line at all
	noEndpoint := "[Interface]\nPrivateKey = abc\nAddress = 10.0.0.5/32\n"
	cred, err = Parse(noEndpoint, "new.example.com:443")
	require.NoError(t, err)
	assert.Equal(t, "new.example.com:443", cred.Endpoint)

	_, err = Parse(noEndpoint, "")
	require.Error(t, err)
}

func TestParseIgnoresCommentsAndEmptyValues(t *testing.T) {
	text := `# header comment
[Interface]
; another comment
PrivateKey = abc
Address = 10.0.0.5/32
DNS =

[Peer]
Endpoint = vpn.example.com:51820
`
	cred, err := Parse(text, "")
	require.NoError(t, err)
	assert.Nil(t, cred.DNS, "empty value should be treated as unset")
}

func TestParseFirstOccurrenceWins(t *testing.T) {
	text := "[Interface]\nPrivateKey = first\nPrivateKey = second\nAddress = 10.0.0.5/32\n\n[Peer]\nEndpoint = vpn.example.com:51820\n"
	cred, err := Parse(text, "")
	require.NoError(t, err)
	assert.Equal(t, "first", cred.PrivateKey)
}

func TestGenerateRoundTripStable(t *testing.T) {
	cred, err := Parse(sampleConfig, "")
	require.NoError(t, err)

	out := Generate(cred, nil)

	reparsed, err := Parse(out, "")
	require.NoError(t, err)
	assert.Equal(t, out, Generate(reparsed, nil))
}

func TestGenerateMinimalConfig(t *testing.T) {
	text := "[Interface]\nPrivateKey = abc\nAddress = 10.0.0.5/32\n\n[Peer]\nEndpoint = vpn.example.com:51820\n"
	cred, err := Parse(text, "")
	require.NoError(t, err)

	out := Generate(cred, nil)
	expected := "[Interface]\n" +
		"PrivateKey = abc\n" +
		"Address = 10.0.0.5/32\n" +
		"\n[Peer]\n" +
		"Endpoint = vpn.example.com:51820\n" +
		"PersistentKeepalive = 25\n"
	assert.Equal(t, expected, out)
}

func TestGenerateServerDefaults(t *testing.T) {
	text := "[Interface]\nPrivateKey = abc\nAddress = 10.0.0.5/32\nDNS = 9.9.9.9\n\n[Peer]\nEndpoint = vpn.example.com:51820\n"
	cred, err := Parse(text, "")
	require.NoError(t, err)

	defaults := &ServerDefaults{
		PublicKey:  "server-pub",
		DNSServers: "1.1.1.1",
		AllowedIPs: "0.0.0.0/0",
		MTU:        "1380",
	}
	out := Generate(cred, defaults)

	// Preserved value wins over the default
	assert.Contains(t, out, "DNS = 9.9.9.9\n")
	assert.NotContains(t, out, "1.1.1.1")
	// Absent fields fall back to the defaults
	assert.Contains(t, out, "MTU = 1380\n")
	assert.Contains(t, out, "PublicKey = server-pub\n")
	assert.Contains(t, out, "AllowedIPs = 0.0.0.0/0\n")
}

func TestGenerateKeepaliveDefault(t *testing.T) {
	text := "[Interface]\nPrivateKey = abc\nAddress = 10.0.0.5/32\n\n[Peer]\nEndpoint = vpn.example.com:51820\nPersistentKeepalive = 15\n"
	cred, err := Parse(text, "")
	require.NoError(t, err)
	assert.Contains(t, Generate(cred, nil), "PersistentKeepalive = 15\n")

	cred.PersistentKeepalive = nil
	assert.Contains(t, Generate(cred, nil), "PersistentKeepalive = 25\n")
}

func TestClassifyAddresses(t *testing.T) {
	ipv4, local, global := classifyAddresses([]string{"2001:db8::7/64", "fe80::1/64", "192.168.4.10/24"})
	assert.Equal(t, "192.168.4.10", ipv4)
	assert.Equal(t, "fe80::1", local)
	assert.Equal(t, "2001:db8::7", global)

	ipv4, local, global = classifyAddresses([]string{"10.0.0.1/32", "10.0.0.2/32"})
	assert.Equal(t, "10.0.0.1", ipv4, "first IPv4 wins")
	assert.Empty(t, local)
	assert.Empty(t, global)
}
