package provision

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayops/node-provisioner/interfaces"
)

const testCert = `-----BEGIN CERTIFICATE-----
MIIBszCCARygAwIBAgIUJx$pecial/chars+and=padding
MIIBszCCARygAwIBAgIUJxQQQQQQQQQQQQQQQQQQQQQQQQQQ
-----END CERTIFICATE-----
`

func TestBuildScriptDeterministic(t *testing.T) {
	ports := interfaces.PortPair{ServicePort: 8443, APIPort: 8880}

	first := BuildScript(testCert, ports)
	second := BuildScript(testCert, ports)
	assert.Equal(t, first, second, "identical inputs must yield byte-identical output")

	other := BuildScript(testCert, interfaces.PortPair{ServicePort: 9443, APIPort: 9880})
	assert.NotEqual(t, first, other)
}

func TestBuildScriptEmbedsCertificateVerbatim(t *testing.T) {
	ports := interfaces.PortPair{ServicePort: 8443, APIPort: 8880}
	script := BuildScript(testCert, ports)

	// The certificate body must round-trip unmodified through the heredoc.
	want := strings.TrimRight(testCert, "\n")
	require.Contains(t, script, "<< 'CERTEOF'\n"+want+"\nCERTEOF\n")
}

func TestBuildScriptContents(t *testing.T) {
	ports := interfaces.PortPair{ServicePort: 8443, APIPort: 8880}
	script := BuildScript(testCert, ports)

	assert.True(t, strings.HasPrefix(script, "#!/bin/bash\nset -e\n"))
	assert.Contains(t, script, "SERVICE_PORT: 8443")
	assert.Contains(t, script, "XRAY_API_PORT: 8880")
	assert.Contains(t, script, CertificatePath)
	assert.Contains(t, script, "curl -fsSL https://get.docker.com | sh")
	assert.Contains(t, script, "docker compose up -d")

	// Steps must appear in provisioning order.
	order := []string{
		"apt update",
		"apt install",
		"get.docker.com",
		"git clone",
		"CERTEOF",
		"docker-compose.yml",
		"docker compose up",
	}
	last := -1
	for _, step := range order {
		idx := strings.Index(script, step)
		require.GreaterOrEqual(t, idx, 0, "missing step %q", step)
		assert.Greater(t, idx, last, "step %q out of order", step)
		last = idx
	}
}
