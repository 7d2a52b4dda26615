// Package provision renders the relay-agent setup script and drives its
// execution on a remote host.
package provision

import (
	"fmt"
	"strings"

	"github.com/relayops/node-provisioner/interfaces"
)

const (
	// RemoteScriptPath is where the rendered script is written on the target
	// host before execution.
	RemoteScriptPath = "/tmp/setup_node.sh"

	// CertificatePath is the fixed location the relay agent reads its client
	// certificate from.
	CertificatePath = "/var/lib/marzban-node/ssl_client_cert.pem"

	agentRepoURL = "https://github.com/Gozargah/Marzban-node"
	agentImage   = "gozargah/marzban-node:latest"
)

const scriptTemplate = `#!/bin/bash
set -e

echo "=== Updating system..."
sudo apt update -y

echo "=== Installing dependencies..."
sudo apt install socat git curl -y

echo "=== Installing Docker..."
curl -fsSL https://get.docker.com | sh

echo "=== Cloning relay agent repository..."
git clone %[1]s || (cd Marzban-node && git pull)
cd Marzban-node

echo "=== Creating certificate directory..."
sudo mkdir -p /var/lib/marzban-node

cat > /tmp/cert.pem << 'CERTEOF'
%[2]s
CERTEOF

sudo mv /tmp/cert.pem %[3]s
sudo chmod 644 %[3]s

cat > docker-compose.yml << 'COMPOSEEOF'
version: '3'
services:
  marzban-node:
    image: %[4]s
    restart: always
    network_mode: host
    volumes:
      - /var/lib/marzban-node:/var/lib/marzban-node
    environment:
      SSL_CLIENT_CERT_FILE: "%[3]s"
      SERVICE_PROTOCOL: rest
      SERVICE_PORT: %[5]d
      XRAY_API_PORT: %[6]d
COMPOSEEOF

echo "=== Starting relay agent with Docker Compose..."
sudo docker compose up -d

echo "[SUCCESS] Node setup completed! Node should be available on port %[5]d"
`

// BuildScript renders the setup script for a node fronted by the given port
// pair. It is a pure function: identical inputs yield byte-identical output.
//
// The certificate is embedded through a quoted heredoc, so its body passes
// through the shell byte-for-byte without interpretation. A trailing newline
// is stripped to keep the heredoc terminator on its own line.
func BuildScript(certificate string, ports interfaces.PortPair) string {
	cert := strings.TrimRight(certificate, "\n")
	return fmt.Sprintf(scriptTemplate,
		agentRepoURL,
		cert,
		CertificatePath,
		agentImage,
		ports.ServicePort,
		ports.APIPort,
	)
}
