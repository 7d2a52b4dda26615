package provision

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/relayops/node-provisioner/interfaces"
	"github.com/relayops/node-provisioner/remote"
)

// Failure reasons surfaced to the operator. Step failures additionally carry
// the remote stderr.
const (
	errConnectFailed  = "Failed to connect to server"
	errNoCertificate  = "Certificate not found in environment"
	stepCreateScript  = "Failed to create script"
	stepSetPermission = "Failed to set permissions"
	stepSetup         = "Setup failed"
)

// DialFunc opens a remote session. Swapped out in tests.
type DialFunc func(ctx context.Context, host, user, password string) (remote.Runner, error)

// NodeProvisioner installs and starts the relay agent on a remote host over
// SSH. It composes the script builder with a remote session: connect, upload,
// execute, clean up, disconnect.
type NodeProvisioner struct {
	certificate string
	user        string
	log         *slog.Logger
	dial        DialFunc

	// Progress, if set, receives a short description of each step as it
	// starts. Provisioning blocks for the duration of package installation
	// and image pull, so callers report progress incrementally instead of
	// going silent.
	Progress func(stage string)
}

// NewNodeProvisioner creates a provisioner that connects as user and injects
// certificate into the generated script. The certificate is an opaque
// pre-existing credential; an empty value fails every setup attempt.
func NewNodeProvisioner(certificate, user string, log *slog.Logger) *NodeProvisioner {
	return &NodeProvisioner{
		certificate: certificate,
		user:        user,
		log:         log,
		dial: func(ctx context.Context, host, user, password string) (remote.Runner, error) {
			return remote.Dial(ctx, host, user, password)
		},
	}
}

// SetupNode provisions the relay agent on the target host and returns a
// structured result. It never returns an error: every failure mode is mapped
// to a distinct reason in the result. The remote session is closed on every
// exit path.
func (p *NodeProvisioner) SetupNode(ctx context.Context, creds interfaces.NodeCredentials, ports interfaces.PortPair) interfaces.ProvisioningResult {
	log := p.log.With("host", creds.Host, "servicePort", ports.ServicePort, "apiPort", ports.APIPort)

	p.report("Connecting to the server...")
	session, err := p.dial(ctx, creds.Host, p.user, creds.Password)
	if err != nil {
		log.Error("Remote session could not be established", "err", err)
		return failure(errConnectFailed)
	}
	defer session.Close()

	if p.certificate == "" {
		log.Error("Client certificate is not configured")
		return failure(errNoCertificate)
	}

	script := BuildScript(p.certificate, ports)

	// Two-phase transfer: ship the script as an opaque blob over stdin, then
	// invoke it by path. The script content never touches a command line.
	p.report("Uploading setup script...")
	res, err := session.RunWithInput(ctx, "cat > "+RemoteScriptPath, strings.NewReader(script))
	if stepFailed(res, err) {
		log.Error("Script upload failed", "stderr", res.Stderr, "err", err)
		return failure(stepError(stepCreateScript, res, err))
	}

	res, err = session.Run(ctx, "sudo chmod 755 "+RemoteScriptPath)
	if stepFailed(res, err) {
		log.Error("Script chmod failed", "stderr", res.Stderr, "err", err)
		return failure(stepError(stepSetPermission, res, err))
	}

	p.report("Configuring the server...")
	res, err = session.Run(ctx, "sudo bash "+RemoteScriptPath)
	if stepFailed(res, err) {
		log.Error("Setup script failed", "stderr", res.Stderr, "err", err)
		return failure(stepError(stepSetup, res, err))
	}

	// Best effort; a leftover script does not fail the provisioning.
	if res, err := session.Run(ctx, "sudo rm -f "+RemoteScriptPath); stepFailed(res, err) {
		log.Warn("Could not remove remote setup script", "stderr", res.Stderr, "err", err)
	}

	log.Info("Node setup completed")
	return interfaces.ProvisioningResult{
		Success:     true,
		Host:        creds.Host,
		ServicePort: ports.ServicePort,
		APIPort:     ports.APIPort,
	}
}

func (p *NodeProvisioner) report(stage string) {
	if p.Progress != nil {
		p.Progress(stage)
	}
}

func stepFailed(res remote.Result, err error) bool {
	return err != nil || res.Failed()
}

func stepError(step string, res remote.Result, err error) string {
	detail := strings.TrimSpace(res.Stderr)
	if detail == "" && err != nil {
		detail = err.Error()
	}
	return fmt.Sprintf("%s: %s", step, detail)
}

func failure(reason string) interfaces.ProvisioningResult {
	return interfaces.ProvisioningResult{Success: false, Error: reason}
}
