package common

// Version is set at build time with -ldflags "-X github.com/relayops/node-provisioner/common.Version=v1.2.3".
var Version = "dev"

// PackageName tags metrics and logs emitted by this service.
const PackageName = "node-provisioner"
