package featureflags

var (
	// ReputationLookup consults the external host reputation API for IOCs that
	// the cached reputation database did not match. It is skipped when no API
	// key is configured.
	ReputationLookup = new("ReputationLookup", true)

	// VulnLookup runs `npm audit` against the package manifest to report
	// dependencies with known vulnerabilities.
	VulnLookup = new("VulnLookup", true)

	// DNSCapture records DNS queries made during the execute stage by pointing
	// the sandbox resolver at loopback and capturing port 53 traffic. It grants
	// the execute container CAP_NET_RAW.
	DNSCapture = new("DNSCapture", false)

	// PubSubExtender determines whether the worker uses a real GCP extender
	// for keeping messages alive while a scan is running.
	PubSubExtender = new("PubSubExtender", true)

	// StraceDebugLogging enables verbose logging of strace parsing during
	// dynamic analysis.
	StraceDebugLogging = new("StraceDebugLogging", false)
)
