package defs

// Common labels for logging
const (
	LabelComponent = "component"
	LabelName      = "name"
	LabelPart      = "part"

	LabelPipeline = "pipeline"
	LabelPlugin   = "plugin"
	LabelPeer     = "peer"
	LabelReason   = "reason"
	LabelStatus   = "status"
)

// Reasons of forwarding failures, used in logging and metric labels
const (
	ReasonNetwork  = "network"
	ReasonTimeout  = "timeout"
	ReasonStatus   = "status"
	ReasonEncoding = "encoding"
	ReasonOther    = "other"
)

// ForwardPath is the HTTP path of inbound record batches from peers
const ForwardPath = "/event/forward"

// Discovery types
const (
	DiscoveryLocal     = "local"
	DiscoveryStatic    = "static"
	DiscoveryDNS       = "dns"
	DiscoveryZookeeper = "zookeeper"
	DiscoveryEtcd      = "etcd"
)
