package models

import "fmt"

// PlanDescriptor is the purchase-time snapshot of what one unit of an order
// line buys. It is copied onto the order when the order is created and never
// mutated afterwards, so later plan edits cannot drift limits under a paid
// order.
type PlanDescriptor struct {
	Protocol     Protocol `json:"protocol"`
	TrafficLimit int64    `json:"traffic_limit"` // bytes per unit, 0 = unlimited
	LimitIP      int      `json:"limit_ip"`      // concurrent IPs per unit, 0 = unlimited
	DurationDays int      `json:"duration_days"`

	// Connection defaults stamped onto the mirror row
	ServerHost string `json:"server_host"`
	ServerPort int    `json:"server_port"`
	SNI        string `json:"sni,omitempty"`
	HeaderType string `json:"header_type,omitempty"`
	Security   string `json:"security,omitempty"`
	Flow       string `json:"flow,omitempty"`

	// PreferredInboundID points at a local inbound row; nil means the
	// selector is free to choose.
	PreferredInboundID *string `json:"preferred_inbound_id,omitempty"`

	// SSMethod is only meaningful for shadowsocks plans. Empty falls back
	// to DefaultSSMethod at account creation.
	SSMethod string `json:"ss_method,omitempty"`
}

// NewPlanDescriptor validates the fields a snapshot must carry.
func NewPlanDescriptor(protocol string, trafficLimit int64, durationDays int, serverHost string, serverPort int) (*PlanDescriptor, error) {
	p, err := ParseProtocol(protocol)
	if err != nil {
		return nil, err
	}
	if durationDays <= 0 {
		return nil, fmt.Errorf("plan duration must be positive, got %d", durationDays)
	}
	if serverHost == "" {
		return nil, fmt.Errorf("plan server host is required")
	}
	if serverPort <= 0 || serverPort > 65535 {
		return nil, fmt.Errorf("plan server port %d out of range", serverPort)
	}
	return &PlanDescriptor{
		Protocol:     p,
		TrafficLimit: trafficLimit,
		DurationDays: durationDays,
		ServerHost:   serverHost,
		ServerPort:   serverPort,
		Security:     SecurityNone,
		HeaderType:   "none",
	}, nil
}
