package models

import (
	"errors"
	"fmt"
)

// Protocol is the closed set of proxy protocols the panel can host.
// Anything outside this set is rejected at parse time instead of being
// carried around as a raw string.
type Protocol string

const (
	ProtocolVLESS       Protocol = "vless"
	ProtocolVMess       Protocol = "vmess"
	ProtocolTrojan      Protocol = "trojan"
	ProtocolShadowsocks Protocol = "shadowsocks"
)

// ErrUnsupportedProtocol is returned for protocols outside the closed set.
var ErrUnsupportedProtocol = errors.New("unsupported protocol")

// ParseProtocol validates a protocol string coming from a plan or an API body.
func ParseProtocol(s string) (Protocol, error) {
	switch Protocol(s) {
	case ProtocolVLESS, ProtocolVMess, ProtocolTrojan, ProtocolShadowsocks:
		return Protocol(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProtocol, s)
	}
}

// Security constants for the stream layer of a client account.
const (
	SecurityTLS     = "tls"
	SecurityReality = "reality"
	SecurityNone    = "none"
)

// OutputFormat selects the rendering of a client account.
type OutputFormat string

const (
	FormatShareLink OutputFormat = "share_link"
	FormatJSON      OutputFormat = "json"
	FormatClash     OutputFormat = "clash"
)

// DefaultSSMethod is applied when a plan does not pin a Shadowsocks cipher.
const DefaultSSMethod = "aes-256-gcm"
