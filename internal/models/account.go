package models

import "time"

// ClientAccountMirror is the local read replica of a remote panel account.
// Created by the state machine on successful provisioning; traffic counters
// are overwritten by the sync job and nothing else touches them.
type ClientAccountMirror struct {
	ID          string
	ProvisionID string
	OrderLineID string
	UserID      string
	SeqIndex    int

	Protocol   Protocol
	ServerHost string
	ServerPort int

	// Stream parameters
	Security   string // tls / reality / none
	SNI        string
	HeaderType string
	Flow       string

	// Secret is a UUID for vless/vmess and a password for trojan/shadowsocks.
	Secret string
	// Method is the shadowsocks cipher; empty for other protocols.
	Method string

	// Email is the remote account key on the panel.
	Email string

	TrafficUp    int64
	TrafficDown  int64
	TrafficTotal int64

	ExpireAt *time.Time
	Enabled  bool
	// Active is cleared when the account is deprovisioned; the row stays
	// for history.
	Active bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
