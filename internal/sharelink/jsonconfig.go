package sharelink

import (
	"encoding/json"
	"fmt"

	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
)

// ClientConfig is a minimal outbound client config: a local socks inbound
// stub plus one outbound pointing at the provisioned account.
type ClientConfig struct {
	Log       LogConfig        `json:"log"`
	Inbounds  []InboundConfig  `json:"inbounds"`
	Outbounds []OutboundConfig `json:"outbounds"`
}

type LogConfig struct {
	Loglevel string `json:"loglevel"`
}

type InboundConfig struct {
	Port     int    `json:"port"`
	Listen   string `json:"listen"`
	Protocol string `json:"protocol"`
}

type OutboundConfig struct {
	Protocol       string          `json:"protocol"`
	Settings       OutboundSetting `json:"settings"`
	StreamSettings StreamSettings  `json:"streamSettings"`
}

type OutboundSetting struct {
	Vnext   []VnextServer `json:"vnext,omitempty"`
	Servers []PlainServer `json:"servers,omitempty"`
}

type VnextServer struct {
	Address string      `json:"address"`
	Port    int         `json:"port"`
	Users   []VnextUser `json:"users"`
}

type VnextUser struct {
	ID         string `json:"id"`
	Email      string `json:"email,omitempty"`
	Flow       string `json:"flow,omitempty"`
	Encryption string `json:"encryption,omitempty"`
}

// PlainServer covers trojan and shadowsocks outbounds, which carry a
// password instead of a user id.
type PlainServer struct {
	Address  string `json:"address"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	Method   string `json:"method,omitempty"`
	Email    string `json:"email,omitempty"`
}

type StreamSettings struct {
	Network     string       `json:"network"`
	Security    string       `json:"security,omitempty"`
	TLSSettings *TLSSettings `json:"tlsSettings,omitempty"`
}

type TLSSettings struct {
	ServerName string `json:"serverName"`
}

// BuildJSONConfig renders the account as an importable outbound config.
func BuildJSONConfig(acc *models.ClientAccountMirror) ([]byte, error) {
	if err := checkComplete(acc); err != nil {
		return nil, err
	}

	cfg := ClientConfig{
		Log: LogConfig{Loglevel: "warning"},
		Inbounds: []InboundConfig{
			{Port: 1080, Listen: "127.0.0.1", Protocol: "socks"},
		},
	}

	stream := StreamSettings{Network: "tcp"}
	if acc.Security != "" && acc.Security != models.SecurityNone {
		stream.Security = acc.Security
		if acc.SNI != "" {
			stream.TLSSettings = &TLSSettings{ServerName: acc.SNI}
		}
	}

	var outbound OutboundConfig
	switch acc.Protocol {
	case models.ProtocolVLESS, models.ProtocolVMess:
		user := VnextUser{ID: acc.Secret, Email: acc.Email}
		if acc.Protocol == models.ProtocolVLESS {
			user.Flow = acc.Flow
			user.Encryption = "none"
		}
		outbound = OutboundConfig{
			Protocol: string(acc.Protocol),
			Settings: OutboundSetting{
				Vnext: []VnextServer{{
					Address: acc.ServerHost,
					Port:    acc.ServerPort,
					Users:   []VnextUser{user},
				}},
			},
			StreamSettings: stream,
		}
	case models.ProtocolTrojan, models.ProtocolShadowsocks:
		server := PlainServer{
			Address:  acc.ServerHost,
			Port:     acc.ServerPort,
			Password: acc.Secret,
			Email:    acc.Email,
		}
		if acc.Protocol == models.ProtocolShadowsocks {
			server.Method = acc.Method
			if server.Method == "" {
				server.Method = models.DefaultSSMethod
			}
		}
		outbound = OutboundConfig{
			Protocol:       string(acc.Protocol),
			Settings:       OutboundSetting{Servers: []PlainServer{server}},
			StreamSettings: stream,
		}
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedProtocol, acc.Protocol)
	}

	cfg.Outbounds = []OutboundConfig{outbound}

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal client config: %w", err)
	}
	return out, nil
}
