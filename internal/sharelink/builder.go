// Package sharelink renders client accounts into the connection artifacts a
// customer imports into their app: share-link URIs, an outbound JSON config,
// and a Clash proxy stanza. All builders are pure functions over the mirror
// row; nothing here talks to the panel.
package sharelink

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
)

var (
	// ErrIncompleteAccount means the account is missing a field without
	// which no valid URI can be emitted (secret or server).
	ErrIncompleteAccount = errors.New("incomplete account")
)

// Build dispatches on the requested output format.
func Build(acc *models.ClientAccountMirror, format models.OutputFormat) (string, error) {
	switch format {
	case models.FormatShareLink:
		return BuildShareLink(acc)
	case models.FormatJSON:
		b, err := BuildJSONConfig(acc)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case models.FormatClash:
		return BuildClash(acc)
	default:
		return "", fmt.Errorf("unknown output format %q", format)
	}
}

// BuildShareLink emits the protocol-specific URI. Query parameters with
// empty values are omitted entirely, and the parameter order is fixed:
// downstream importers are not uniformly tolerant of reordering, so the
// query string is assembled by hand rather than via url.Values (which
// sorts keys).
func BuildShareLink(acc *models.ClientAccountMirror) (string, error) {
	if err := checkComplete(acc); err != nil {
		return "", err
	}

	switch acc.Protocol {
	case models.ProtocolVLESS:
		return buildVlessLink(acc), nil
	case models.ProtocolVMess:
		return buildVmessLink(acc)
	case models.ProtocolTrojan:
		return buildTrojanLink(acc), nil
	case models.ProtocolShadowsocks:
		return buildShadowsocksLink(acc), nil
	default:
		return "", fmt.Errorf("%w: %q", models.ErrUnsupportedProtocol, acc.Protocol)
	}
}

func checkComplete(acc *models.ClientAccountMirror) error {
	if acc.Secret == "" {
		return fmt.Errorf("%w: missing secret", ErrIncompleteAccount)
	}
	if acc.ServerHost == "" {
		return fmt.Errorf("%w: missing server host", ErrIncompleteAccount)
	}
	if acc.ServerPort <= 0 {
		return fmt.Errorf("%w: missing server port", ErrIncompleteAccount)
	}
	return nil
}

func buildVlessLink(acc *models.ClientAccountMirror) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "vless://%s@%s:%d?type=tcp", acc.Secret, acc.ServerHost, acc.ServerPort)
	appendParam(&sb, "security", acc.Security)
	appendParam(&sb, "sni", acc.SNI)
	appendParam(&sb, "headerType", acc.HeaderType)
	appendParam(&sb, "flow", acc.Flow)
	fmt.Fprintf(&sb, "#%s", url.QueryEscape(acc.Email))
	return sb.String()
}

func buildTrojanLink(acc *models.ClientAccountMirror) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "trojan://%s@%s:%d?type=tcp", acc.Secret, acc.ServerHost, acc.ServerPort)
	appendParam(&sb, "security", acc.Security)
	appendParam(&sb, "sni", acc.SNI)
	appendParam(&sb, "headerType", acc.HeaderType)
	fmt.Fprintf(&sb, "#%s", url.QueryEscape(acc.Email))
	return sb.String()
}

func appendParam(sb *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(sb, "&%s=%s", key, value)
}

// vmessPayload is the v2 vmess JSON object. Field order follows the de facto
// v2rayN layout.
type vmessPayload struct {
	V    string `json:"v"`
	PS   string `json:"ps"`
	Add  string `json:"add"`
	Port int    `json:"port"`
	ID   string `json:"id"`
	Aid  string `json:"aid"`
	Net  string `json:"net"`
	Type string `json:"type"`
	Host string `json:"host"`
	Path string `json:"path"`
	TLS  string `json:"tls"`
	SNI  string `json:"sni"`
}

func buildVmessLink(acc *models.ClientAccountMirror) (string, error) {
	tlsField := ""
	if acc.Security == models.SecurityTLS {
		tlsField = models.SecurityTLS
	}
	payload := vmessPayload{
		V:    "2",
		PS:   acc.Email,
		Add:  acc.ServerHost,
		Port: acc.ServerPort,
		ID:   acc.Secret,
		Aid:  "0",
		Net:  "tcp",
		Type: acc.HeaderType,
		TLS:  tlsField,
		SNI:  acc.SNI,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal vmess payload: %w", err)
	}
	return "vmess://" + base64.StdEncoding.EncodeToString(raw), nil
}

func buildShadowsocksLink(acc *models.ClientAccountMirror) string {
	method := acc.Method
	if method == "" {
		method = models.DefaultSSMethod
	}
	userInfo := base64.StdEncoding.EncodeToString([]byte(method + ":" + acc.Secret))
	return fmt.Sprintf("ss://%s@%s:%d#%s", userInfo, acc.ServerHost, acc.ServerPort, url.QueryEscape(acc.Email))
}
