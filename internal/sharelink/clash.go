package sharelink

import (
	"fmt"
	"strings"

	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
)

// BuildClash emits a Clash proxy stanza as literal indented text. The target
// parser expects a stable key order, so this deliberately bypasses a generic
// YAML serializer.
func BuildClash(acc *models.ClientAccountMirror) (string, error) {
	if err := checkComplete(acc); err != nil {
		return "", err
	}

	tls := acc.Security == models.SecurityTLS || acc.Security == models.SecurityReality

	var sb strings.Builder
	switch acc.Protocol {
	case models.ProtocolVLESS:
		fmt.Fprintf(&sb, "  - name: %s\n    type: vless\n    server: %s\n    port: %d\n    uuid: %s\n",
			yamlQuote(acc.Email), acc.ServerHost, acc.ServerPort, acc.Secret)
		fmt.Fprintf(&sb, "    tls: %t\n    skip-cert-verify: false\n    servername: %s\n", tls, acc.SNI)
		if acc.Flow != "" {
			fmt.Fprintf(&sb, "    flow: %s\n", acc.Flow)
		}
	case models.ProtocolVMess:
		fmt.Fprintf(&sb, "  - name: %s\n    type: vmess\n    server: %s\n    port: %d\n    uuid: %s\n",
			yamlQuote(acc.Email), acc.ServerHost, acc.ServerPort, acc.Secret)
		fmt.Fprintf(&sb, "    alterId: 0\n    cipher: auto\n")
		fmt.Fprintf(&sb, "    tls: %t\n    skip-cert-verify: false\n    servername: %s\n", tls, acc.SNI)
	case models.ProtocolTrojan:
		fmt.Fprintf(&sb, "  - name: %s\n    type: trojan\n    server: %s\n    port: %d\n    password: %s\n",
			yamlQuote(acc.Email), acc.ServerHost, acc.ServerPort, acc.Secret)
		fmt.Fprintf(&sb, "    tls: %t\n    skip-cert-verify: false\n    sni: %s\n", tls, acc.SNI)
	case models.ProtocolShadowsocks:
		method := acc.Method
		if method == "" {
			method = models.DefaultSSMethod
		}
		fmt.Fprintf(&sb, "  - name: %s\n    type: ss\n    server: %s\n    port: %d\n    cipher: %s\n    password: %s\n",
			yamlQuote(acc.Email), acc.ServerHost, acc.ServerPort, method, acc.Secret)
	default:
		return "", fmt.Errorf("%w: %q", models.ErrUnsupportedProtocol, acc.Protocol)
	}
	return sb.String(), nil
}

// yamlQuote wraps a value in double quotes when it contains characters that
// would change the YAML parse (the email label usually contains '@').
func yamlQuote(s string) string {
	if strings.ContainsAny(s, ":@#{}[]&*!|>'\"%") || s == "" {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return s
}
