package server

import "net/http"

// discoveryPath is where clients learn which credentials the deployment
// accepts before attempting an authenticated call.
const discoveryPath = "/.well-known/kube-debug-gateway"

type discoveryDocument struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	AuthMethods  []string `json:"auth_methods"`
	OIDCIssuer   string   `json:"oidc_issuer,omitempty"`
	OIDCAudience string   `json:"oidc_audience,omitempty"`
}

// handleDiscovery implements GET /.well-known/kube-debug-gateway. The
// document is public; it names accepted auth methods but never any secret
// material.
func (sc *ServerContext) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	doc := discoveryDocument{
		Name:        sc.config.ServerName,
		Version:     sc.config.Version,
		AuthMethods: []string{"api_key"},
	}
	if sc.authenticator.BearerEnabled() {
		doc.AuthMethods = append(doc.AuthMethods, "jwt")
		doc.OIDCIssuer = sc.config.OIDCIssuer
		doc.OIDCAudience = sc.config.OIDCAudience
	}
	sc.writeJSON(w, http.StatusOK, doc)
}
