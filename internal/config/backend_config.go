package config

// Backend kinds
const (
	BackendFake = "fake"
	BackendOIDC = "oidc"
)

type BackendConfig interface {
	GetBackendKind() string
	GetIssuer() string
	GetTokenURL() string
	GetClientID() string
	GetClientSecret() string
	GetScopes() []string
	GetProfilesDSN() string
}

type Backend struct {
	file *File
}

var _ BackendConfig = Backend{}

func (b Backend) GetBackendKind() string {
	return GetEnv("BACKEND_KIND", orDefault(b.file.Backend.Kind, BackendFake))
}

// GetIssuer is the OIDC issuer used for endpoint discovery. When empty,
// GetTokenURL is used directly.
func (b Backend) GetIssuer() string {
	return GetEnv("OIDC_ISSUER", b.file.Backend.Issuer)
}

func (b Backend) GetTokenURL() string {
	return GetEnv("OAUTH_TOKEN_URL", b.file.Backend.TokenURL)
}

func (b Backend) GetClientID() string {
	return GetEnv("OAUTH_CLIENT_ID", orDefault(b.file.Backend.ClientID, "learning-web"))
}

func (b Backend) GetClientSecret() string {
	return GetEnv("OAUTH_CLIENT_SECRET", b.file.Backend.ClientSecret)
}

func (b Backend) GetScopes() []string {
	return GetEnvList("OAUTH_SCOPES", b.file.Backend.Scopes, []string{"openid", "profile", "email", "offline_access"})
}

// GetProfilesDSN is the Postgres DSN of the profiles table. Empty means
// profiles come from the configured auth backend's fake store.
func (b Backend) GetProfilesDSN() string {
	return GetEnv("PROFILES_DSN", b.file.Backend.ProfilesDSN)
}
