package domain

// ProviderEndpoint describes one upstream RPC/WebSocket provider.
type ProviderEndpoint struct {
	Label   string // short identifier, e.g. "helius" or "provider_0"
	URL     string // wss:// endpoint, auth embedded where required
	Enabled bool   // disabled endpoints are skipped at startup
}
