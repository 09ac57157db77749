package provider

import (
	"github.com/teranos/metagnosis/am"
	"github.com/teranos/metagnosis/errors"
	"github.com/teranos/metagnosis/internal/httpclient"
)

// New creates the configured provider. Model servers are usually on the
// local network, so the client it builds permits private addresses.
func New(cfg am.EnrichmentConfig) (Provider, error) {
	client, err := httpclient.New(httpclient.Options{
		Timeout:      cfg.ItemTimeout(),
		AllowPrivate: true,
	})
	if err != nil {
		return nil, err
	}
	return NewWithClient(cfg, client)
}

// NewWithClient is New with a caller-supplied HTTP client.
func NewWithClient(cfg am.EnrichmentConfig, client *httpclient.SaferClient) (Provider, error) {
	switch ProviderType(cfg.Provider) {
	case ProviderTypeLocal:
		return NewLocalProvider(LocalConfig{
			BaseURL:    cfg.BaseURL,
			EmbedModel: cfg.EmbedModel,
			ChatModel:  cfg.ChatModel,
			APIKey:     cfg.APIKey,
			Dimension:  cfg.Dimension,
		}, client), nil
	case ProviderTypeOllama, ProviderTypeOpenAI:
		return NewLangchainProvider(LangchainConfig{
			Type:       ProviderType(cfg.Provider),
			BaseURL:    cfg.BaseURL,
			EmbedModel: cfg.EmbedModel,
			ChatModel:  cfg.ChatModel,
			APIKey:     cfg.APIKey,
			Dimension:  cfg.Dimension,
		}, client)
	default:
		return nil, errors.NewFatalConfigError(errors.Newf("unknown enrichment provider %q", cfg.Provider))
	}
}
