package gateway

import (
	"context"

	"github.com/teranos/metagnosis/am"
)

// Gateways bundles every queue on one Store.
type Gateways struct {
	Store     *Store
	Artifacts *ArtifactGateway
	Pages     *PageGateway
	Documents *DocumentGateway
}

// New builds all queue gateways from configuration.
func New(store *Store, cfg *am.Config) *Gateways {
	return &Gateways{
		Store:     store,
		Artifacts: NewArtifactGateway(store, cfg.Crawler.DownloadLimit, cfg.Storage.DeleteProcessed),
		Pages:     NewPageGateway(store),
		Documents: NewDocumentGateway(store, cfg.Enrichment.Dimension),
	}
}

// Initialize bootstraps every queue schema.
func (g *Gateways) Initialize(ctx context.Context) error {
	if err := g.Artifacts.Initialize(ctx); err != nil {
		return err
	}
	if err := g.Pages.Initialize(ctx); err != nil {
		return err
	}
	return g.Documents.Initialize(ctx)
}

// Stats reports pending and processed counts for every queue.
func (g *Gateways) Stats(ctx context.Context) ([]QueueStats, error) {
	var out []QueueStats
	for _, stats := range []func(context.Context) (QueueStats, error){
		g.Artifacts.Stats, g.Pages.Stats, g.Documents.Stats,
	} {
		st, err := stats(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// Item origins shared by the crawlers and the publisher.
const (
	OriginArxiv      = "arxiv"
	OriginHackerNews = "hackernews"
)
