package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/rotisserie/eris"

	"github.com/sells-group/offer-sourcing/internal/model"
	"github.com/sells-group/offer-sourcing/internal/resilience"
)

// CatalogName is the provider identifier for the internal vendor catalog.
const CatalogName = "catalog"

const defaultCatalogSize = 25

// CatalogDocument is the indexed shape of a vendor catalog item.
type CatalogDocument struct {
	SKU         string            `json:"sku"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Category    string            `json:"category,omitempty"`
	Price       float64           `json:"price"`
	Currency    string            `json:"currency,omitempty"`
	URL         string            `json:"url,omitempty"`
	ImageURL    string            `json:"image_url,omitempty"`
	Merchant    string            `json:"merchant,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

type catalogSearchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string          `json:"_id"`
			Score  float64         `json:"_score"`
			Source CatalogDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// CatalogConfig holds the Elasticsearch connection settings.
type CatalogConfig struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
	Size      int
}

// Catalog searches the internal vendor catalog in Elasticsearch.
type Catalog struct {
	es    *elasticsearch.Client
	index string
	size  int
}

// NewCatalog connects to Elasticsearch. No request is made until Fetch.
func NewCatalog(cfg CatalogConfig) (*Catalog, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, eris.Wrap(err, "catalog: create elasticsearch client")
	}
	return NewCatalogWithClient(es, cfg.Index, cfg.Size), nil
}

// NewCatalogWithClient wraps an existing client.
func NewCatalogWithClient(es *elasticsearch.Client, index string, size int) *Catalog {
	if index == "" {
		index = "catalog"
	}
	if size <= 0 {
		size = defaultCatalogSize
	}
	return &Catalog{es: es, index: index, size: size}
}

// Name implements provider.Adapter.
func (c *Catalog) Name() string { return CatalogName }

// Fetch implements provider.Adapter.
func (c *Catalog) Fetch(ctx context.Context, q model.CanonicalQuery, _ time.Duration) ([]model.RawResult, error) {
	body, err := json.Marshal(catalogQuery(q, c.size))
	if err != nil {
		return nil, eris.Wrap(err, "catalog: marshal query")
	}

	req := esapi.SearchRequest{
		Index: []string{c.index},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: search")
	}
	defer res.Body.Close() //nolint:errcheck

	if res.IsError() {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, resilience.StatusError(CatalogName, res.StatusCode, res.Header, b)
	}

	var sr catalogSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, eris.Wrap(err, "catalog: decode response")
	}

	out := make([]model.RawResult, 0, len(sr.Hits.Hits))
	for _, hit := range sr.Hits.Hits {
		doc := hit.Source
		raw := model.RawResult{
			Provider: CatalogName,
			Title:    doc.Title,
			URL:      doc.URL,
			ImageURL: doc.ImageURL,
			Merchant: doc.Merchant,
			Price: model.RawPrice{
				Amount:   model.Float(doc.Price),
				Currency: doc.Currency,
			},
			Attributes: make(map[string]string, len(doc.Attributes)+1),
			Payload:    payload(doc),
		}
		for k, v := range doc.Attributes {
			setAttr(raw.Attributes, k, v)
		}
		setAttr(raw.Attributes, "sku", firstNonEmpty(doc.SKU, hit.ID))
		out = append(out, raw)
	}
	return out, nil
}

// catalogQuery builds the bool query: full-text match on the search text,
// exact category and price range as filters.
func catalogQuery(q model.CanonicalQuery, size int) map[string]any {
	var must any = map[string]any{"match_all": map[string]any{}}
	if text := q.SearchText(); text != "" {
		must = map[string]any{
			"multi_match": map[string]any{
				"query":  text,
				"fields": []string{"title^2", "description"},
			},
		}
	}

	var filters []any
	if q.Category != "" {
		filters = append(filters, map[string]any{
			"term": map[string]any{"category": q.Category},
		})
	}
	if q.Constraints.MinPrice != nil || q.Constraints.MaxPrice != nil {
		rng := map[string]any{}
		if q.Constraints.MinPrice != nil {
			rng["gte"] = *q.Constraints.MinPrice
		}
		if q.Constraints.MaxPrice != nil {
			rng["lte"] = *q.Constraints.MaxPrice
		}
		filters = append(filters, map[string]any{"range": map[string]any{"price": rng}})
	}

	boolQ := map[string]any{"must": must}
	if len(filters) > 0 {
		boolQ["filter"] = filters
	}
	return map[string]any{
		"size":  size,
		"query": map[string]any{"bool": boolQ},
	}
}
