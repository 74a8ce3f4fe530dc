package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	apperrors "genieops-engine/internal/common/errors"
	"genieops-engine/internal/models"
)

// FunnelIndexMapping is the mapping EnsureIndex applies to the funnel index.
const FunnelIndexMapping = `{
  "mappings": {
    "properties": {
      "funnel_id":     {"type": "long"},
      "title":         {"type": "text", "fields": {"raw": {"type": "keyword"}}},
      "asset_type":    {"type": "keyword"},
      "icp_profile":   {"type": "text"},
      "value_promise": {"type": "text"},
      "created_at":    {"type": "date"}
    }
  }
}`

const (
	defaultTopicLimit  = 10
	defaultSearchLimit = 50
)

type topicDoc struct {
	FunnelID     int64     `json:"funnel_id"`
	Title        string    `json:"title"`
	AssetType    string    `json:"asset_type"`
	ICPProfile   string    `json:"icp_profile"`
	ValuePromise string    `json:"value_promise"`
	CreatedAt    time.Time `json:"created_at"`
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source topicDoc `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// TopicIndex keeps funnel titles searchable so new ideas can avoid existing topics.
type TopicIndex struct {
	es    *elasticsearch.Client
	index string
}

func NewTopicIndex(es *elasticsearch.Client, index string) *TopicIndex {
	return &TopicIndex{es: es, index: index}
}

// Index upserts the funnel's title document, keyed by funnel id.
func (t *TopicIndex) Index(ctx context.Context, funnel *models.Funnel) error {
	body, err := json.Marshal(topicDoc{
		FunnelID:     funnel.ID,
		Title:        funnel.Theme.Title,
		AssetType:    string(funnel.Theme.AssetType),
		ICPProfile:   funnel.Brief.ICPProfile,
		ValuePromise: funnel.Theme.ValuePromise,
		CreatedAt:    funnel.CreatedAt,
	})
	if err != nil {
		return apperrors.NewInternalError(fmt.Errorf("encode topic: %w", err))
	}

	req := esapi.IndexRequest{
		Index:      t.index,
		DocumentID: strconv.FormatInt(funnel.ID, 10),
		Body:       bytes.NewReader(body),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, t.es)
	if err != nil {
		return apperrors.NewSearchError("index topic", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return apperrors.NewSearchError("index topic", fmt.Errorf("status %s", res.Status()))
	}
	return nil
}

// Topics returns titles of earlier funnels built for a similar ICP.
func (t *TopicIndex) Topics(ctx context.Context, icp string) ([]string, error) {
	icp = strings.TrimSpace(icp)
	if icp == "" {
		return nil, nil
	}

	docs, err := t.search(ctx, "lookup topics", map[string]interface{}{
		"match": map[string]interface{}{
			"icp_profile": map[string]interface{}{"query": icp},
		},
	}, defaultTopicLimit)
	if err != nil {
		return nil, err
	}

	titles := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.Title != "" {
			titles = append(titles, d.Title)
		}
	}
	return titles, nil
}

// Search returns ids of funnels matching q on title, ICP or promise, best match first.
func (t *TopicIndex) Search(ctx context.Context, q string) ([]int64, error) {
	docs, err := t.search(ctx, "search funnels", map[string]interface{}{
		"multi_match": map[string]interface{}{
			"query":  q,
			"fields": []string{"title^3", "icp_profile^2", "value_promise"},
			"type":   "best_fields",
		},
	}, defaultSearchLimit)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.FunnelID)
	}
	return ids, nil
}

func (t *TopicIndex) search(ctx context.Context, op string, query map[string]interface{}, size int) ([]topicDoc, error) {
	body, err := json.Marshal(map[string]interface{}{"query": query})
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("encode query: %w", err))
	}

	req := esapi.SearchRequest{
		Index: []string{t.index},
		Body:  bytes.NewReader(body),
		Size:  &size,
	}
	res, err := req.Do(ctx, t.es)
	if err != nil {
		return nil, apperrors.NewSearchError(op, err)
	}
	defer res.Body.Close()

	// A fresh deployment has no index until the first funnel is written.
	if res.StatusCode == 404 {
		return nil, nil
	}
	if res.IsError() {
		return nil, apperrors.NewSearchError(op, fmt.Errorf("status %s", res.Status()))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, apperrors.NewSearchError(op, err)
	}

	docs := make([]topicDoc, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		docs = append(docs, h.Source)
	}
	return docs, nil
}
