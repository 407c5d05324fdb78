package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"newsbrief/types"
)

// Neighbor is one nearest-neighbor match from a similarity query.
type Neighbor struct {
	ID    string
	Score float64
}

// IndexConfig holds configuration for the Chroma connection.
type IndexConfig struct {
	Host       string
	Port       int
	Collection string
}

// Index wraps the Chroma vector database REST API (v2). Embeddings are
// supplied by the caller; Chroma v2 expects client-side vectors on both
// writes and queries.
type Index struct {
	baseURL      string
	tenant       string
	database     string
	collection   string
	collectionID string
	httpClient   *http.Client
}

// NewIndex creates an Index and gets or creates the target collection.
func NewIndex(cfg IndexConfig) (*Index, error) {
	idx := &Index{
		baseURL:    fmt.Sprintf("http://%s:%d/api/v2", cfg.Host, cfg.Port),
		tenant:     "default_tenant",
		database:   "default_database",
		collection: cfg.Collection,
		httpClient: &http.Client{},
	}

	collectionID, err := idx.getOrCreateCollection(cfg.Collection)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create collection: %w", err)
	}
	idx.collectionID = collectionID
	return idx, nil
}

func (x *Index) getOrCreateCollection(name string) (string, error) {
	url := fmt.Sprintf("%s/tenants/%s/databases/%s/collections/%s",
		x.baseURL, x.tenant, x.database, name)
	resp, err := x.httpClient.Get(url)
	if err == nil && resp.StatusCode == http.StatusOK {
		defer resp.Body.Close()
		var result map[string]interface{}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return "", err
		}
		id, err := collectionID(result)
		if err != nil {
			return "", err
		}
		log.Printf("Using existing collection: %s", name)
		return id, nil
	}
	if resp != nil {
		resp.Body.Close()
	}

	log.Printf("Creating new collection: %s", name)
	createURL := fmt.Sprintf("%s/tenants/%s/databases/%s/collections",
		x.baseURL, x.tenant, x.database)
	payload := map[string]interface{}{
		"name": name,
		"metadata": map[string]interface{}{
			"description": "newsbrief semantic deduplication collection",
		},
		"get_or_create": true,
	}

	body, err := x.post(createURL, payload)
	if err != nil {
		return "", err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w, body: %s", err, string(body))
	}
	return collectionID(result)
}

// collectionID pulls the collection id out of a Chroma response without
// trusting the payload shape.
func collectionID(result map[string]interface{}) (string, error) {
	id, ok := result["id"].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("collection response carries no id: %v", result)
	}
	return id, nil
}

func (x *Index) collectionURL() string {
	return fmt.Sprintf("%s/tenants/%s/databases/%s/collections/%s",
		x.baseURL, x.tenant, x.database, x.collectionID)
}

// Query returns the topK nearest neighbors of embedding with cosine
// similarity scores (Chroma reports cosine distance; score = 1 - distance).
func (x *Index) Query(ctx context.Context, embedding []float32, topK int) ([]Neighbor, error) {
	payload := map[string]interface{}{
		"n_results":        topK,
		"query_embeddings": [][]float32{embedding},
		"include":          []string{"distances"},
	}

	body, err := x.postContext(ctx, fmt.Sprintf("%s/query", x.collectionURL()), payload)
	if err != nil {
		return nil, types.StoreUnavailable("similarity index", err)
	}

	var result struct {
		IDs       [][]string  `json:"ids"`
		Distances [][]float64 `json:"distances"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, types.StoreUnavailable("similarity index", err)
	}

	if len(result.IDs) == 0 || len(result.Distances) == 0 {
		return nil, nil
	}

	ids := result.IDs[0]
	distances := result.Distances[0]
	neighbors := make([]Neighbor, 0, len(ids))
	for i, id := range ids {
		if i >= len(distances) {
			break
		}
		neighbors = append(neighbors, Neighbor{
			ID:    id,
			Score: 1.0 - distances[i],
		})
	}
	return neighbors, nil
}

// Upsert stores (or replaces) an embedding with its metadata.
func (x *Index) Upsert(ctx context.Context, id string, embedding []float32, metadata map[string]interface{}) error {
	payload := map[string]interface{}{
		"ids":        []string{id},
		"embeddings": [][]float32{embedding},
	}
	if metadata != nil {
		payload["metadatas"] = []map[string]interface{}{metadata}
	}

	if _, err := x.postContext(ctx, fmt.Sprintf("%s/upsert", x.collectionURL()), payload); err != nil {
		return types.StoreUnavailable("similarity index", err)
	}
	return nil
}

// Count returns the number of stored embeddings.
func (x *Index) Count(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/count", x.collectionURL()), nil)
	if err != nil {
		return 0, err
	}
	resp, err := x.httpClient.Do(req)
	if err != nil {
		return 0, types.StoreUnavailable("similarity index", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, types.StoreUnavailable("similarity index",
			fmt.Errorf("count failed: %s", string(body)))
	}

	var count int
	if err := json.NewDecoder(resp.Body).Decode(&count); err != nil {
		return 0, types.StoreUnavailable("similarity index", err)
	}
	return count, nil
}

// Reset drops and recreates the collection. Administrative use only.
func (x *Index) Reset(ctx context.Context) error {
	url := fmt.Sprintf("%s/tenants/%s/databases/%s/collections/%s",
		x.baseURL, x.tenant, x.database, x.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := x.httpClient.Do(req)
	if err != nil {
		return types.StoreUnavailable("similarity index", err)
	}
	resp.Body.Close()

	collectionID, err := x.getOrCreateCollection(x.collection)
	if err != nil {
		return types.StoreUnavailable("similarity index", err)
	}
	x.collectionID = collectionID
	return nil
}

func (x *Index) post(url string, payload interface{}) ([]byte, error) {
	return x.postContext(context.Background(), url, payload)
}

func (x *Index) postContext(ctx context.Context, url string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("request failed (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}
