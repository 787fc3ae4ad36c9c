package vectorindex

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/orbitx-dev/orbitx/internal/orbiterr"
)

// QdrantIndex implements Index by forwarding to a remote Qdrant collection
// over its REST API — spec.md §4.7's "optional Qdrant backend... implements
// the same interface by forwarding to a remote collection". No official
// Qdrant Go client is in the retrieved corpus, so this is a minimal
// hand-rolled REST client scoped to exactly the calls Index needs
// (upsert points, delete points, delete-by-filter, query).
type QdrantIndex struct {
	baseURL    string
	collection string
	dims       int
	client     *http.Client
}

// NewQdrantIndex wires a QdrantIndex against an existing collection —
// collection creation is an operational concern, not something the index
// itself performs on every startup.
func NewQdrantIndex(baseURL, collection string, dims int) *QdrantIndex {
	return &QdrantIndex{
		baseURL:    baseURL,
		collection: collection,
		dims:       dims,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (q *QdrantIndex) Dims() int { return q.dims }

type qdrantPoint struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

func (q *QdrantIndex) Upsert(vecs []CodeVector) error {
	points := make([]qdrantPoint, len(vecs))
	for i, v := range vecs {
		if len(v.Vec) != q.dims {
			return orbiterr.New(orbiterr.KindVectorDimensionMismatch, "vectorindex.QdrantIndex.Upsert",
				fmt.Errorf("chunk %s: got %d dims, want %d", v.ChunkID, len(v.Vec), q.dims))
		}
		points[i] = qdrantPoint{ID: v.ChunkID, Vector: v.Vec, Payload: map[string]interface{}{"file_path": v.FilePath}}
	}
	body, err := json.Marshal(map[string]any{"points": points})
	if err != nil {
		return fmt.Errorf("vectorindex.QdrantIndex.Upsert: %w", err)
	}
	return q.put(fmt.Sprintf("/collections/%s/points", q.collection), body)
}

func (q *QdrantIndex) Delete(chunkID string) error {
	body, err := json.Marshal(map[string]any{"points": []string{chunkID}})
	if err != nil {
		return fmt.Errorf("vectorindex.QdrantIndex.Delete: %w", err)
	}
	return q.post(fmt.Sprintf("/collections/%s/points/delete", q.collection), body)
}

func (q *QdrantIndex) DeleteFile(filePath string) error {
	body, err := json.Marshal(map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "file_path", "match": map[string]any{"value": filePath}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorindex.QdrantIndex.DeleteFile: %w", err)
	}
	return q.post(fmt.Sprintf("/collections/%s/points/delete", q.collection), body)
}

type qdrantSearchResp struct {
	Result []struct {
		ID      string  `json:"id"`
		Score   float32 `json:"score"`
		Payload struct {
			FilePath string `json:"file_path"`
		} `json:"payload"`
	} `json:"result"`
}

func (q *QdrantIndex) Search(query []float32, topK int, threshold float32) ([]SearchHit, error) {
	if len(query) != q.dims {
		return nil, orbiterr.New(orbiterr.KindVectorDimensionMismatch, "vectorindex.QdrantIndex.Search",
			fmt.Errorf("query has %d dims, want %d", len(query), q.dims))
	}
	vec := make([]float32, len(query))
	copy(vec, query)
	normalize(vec)

	reqBody, err := json.Marshal(map[string]any{
		"vector":       vec,
		"limit":        topK,
		"score_threshold": threshold,
		"with_payload": true,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorindex.QdrantIndex.Search: %w", err)
	}

	resp, err := q.client.Post(q.baseURL+fmt.Sprintf("/collections/%s/points/search", q.collection), "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return nil, orbiterr.New(orbiterr.KindProviderHttpError, "vectorindex.QdrantIndex.Search", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, orbiterr.New(orbiterr.KindProviderHttpError, "vectorindex.QdrantIndex.Search",
			fmt.Errorf("qdrant search: status %d", resp.StatusCode))
	}

	var parsed qdrantSearchResp
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("vectorindex.QdrantIndex.Search: decode: %w", err)
	}
	hits := make([]SearchHit, len(parsed.Result))
	for i, r := range parsed.Result {
		hits[i] = SearchHit{ChunkID: r.ID, FilePath: r.Payload.FilePath, Score: r.Score}
	}
	return hits, nil
}

func (q *QdrantIndex) put(path string, body []byte) error {
	req, err := http.NewRequest(http.MethodPut, q.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("vectorindex.QdrantIndex: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return q.do(req)
}

func (q *QdrantIndex) post(path string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, q.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("vectorindex.QdrantIndex: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return q.do(req)
}

func (q *QdrantIndex) do(req *http.Request) error {
	resp, err := q.client.Do(req)
	if err != nil {
		return orbiterr.New(orbiterr.KindProviderHttpError, "vectorindex.QdrantIndex", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return orbiterr.New(orbiterr.KindProviderHttpError, "vectorindex.QdrantIndex",
			fmt.Errorf("qdrant request failed: status %d", resp.StatusCode))
	}
	return nil
}
