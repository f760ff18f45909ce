package store

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// payloadIDField carries the original string id in a point's payload when
// that id isn't itself a valid UUID — Qdrant point ids must be a UUID or a
// positive integer.
const payloadIDField = "_original_id"

// pointID derives a Qdrant-legal point id from an arbitrary string id,
// deterministically, so re-upserting the same document id always resolves
// to the same point.
func pointID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

type vectorCollection struct {
	client     *qdrant.Client
	collection string
	dimension  int
	metric     string
}

func dialQdrant(dsn string) (*qdrant.Client, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant port: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	return qdrant.NewClient(cfg)
}

func newVectorCollection(ctx context.Context, client *qdrant.Client, collection string, m VectorMapping) (*vectorCollection, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if m.Dimension <= 0 {
		return nil, fmt.Errorf("vector mapping requires dimensions > 0")
	}
	vc := &vectorCollection{
		client:     client,
		collection: collection,
		dimension:  m.Dimension,
		metric:     strings.ToLower(strings.TrimSpace(m.Metric)),
	}
	if err := vc.ensureCollection(ctx); err != nil {
		return nil, fmt.Errorf("ensure collection %s: %w", collection, err)
	}
	return vc, nil
}

func (v *vectorCollection) ensureCollection(ctx context.Context) error {
	exists, err := v.client.CollectionExists(ctx, v.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	var distance qdrant.Distance
	switch v.metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	default:
		distance = qdrant.Distance_Cosine
	}
	return v.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(v.dimension),
			Distance: distance,
		}),
	})
}

func (v *vectorCollection) upsert(ctx context.Context, id string, vector []float32, payload map[string]any) error {
	pid := pointID(id)
	fields := make(map[string]any, len(payload)+1)
	for k, val := range payload {
		fields[k] = val
	}
	if pid != id {
		fields[payloadIDField] = id
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	_, err := v.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: v.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(pid),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(fields),
		}},
	})
	return err
}

func (v *vectorCollection) delete(ctx context.Context, id string) error {
	_, err := v.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: v.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(pointID(id))),
	})
	return err
}

// similaritySearch returns the top-k nearest neighbours to vector, optionally
// filtered to payload fields matching filter exactly.
func (v *vectorCollection) similaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]VectorResult, error) {
	if k <= 0 {
		k = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)

	var qFilter *qdrant.Filter
	if len(filter) > 0 {
		must := make([]*qdrant.Condition, 0, len(filter))
		for field, val := range filter {
			must = append(must, qdrant.NewMatch(field, val))
		}
		qFilter = &qdrant.Filter{Must: must}
	}

	limit := uint64(k)
	hits, err := v.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: v.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         qFilter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}

	out := make([]VectorResult, 0, len(hits))
	for _, hit := range hits {
		id := hit.Id.GetUuid()
		payload := make(map[string]string)
		var originalID string
		if hit.Payload != nil {
			for k, val := range hit.Payload {
				if k == payloadIDField {
					originalID = val.GetStringValue()
					continue
				}
				payload[k] = val.GetStringValue()
			}
		}
		if originalID != "" {
			id = originalID
		}
		out = append(out, VectorResult{ID: id, Score: float64(hit.Score), Payload: payload})
	}
	return out, nil
}

// VectorResult is one nearest-neighbour hit.
type VectorResult struct {
	ID      string
	Score   float64
	Payload map[string]string
}
