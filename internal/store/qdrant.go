package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/finrag-go/internal/rag"
)

// Payload keys written on every Qdrant point.
const (
	payloadText      = "text"
	payloadPassageID = "passage_id"
	payloadSeq       = "seq"
	payloadMetadata  = "metadata"
	payloadSourceID  = rag.MetaSourceID
)

// qdrantTieSlack is how many extra hits are fetched beyond k so that equal
// scores can be re-ordered by insertion sequence before truncation.
const qdrantTieSlack = 16

// scrollPage is the page size used when scanning points by source.
const scrollPage = 256

// pointNamespace seeds the UUIDv5 point IDs derived from passage IDs.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("finrag/passages"))

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// VectorSize is the dimension used when a collection has to be created.
	VectorSize uint64

	// Prefix is prepended to every collection name on the server.
	Prefix string
}

// QdrantStore is a rag.Store backed by a Qdrant instance. Each logical
// collection maps to one Qdrant collection with cosine distance.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg QdrantConfig

	// mu guards handles.
	mu      sync.Mutex
	handles map[string]*qdrantCollection
}

// NewQdrantStore connects to Qdrant. Collections are created lazily by
// GetOrCreate.
func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("qdrant: vector size must be set")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}
	return &QdrantStore{client: client, cfg: cfg, handles: make(map[string]*qdrantCollection)}, nil
}

func (s *QdrantStore) serverName(name string) string { return s.cfg.Prefix + name }

// GetOrCreate creates the Qdrant collection and its source_id payload index
// if they do not exist yet.
func (s *QdrantStore) GetOrCreate(ctx context.Context, name string) (rag.Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("qdrant: collection name must not be empty")
	}
	server := s.serverName(name)
	exists, err := s.client.CollectionExists(ctx, server)
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: server,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     s.cfg.VectorSize,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant: failed to create collection %q: %w", server, err)
		}
		_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: server,
			Wait:           qdrant.PtrOf(true),
			FieldName:      payloadSourceID,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant: failed to index %q on %q: %w", payloadSourceID, server, err)
		}
	}
	return s.Collection(ctx, name)
}

// Collection returns an existing collection or rag.ErrNotFound. The vector
// size is read from the server so a stale collection fails fast.
func (s *QdrantStore) Collection(ctx context.Context, name string) (rag.Collection, error) {
	server := s.serverName(name)
	exists, err := s.client.CollectionExists(ctx, server)
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		return nil, rag.NotFoundError(name)
	}

	s.mu.Lock()
	c, ok := s.handles[name]
	s.mu.Unlock()
	if ok {
		return c, nil
	}

	info, err := s.client.GetCollectionInfo(ctx, server)
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to describe collection %q: %w", server, err)
	}
	size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.handles[name]; ok {
		return c, nil
	}
	c = &qdrantCollection{client: s.client, name: name, server: server, dim: int(size)}
	s.handles[name] = c
	return c, nil
}

// Names lists collections carrying this store's prefix, sorted.
func (s *QdrantStore) Names(ctx context.Context) ([]string, error) {
	all, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("qdrant: list collections: %w", err)
	}
	var names []string
	for _, n := range all {
		if rest, ok := strings.CutPrefix(n, s.cfg.Prefix); ok {
			names = append(names, rest)
		}
	}
	slices.Sort(names)
	return names, nil
}

// Ping checks that the Qdrant server answers health checks.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// qdrantCollection is a handle onto one Qdrant collection.
type qdrantCollection struct {
	client *qdrant.Client
	name   string
	server string
	dim    int
}

func (c *qdrantCollection) Name() string   { return c.name }
func (c *qdrantCollection) Dimension() int { return c.dim }

// pointID derives a stable UUID for a passage ID within a collection.
func pointID(collection, id string) string {
	return uuid.NewSHA1(pointNamespace, []byte(collection+"/"+id)).String()
}

func (c *qdrantCollection) Upsert(ctx context.Context, passages []rag.Passage) error {
	if len(passages) == 0 {
		return nil
	}
	if _, err := rag.ValidateBatch(c.name, c.dim, passages); err != nil {
		return fmt.Errorf("qdrant: upsert %q: %w", c.name, err)
	}

	existing, err := c.existingSeqs(ctx, passages)
	if err != nil {
		return err
	}

	base := time.Now().UnixNano()
	points := make([]*qdrant.PointStruct, 0, len(passages))
	for i, p := range passages {
		md, err := rag.NormalizeMetadata(p.Metadata)
		if err != nil {
			return fmt.Errorf("qdrant: upsert %q: %w", c.name, err)
		}
		seq, ok := existing[p.ID]
		if !ok {
			seq = base + int64(i)
		}
		payload := map[string]any{
			payloadText:      p.Text,
			payloadPassageID: p.ID,
			payloadSeq:       seq,
			payloadMetadata:  nonNilMetadata(md),
		}
		if sid, ok := md[rag.MetaSourceID].(string); ok {
			payload[payloadSourceID] = sid
		}
		values, err := qdrant.TryValueMap(payload)
		if err != nil {
			return fmt.Errorf("qdrant: upsert %q: payload for %q: %w", c.name, p.ID, err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(c.name, p.ID)),
			Vectors: qdrant.NewVectorsDense(p.Embedding),
			Payload: values,
		})
	}

	_, err = c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.server,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert %q failed: %w", c.name, err)
	}
	return nil
}

// existingSeqs returns the stored seq of every passage in the batch that is
// already present, so replacements keep their insertion position.
func (c *qdrantCollection) existingSeqs(ctx context.Context, passages []rag.Passage) (map[string]int64, error) {
	ids := make([]*qdrant.PointId, len(passages))
	for i, p := range passages {
		ids[i] = qdrant.NewIDUUID(pointID(c.name, p.ID))
	}
	found, err := c.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: c.server,
		Ids:            ids,
		WithPayload:    qdrant.NewWithPayloadInclude(payloadPassageID, payloadSeq),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: upsert %q: read existing: %w", c.name, err)
	}
	out := make(map[string]int64, len(found))
	for _, pt := range found {
		pl := pt.GetPayload()
		out[pl[payloadPassageID].GetStringValue()] = pl[payloadSeq].GetIntegerValue()
	}
	return out, nil
}

func (c *qdrantCollection) Query(ctx context.Context, vector []float32, k int) ([]rag.ScoredPassage, error) {
	if err := checkQuery(c.name, c.dim, vector, k); err != nil {
		return nil, fmt.Errorf("qdrant: query %q: %w", c.name, err)
	}
	limit := uint64(k + qdrantTieSlack)
	results, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.server,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: query %q failed: %w", c.name, err)
	}

	cands := make([]candidate, 0, len(results))
	for _, r := range results {
		p, seq := passageFromPayload(r.GetPayload())
		cands = append(cands, candidate{passage: p, score: r.GetScore(), seq: seq})
	}
	return topK(cands, k), nil
}

func (c *qdrantCollection) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(pointID(c.name, id)))
	}
	_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: c.server,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete from %q failed: %w", c.name, err)
	}
	return nil
}

func (c *qdrantCollection) SourceIDs(ctx context.Context, sourceID string) ([]string, error) {
	var (
		matched []candidate
		offset  *qdrant.PointId
	)
	for {
		page, next, err := c.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: c.server,
			Filter: &qdrant.Filter{
				Must: []*qdrant.Condition{qdrant.NewMatch(payloadSourceID, sourceID)},
			},
			Offset:      offset,
			Limit:       qdrant.PtrOf(uint32(scrollPage)),
			WithPayload: qdrant.NewWithPayloadInclude(payloadPassageID, payloadSeq),
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant: source ids %q: %w", c.name, err)
		}
		for _, pt := range page {
			pl := pt.GetPayload()
			matched = append(matched, candidate{
				passage: rag.Passage{ID: pl[payloadPassageID].GetStringValue()},
				seq:     pl[payloadSeq].GetIntegerValue(),
			})
		}
		if next == nil {
			break
		}
		offset = next
	}
	return idsBySeq(matched), nil
}

func (c *qdrantCollection) Count(ctx context.Context) (int, error) {
	n, err := c.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: c.server,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count %q: %w", c.name, err)
	}
	return int(n), nil
}

// passageFromPayload rebuilds a passage and its seq from a point payload.
func passageFromPayload(pl map[string]*qdrant.Value) (rag.Passage, int64) {
	p := rag.Passage{
		ID:   pl[payloadPassageID].GetStringValue(),
		Text: pl[payloadText].GetStringValue(),
	}
	if st := pl[payloadMetadata].GetStructValue(); st != nil && len(st.GetFields()) > 0 {
		p.Metadata = make(map[string]any, len(st.GetFields()))
		for k, v := range st.GetFields() {
			if val := convertQdrantValue(v); val != nil {
				p.Metadata[k] = val
			}
		}
	}
	return p, pl[payloadSeq].GetIntegerValue()
}

// convertQdrantValue maps scalar payload values back to Go values. Lists,
// structs and nulls are not valid metadata and yield nil.
func convertQdrantValue(v *qdrant.Value) any {
	switch val := v.GetKind().(type) {
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_StringValue:
		return val.StringValue
	default:
		return nil
	}
}
