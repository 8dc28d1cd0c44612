package storage

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/pgvector/pgvector-go"

	"formcoach/config"
	"formcoach/core"
)

// AngleOrder is the canonical angle layout of a reference-pose vector. All
// backends store and compare vectors in this order.
var AngleOrder = []string{"left_hip", "left_knee", "right_hip", "right_knee"}

const referenceCollection = "reference_poses"

// ReferencePose is one labeled expert pose for an exercise, expressed as the
// joint angles the pipeline measures.
type ReferencePose struct {
	Exercise string           `json:"exercise"`
	Label    string           `json:"label"`
	Angles   core.AngleSample `json:"angles"`
}

// ReferenceMatch is one nearest-reference hit.
type ReferenceMatch struct {
	Label    string  `json:"label"`
	Distance float64 `json:"distance"`
}

// ReferenceStore holds expert reference poses and answers nearest-pose
// queries against them.
type ReferenceStore interface {
	Upsert(ctx context.Context, pose ReferencePose) error
	Nearest(ctx context.Context, exercise string, angles core.AngleSample, topK int) ([]ReferenceMatch, error)
}

// NewReferenceStore selects the backend from configuration, falling back to
// the in-memory store when the configured backend is unreachable.
func NewReferenceStore(ctx context.Context, cfg *config.Config) ReferenceStore {
	kind := "memory"
	if cfg != nil {
		kind = cfg.ReferenceStore
	}
	switch kind {
	case "milvus":
		s, err := NewMilvusReferenceStore(ctx)
		if err != nil {
			log.Printf("Warning: failed to initialize Milvus reference store (%v), falling back to memory store", err)
			return NewMemoryReferenceStore()
		}
		return s
	case "pgvector":
		s, err := NewPgVectorReferenceStore(ctx, cfg.PostgresURL)
		if err != nil {
			log.Printf("Warning: failed to initialize PgVector reference store (%v), falling back to memory store", err)
			return NewMemoryReferenceStore()
		}
		return s
	default:
		return NewMemoryReferenceStore()
	}
}

// angleVector lays the sample out in AngleOrder. Every canonical angle must
// be present; a partial pose cannot be compared fairly.
func angleVector(angles core.AngleSample) ([]float32, error) {
	vec := make([]float32, len(AngleOrder))
	for i, name := range AngleOrder {
		v, ok := angles[name]
		if !ok {
			return nil, fmt.Errorf("reference vector missing angle %q", name)
		}
		vec[i] = float32(v)
	}
	return vec, nil
}

// ---------------- Memory implementation (kept for fallback) ----------------

type MemoryReferenceStore struct {
	mu    sync.RWMutex
	poses map[string][]storedPose // exercise -> poses
}

type storedPose struct {
	label string
	vec   []float32
}

func NewMemoryReferenceStore() *MemoryReferenceStore {
	return &MemoryReferenceStore{poses: map[string][]storedPose{}}
}

func (s *MemoryReferenceStore) Upsert(_ context.Context, pose ReferencePose) error {
	vec, err := angleVector(pose.Angles)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.poses[pose.Exercise] {
		if p.label == pose.Label {
			s.poses[pose.Exercise][i].vec = vec
			return nil
		}
	}
	s.poses[pose.Exercise] = append(s.poses[pose.Exercise], storedPose{label: pose.Label, vec: vec})
	return nil
}

func (s *MemoryReferenceStore) Nearest(_ context.Context, exercise string, angles core.AngleSample, topK int) ([]ReferenceMatch, error) {
	vec, err := angleVector(angles)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]ReferenceMatch, 0, len(s.poses[exercise]))
	for _, p := range s.poses[exercise] {
		matches = append(matches, ReferenceMatch{Label: p.label, Distance: euclidean(vec, p.vec)})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if topK <= 0 || topK > len(matches) {
		topK = len(matches)
	}
	return matches[:topK], nil
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ---------------- Milvus implementation ----------------

type MilvusReferenceStore struct {
	mc  client.Client
	dim int
}

func NewMilvusReferenceStore(ctx context.Context) (*MilvusReferenceStore, error) {
	addr := envOr("MILVUS_ADDR", "localhost:19530")
	mc, err := client.NewClient(ctx, client.Config{
		Address:  addr,
		Username: envOr("MILVUS_USERNAME", ""),
		Password: envOr("MILVUS_PASSWORD", ""),
		APIKey:   envOr("MILVUS_API_KEY", ""),
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}
	s := &MilvusReferenceStore{mc: mc, dim: len(AngleOrder)}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MilvusReferenceStore) ensureCollection(ctx context.Context) error {
	has, err := s.mc.HasCollection(ctx, referenceCollection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if !has {
		schema := entity.NewSchema()
		schema.WithName(referenceCollection)
		schema.WithField(entity.NewField().WithName("id").WithIsAutoID(true).WithIsPrimaryKey(true).WithDataType(entity.FieldTypeInt64))
		schema.WithField(entity.NewField().WithName("exercise").WithDataType(entity.FieldTypeVarChar).WithMaxLength(255))
		schema.WithField(entity.NewField().WithName("label").WithDataType(entity.FieldTypeVarChar).WithMaxLength(255))
		schema.WithField(entity.NewField().WithName("vector").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.dim)))
		if err := s.mc.CreateCollection(ctx, schema, 1); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
		idx, err := entity.NewIndexHNSW(entity.L2, 8, 200)
		if err != nil {
			return fmt.Errorf("build hnsw index: %w", err)
		}
		if err := s.mc.CreateIndex(ctx, referenceCollection, "vector", idx, false); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	if err := s.mc.LoadCollection(ctx, referenceCollection, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return nil
}

func (s *MilvusReferenceStore) Upsert(ctx context.Context, pose ReferencePose) error {
	vec, err := angleVector(pose.Angles)
	if err != nil {
		return err
	}
	// Replace any previous pose with this label.
	expr := fmt.Sprintf("exercise == %q and label == %q", pose.Exercise, pose.Label)
	if err := s.mc.Delete(ctx, referenceCollection, "", expr); err != nil {
		return fmt.Errorf("delete previous reference: %w", err)
	}
	_, err = s.mc.Insert(ctx, referenceCollection, "",
		entity.NewColumnVarChar("exercise", []string{pose.Exercise}),
		entity.NewColumnVarChar("label", []string{pose.Label}),
		entity.NewColumnFloatVector("vector", s.dim, [][]float32{vec}),
	)
	if err != nil {
		return fmt.Errorf("insert reference pose: %w", err)
	}
	return nil
}

func (s *MilvusReferenceStore) Nearest(ctx context.Context, exercise string, angles core.AngleSample, topK int) ([]ReferenceMatch, error) {
	vec, err := angleVector(angles)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 1
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	sp, _ := entity.NewIndexHNSWSearchParam(74)
	filter := fmt.Sprintf("exercise == %q", exercise)
	res, err := s.mc.Search(ctx, referenceCollection, []string{}, filter, []string{"label"},
		[]entity.Vector{entity.FloatVector(vec)}, "vector", entity.L2, topK, sp)
	if err != nil {
		return nil, fmt.Errorf("search references: %w", err)
	}

	var matches []ReferenceMatch
	for _, r := range res {
		var labels *entity.ColumnVarChar
		for _, col := range r.Fields {
			if c, ok := col.(*entity.ColumnVarChar); ok && c.Name() == "label" {
				labels = c
			}
		}
		for i := 0; i < r.ResultCount; i++ {
			m := ReferenceMatch{Distance: float64(r.Scores[i])}
			if labels != nil {
				data := labels.Data()
				if i < len(data) {
					m.Label = data[i]
				}
			}
			matches = append(matches, m)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	return matches, nil
}

// ---------------- PgVector implementation ----------------

type PgVectorReferenceStore struct {
	mu   sync.Mutex // pgx.Conn is not safe for concurrent use
	conn *pgx.Conn
	dim  int
}

func NewPgVectorReferenceStore(ctx context.Context, dbURL string) (*PgVectorReferenceStore, error) {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PgVectorReferenceStore{conn: conn, dim: len(AngleOrder)}
	if err := s.ensureTable(ctx); err != nil {
		conn.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *PgVectorReferenceStore) ensureTable(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS reference_poses (
			id SERIAL PRIMARY KEY,
			exercise VARCHAR(255) NOT NULL,
			label VARCHAR(255) NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE(exercise, label)
		);`, s.dim)
	if _, err := s.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("create reference_poses table: %w", err)
	}
	return nil
}

func (s *PgVectorReferenceStore) Upsert(ctx context.Context, pose ReferencePose) error {
	vec, err := angleVector(pose.Angles)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.conn.Exec(ctx, `
		INSERT INTO reference_poses (exercise, label, embedding)
		VALUES ($1, $2, $3)
		ON CONFLICT (exercise, label) DO UPDATE SET embedding = EXCLUDED.embedding`,
		pose.Exercise, pose.Label, pgvector.NewVector(vec))
	if err != nil {
		return fmt.Errorf("upsert reference pose: %w", err)
	}
	return nil
}

func (s *PgVectorReferenceStore) Nearest(ctx context.Context, exercise string, angles core.AngleSample, topK int) ([]ReferenceMatch, error) {
	vec, err := angleVector(angles)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.Query(ctx, `
		SELECT label, embedding <-> $1 AS distance
		FROM reference_poses
		WHERE exercise = $2
		ORDER BY embedding <-> $1
		LIMIT $3`, pgvector.NewVector(vec), exercise, topK)
	if err != nil {
		return nil, fmt.Errorf("search references: %w", err)
	}
	defer rows.Close()

	var matches []ReferenceMatch
	for rows.Next() {
		var m ReferenceMatch
		if err := rows.Scan(&m.Label, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan reference match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
