// Package gormstore persists the knowledge graph through GORM.
//
// The schema is owned by internal/migration; WithAutoMigrate is meant for
// tests and throwaway databases.
package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/agentcoord/internal/database"
	"github.com/BaSui01/agentcoord/knowledge"
)

// ConceptRecord knowledge_concepts 表
type ConceptRecord struct {
	ID          string    `gorm:"primaryKey;size:128"`
	Name        string    `gorm:"size:255;not null;index:idx_knowledge_concepts_name"`
	Description string    `gorm:"type:text;not null"`
	Keywords    string    `gorm:"type:text;not null"` // JSON 数组
	Metadata    string    `gorm:"type:text;not null"` // JSON 对象
	CreatedBy   string    `gorm:"size:128;not null"`
	UsageCount  int64     `gorm:"not null;default:0"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (ConceptRecord) TableName() string {
	return "knowledge_concepts"
}

// RelationshipRecord knowledge_relationships 表，(concept_a, concept_b) 有序且唯一
type RelationshipRecord struct {
	ConceptA     string    `gorm:"column:concept_a;primaryKey;size:128"`
	ConceptB     string    `gorm:"column:concept_b;primaryKey;size:128;index:idx_knowledge_relationships_b"`
	RelationType string    `gorm:"size:64;not null"`
	Strength     float64   `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (RelationshipRecord) TableName() string {
	return "knowledge_relationships"
}

// Store implements knowledge.Store on a PoolManager.
type Store struct {
	pool   *database.PoolManager
	logger *zap.Logger
}

var _ knowledge.Store = (*Store)(nil)

// Option configures New.
type Option func(*options)

type options struct {
	autoMigrate bool
}

// WithAutoMigrate creates the tables with GORM instead of the embedded migrations.
func WithAutoMigrate() Option {
	return func(o *options) { o.autoMigrate = true }
}

// New wraps pool. The pool is owned by the store and closed with it.
func New(pool *database.PoolManager, logger *zap.Logger, opts ...Option) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("gormstore: pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.autoMigrate {
		if err := pool.DB().AutoMigrate(&ConceptRecord{}, &RelationshipRecord{}); err != nil {
			return nil, fmt.Errorf("gormstore: auto migrate: %w", err)
		}
	}
	return &Store{pool: pool, logger: logger.With(zap.String("component", "knowledge_gormstore"))}, nil
}

// conceptUpdateColumns 覆盖时更新的列；usage_count 只由 IncrementUsage 维护
var conceptUpdateColumns = []string{
	"name", "description", "keywords", "metadata", "created_by", "created_at", "updated_at",
}

// SaveConcept upserts c. An existing row keeps its usage_count.
func (s *Store) SaveConcept(ctx context.Context, c knowledge.Concept) error {
	rec, err := toConceptRecord(c)
	if err != nil {
		return err
	}
	err = s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(conceptUpdateColumns),
		}).Create(&rec).Error
	})
	if err != nil {
		return fmt.Errorf("save concept %s: %w", c.ID, err)
	}
	return nil
}

// IncrementUsage bumps usage_count in place. Unknown ids are a no-op.
func (s *Store) IncrementUsage(ctx context.Context, id string, delta int) error {
	err := s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		return tx.Model(&ConceptRecord{}).
			Where("id = ?", id).
			UpdateColumn("usage_count", gorm.Expr("usage_count + ?", delta)).Error
	})
	if err != nil {
		return fmt.Errorf("increment usage %s: %w", id, err)
	}
	return nil
}

// SaveRelationship upserts r keyed by its ordered endpoint pair.
func (s *Store) SaveRelationship(ctx context.Context, r knowledge.Relationship) error {
	rec := RelationshipRecord{
		ConceptA:     r.A,
		ConceptB:     r.B,
		RelationType: r.Type,
		Strength:     r.Strength,
		CreatedAt:    r.CreatedAt,
	}
	err := s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "concept_a"}, {Name: "concept_b"}},
			DoUpdates: clause.AssignmentColumns([]string{"relation_type", "strength", "created_at"}),
		}).Create(&rec).Error
	})
	if err != nil {
		return fmt.Errorf("save relationship %s-%s: %w", r.A, r.B, err)
	}
	return nil
}

// Load reads the whole graph.
func (s *Store) Load(ctx context.Context) ([]knowledge.Concept, []knowledge.Relationship, error) {
	db := s.pool.DB().WithContext(ctx)

	var crecs []ConceptRecord
	if err := db.Order("id").Find(&crecs).Error; err != nil {
		return nil, nil, fmt.Errorf("load concepts: %w", err)
	}
	var rrecs []RelationshipRecord
	if err := db.Order("concept_a, concept_b").Find(&rrecs).Error; err != nil {
		return nil, nil, fmt.Errorf("load relationships: %w", err)
	}

	concepts := make([]knowledge.Concept, 0, len(crecs))
	for _, rec := range crecs {
		c, err := fromConceptRecord(rec)
		if err != nil {
			s.logger.Warn("skipping undecodable concept", zap.String("concept_id", rec.ID), zap.Error(err))
			continue
		}
		concepts = append(concepts, c)
	}
	rels := make([]knowledge.Relationship, 0, len(rrecs))
	for _, rec := range rrecs {
		rels = append(rels, knowledge.Relationship{
			A:         rec.ConceptA,
			B:         rec.ConceptB,
			Type:      rec.RelationType,
			Strength:  rec.Strength,
			CreatedAt: rec.CreatedAt,
		})
	}

	s.logger.Debug("knowledge graph loaded",
		zap.Int("concepts", len(concepts)),
		zap.Int("relationships", len(rels)))
	return concepts, rels, nil
}

// Ping checks the underlying connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

func toConceptRecord(c knowledge.Concept) (ConceptRecord, error) {
	keywords := c.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	kw, err := json.Marshal(keywords)
	if err != nil {
		return ConceptRecord{}, fmt.Errorf("encode keywords: %w", err)
	}
	metadata := c.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	md, err := json.Marshal(metadata)
	if err != nil {
		return ConceptRecord{}, fmt.Errorf("encode metadata for %s: %w", c.ID, err)
	}
	return ConceptRecord{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		Keywords:    string(kw),
		Metadata:    string(md),
		CreatedBy:   c.CreatedBy,
		UsageCount:  int64(c.UsageCount),
		CreatedAt:   c.CreatedAt,
	}, nil
}

func fromConceptRecord(rec ConceptRecord) (knowledge.Concept, error) {
	c := knowledge.Concept{
		ID:          rec.ID,
		Name:        rec.Name,
		Description: rec.Description,
		CreatedBy:   rec.CreatedBy,
		CreatedAt:   rec.CreatedAt,
		UsageCount:  int(rec.UsageCount),
	}
	if err := json.Unmarshal([]byte(rec.Keywords), &c.Keywords); err != nil {
		return c, fmt.Errorf("decode keywords: %w", err)
	}
	if err := json.Unmarshal([]byte(rec.Metadata), &c.Metadata); err != nil {
		return c, fmt.Errorf("decode metadata: %w", err)
	}
	if len(c.Metadata) == 0 {
		c.Metadata = nil
	}
	return c, nil
}
