// Package mongostore persists the knowledge graph in MongoDB.
//
// Concepts live in the "knowledge_concepts" collection keyed by concept id;
// relationships in "knowledge_relationships" keyed by "<a>|<b>" with a <= b.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcoord/knowledge"
)

const (
	conceptsCollection      = "knowledge_concepts"
	relationshipsCollection = "knowledge_relationships"
)

type conceptDoc struct {
	ID          string         `bson:"_id"`
	Name        string         `bson:"name"`
	Description string         `bson:"description"`
	Keywords    []string       `bson:"keywords"`
	CreatedBy   string         `bson:"created_by"`
	CreatedAt   time.Time      `bson:"created_at"`
	Metadata    map[string]any `bson:"metadata,omitempty"`
	UsageCount  int            `bson:"usage_count"`
}

type relationshipDoc struct {
	ID        string    `bson:"_id"`
	A         string    `bson:"concept_a"`
	B         string    `bson:"concept_b"`
	Type      string    `bson:"relation_type"`
	Strength  float64   `bson:"strength"`
	CreatedAt time.Time `bson:"created_at"`
}

// Store implements knowledge.Store on MongoDB.
type Store struct {
	client        *mongo.Client
	concepts      *mongo.Collection
	relationships *mongo.Collection
	timeout       time.Duration
	logger        *zap.Logger
}

var _ knowledge.Store = (*Store)(nil)

// Connect dials uri and pings the server. timeout bounds every operation
// that arrives without its own deadline.
func Connect(ctx context.Context, uri, database string, timeout time.Duration, logger *zap.Logger) (*Store, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongostore: uri is required")
	}
	if database == "" {
		return nil, fmt.Errorf("mongostore: database is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri).SetTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:        client,
		concepts:      db.Collection(conceptsCollection),
		relationships: db.Collection(relationshipsCollection),
		timeout:       timeout,
		logger:        logger.With(zap.String("component", "knowledge_mongostore")),
	}
	s.logger.Info("connected to mongodb", zap.String("database", database))
	return s, nil
}

// SaveConcept upserts c by id. An existing document keeps its usage_count.
func (s *Store) SaveConcept(ctx context.Context, c knowledge.Concept) error {
	set := bson.D{
		{Key: "name", Value: c.Name},
		{Key: "description", Value: c.Description},
		{Key: "keywords", Value: c.Keywords},
		{Key: "created_by", Value: c.CreatedBy},
		{Key: "created_at", Value: c.CreatedAt},
	}
	update := bson.D{{Key: "$setOnInsert", Value: bson.D{{Key: "usage_count", Value: c.UsageCount}}}}
	if len(c.Metadata) > 0 {
		set = append(set, bson.E{Key: "metadata", Value: c.Metadata})
	} else {
		update = append(update, bson.E{Key: "$unset", Value: bson.D{{Key: "metadata", Value: ""}}})
	}
	update = append(update, bson.E{Key: "$set", Value: set})

	_, err := s.concepts.UpdateOne(ctx, bson.D{{Key: "_id", Value: c.ID}}, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save concept %s: %w", c.ID, err)
	}
	return nil
}

// IncrementUsage applies $inc to usage_count. Unknown ids are a no-op.
func (s *Store) IncrementUsage(ctx context.Context, id string, delta int) error {
	update := bson.D{{Key: "$inc", Value: bson.D{{Key: "usage_count", Value: delta}}}}
	if _, err := s.concepts.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, update); err != nil {
		return fmt.Errorf("increment usage %s: %w", id, err)
	}
	return nil
}

// SaveRelationship upserts r by its ordered endpoint pair.
func (s *Store) SaveRelationship(ctx context.Context, r knowledge.Relationship) error {
	doc := relationshipDoc{
		ID:        relationshipID(r.A, r.B),
		A:         r.A,
		B:         r.B,
		Type:      r.Type,
		Strength:  r.Strength,
		CreatedAt: r.CreatedAt,
	}
	_, err := s.relationships.ReplaceOne(ctx, bson.D{{Key: "_id", Value: doc.ID}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save relationship %s: %w", doc.ID, err)
	}
	return nil
}

// Load reads both collections.
func (s *Store) Load(ctx context.Context) ([]knowledge.Concept, []knowledge.Relationship, error) {
	var cdocs []conceptDoc
	if err := findAll(ctx, s.concepts, &cdocs); err != nil {
		return nil, nil, fmt.Errorf("load concepts: %w", err)
	}
	var rdocs []relationshipDoc
	if err := findAll(ctx, s.relationships, &rdocs); err != nil {
		return nil, nil, fmt.Errorf("load relationships: %w", err)
	}

	concepts := make([]knowledge.Concept, 0, len(cdocs))
	for _, d := range cdocs {
		concepts = append(concepts, knowledge.Concept{
			ID:          d.ID,
			Name:        d.Name,
			Description: d.Description,
			Keywords:    d.Keywords,
			CreatedBy:   d.CreatedBy,
			CreatedAt:   d.CreatedAt,
			Metadata:    d.Metadata,
			UsageCount:  d.UsageCount,
		})
	}
	rels := make([]knowledge.Relationship, 0, len(rdocs))
	for _, d := range rdocs {
		rels = append(rels, knowledge.Relationship{
			A:         d.A,
			B:         d.B,
			Type:      d.Type,
			Strength:  d.Strength,
			CreatedAt: d.CreatedAt,
		})
	}
	return concepts, rels, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func findAll(ctx context.Context, coll *mongo.Collection, out any) error {
	cur, err := coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return err
	}
	return cur.All(ctx, out)
}

func relationshipID(a, b string) string {
	return a + "|" + b
}
