package mongostore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcoord/knowledge"
)

// 需要真实 MongoDB：AGENTCOORD_TEST_MONGO_URI=mongodb://localhost:27017
func newTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("AGENTCOORD_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("AGENTCOORD_TEST_MONGO_URI not set")
	}

	dbName := "agentcoord_test_" + uuid.NewString()[:8]
	s, err := Connect(context.Background(), uri, dbName, 5*time.Second, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.client.Database(dbName).Drop(context.Background())
		_ = s.Close()
	})
	return s
}

func TestConnect_Validation(t *testing.T) {
	_, err := Connect(context.Background(), "", "db", time.Second, nil)
	assert.Error(t, err)
	_, err = Connect(context.Background(), "mongodb://localhost:27017", "", time.Second, nil)
	assert.Error(t, err)
}

func TestRelationshipID(t *testing.T) {
	assert.Equal(t, "a|b", relationshipID("a", "b"))
}

func TestStore_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, s.SaveConcept(ctx, knowledge.Concept{
		ID: "a", Name: "A", Keywords: []string{"x"}, CreatedAt: now, Metadata: map[string]any{"k": "v"},
	}))
	require.NoError(t, s.SaveConcept(ctx, knowledge.Concept{ID: "b", Name: "B", CreatedAt: now}))
	require.NoError(t, s.SaveConcept(ctx, knowledge.Concept{ID: "a", Name: "A2", Keywords: []string{"y"}, CreatedAt: now}))
	require.NoError(t, s.SaveRelationship(ctx, knowledge.Relationship{A: "a", B: "b", Type: "related", Strength: 0.5, CreatedAt: now}))
	require.NoError(t, s.SaveRelationship(ctx, knowledge.Relationship{A: "a", B: "b", Type: "uses", Strength: 0.8, CreatedAt: now}))

	concepts, rels, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, concepts, 2)
	assert.Equal(t, "A2", concepts[0].Name)
	assert.Equal(t, []string{"y"}, concepts[0].Keywords)
	assert.True(t, now.Equal(concepts[0].CreatedAt))
	require.Len(t, rels, 1)
	assert.Equal(t, "uses", rels[0].Type)
}
