package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleTools = `
primary_agent:
  llm: gpt-4o-mini
swiss_airline_policy_rag:
  unstructured_docs: data/unstructured_docs/swiss_airline_policy
  vectordb: data/swiss_airline_policy_vectordb
  collection_name: rag-chroma
  chunk_size: 500
  chunk_overlap: 100
  embedding_model: text-embedding-3-small
  k: 2
stories_rag:
  unstructured_docs: data/unstructured_docs/stories
  vectordb: data/stories_vectordb
  collection_name: stories-rag-chroma
  chunk_size: 500
  chunk_overlap: 100
  embedding_model: text-embedding-3-small
`

func TestLoadTools(t *testing.T) {
	tc, err := LoadTools(writeTemp(t, "tools.yml", sampleTools))
	require.NoError(t, err)
	require.Equal(t, []string{SwissAirlinePolicy, Stories}, tc.Names())

	swiss, err := tc.Collection(SwissAirlinePolicy)
	require.NoError(t, err)
	require.Equal(t, "Swiss Airline Policy", swiss.Title)
	require.Equal(t, 500, swiss.ChunkSize)
	require.Equal(t, 100, swiss.ChunkOverlap)
	require.Equal(t, "rag-chroma", swiss.CollectionName)
	require.Equal(t, 2, swiss.K)
	require.NoError(t, swiss.Validate())

	stories, err := tc.Collection(Stories)
	require.NoError(t, err)
	require.Equal(t, 3, stories.K, "k defaults to 3")
}

func TestLoadTools_UnknownCollection(t *testing.T) {
	tc, err := LoadTools(writeTemp(t, "tools.yml", sampleTools))
	require.NoError(t, err)

	_, err = tc.Collection("nope_rag")
	require.ErrorIs(t, err, ErrUnknownCollection)
}

func TestLoadTools_MissingFile(t *testing.T) {
	_, err := LoadTools(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
}

func TestCollectionConfig_Validate(t *testing.T) {
	base := CollectionConfig{
		UnstructuredDocs: "docs", VectorDB: "db", CollectionName: "c",
		ChunkSize: 100, ChunkOverlap: 10, EmbeddingModel: "m",
	}
	require.NoError(t, base.Validate())

	bad := base
	bad.ChunkSize = 0
	require.Error(t, bad.Validate())

	bad = base
	bad.ChunkOverlap = 100
	require.Error(t, bad.Validate())

	bad = base
	bad.ChunkOverlap = -1
	require.Error(t, bad.Validate())

	bad = base
	bad.CollectionName = ""
	require.Error(t, bad.Validate())
}

func TestResolve(t *testing.T) {
	require.Equal(t, filepath.Join("/srv", "data/x"), Resolve("/srv", "data/x"))
	require.Equal(t, "/abs/x", Resolve("/srv", "/abs/x"))
	require.Equal(t, "s3://bucket/prefix", Resolve("/srv", "s3://bucket/prefix"))
	require.Equal(t, "", Resolve("/srv", ""))
}
