package vectordb

import (
	"context"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"
)

var keywords = []string{"baggage", "refund", "dragon", "castle", "pet"}

// keywordEmbedder embeds text as keyword counts so similarity is predictable.
type keywordEmbedder struct {
	calls  int
	inputs []string
	err    error
}

func (k *keywordEmbedder) CreateEmbeddings(_ context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	k.calls++
	if k.err != nil {
		return openai.EmbeddingResponse{}, k.err
	}
	req := conv.Convert()
	input, ok := req.Input.([]string)
	if !ok {
		return openai.EmbeddingResponse{}, errors.New("unexpected input type")
	}
	k.inputs = append(k.inputs, input...)
	resp := openai.EmbeddingResponse{}
	for i, text := range input {
		resp.Data = append(resp.Data, openai.Embedding{Index: i, Embedding: keywordVector(text)})
	}
	return resp, nil
}

func keywordVector(text string) []float32 {
	lower := strings.ToLower(text)
	vec := make([]float32, len(keywords)+1)
	for i, kw := range keywords {
		vec[i] = float32(strings.Count(lower, kw))
	}
	vec[len(keywords)] = 0.01
	return vec
}
