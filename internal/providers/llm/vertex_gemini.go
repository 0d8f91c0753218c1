package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	aiplatformpb "cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	vertexgenai "cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/structpb"
)

type VertexGemini struct {
	client     *vertexgenai.Client
	model      *vertexgenai.GenerativeModel
	prediction *aiplatform.PredictionClient

	embedEndpoint string
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName, embedModel string) (*VertexGemini, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	if embedModel == "" {
		embedModel = "text-embedding-004"
	}

	pc, err := aiplatform.NewPredictionClient(ctx,
		option.WithEndpoint(location+"-aiplatform.googleapis.com:443"))
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	return &VertexGemini{
		client:     c,
		model:      c.GenerativeModel(modelName),
		prediction: pc,
		embedEndpoint: fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s",
			projectID, location, embedModel),
	}, nil
}

func (v *VertexGemini) Close() error {
	err := v.client.Close()
	if perr := v.prediction.Close(); err == nil {
		err = perr
	}
	return err
}

func (v *VertexGemini) Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error) {
	m := v.model
	if opts.MaxTokens > 0 || opts.Temperature > 0 {
		clone := *v.model
		if opts.MaxTokens > 0 {
			clone.SetMaxOutputTokens(opts.MaxTokens)
		}
		if opts.Temperature > 0 {
			clone.SetTemperature(opts.Temperature)
		}
		m = &clone
	}

	resp, err := m.GenerateContent(ctx, vertexgenai.Text(prompt))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(vertexgenai.Text); ok {
				sb.WriteString(string(t))
			}
		}
	}

	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", errors.New("empty completion")
	}
	return out, nil
}

func (v *VertexGemini) Embed(ctx context.Context, text string) ([]float32, error) {
	inst, err := structpb.NewStruct(map[string]any{"content": text})
	if err != nil {
		return nil, err
	}

	resp, err := v.prediction.Predict(ctx, &aiplatformpb.PredictRequest{
		Endpoint:  v.embedEndpoint,
		Instances: []*structpb.Value{structpb.NewStructValue(inst)},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Predictions) == 0 {
		return nil, errors.New("empty embedding response")
	}

	values := resp.Predictions[0].
		GetStructValue().Fields["embeddings"].
		GetStructValue().Fields["values"].
		GetListValue().GetValues()

	out := make([]float32, 0, len(values))
	for _, val := range values {
		out = append(out, float32(val.GetNumberValue()))
	}
	return out, nil
}
