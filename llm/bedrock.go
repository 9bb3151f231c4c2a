package llm

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/quillagent/quill/errors"
	"github.com/quillagent/quill/session"
	"github.com/quillagent/quill/tools"
)

// BedrockClient is a client for Anthropic models hosted on AWS Bedrock. It
// speaks the raw anthropic messages JSON over InvokeModel rather than the
// Converse API, which keeps the request shape identical to the direct
// Anthropic backend.
type BedrockClient struct {
	client  *bedrockruntime.Client
	modelID string
}

// NewBedrockClient creates a client from the ambient AWS credential chain.
func NewBedrockClient(ctx context.Context, modelID string) (*BedrockClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Labelf("bedrock", err, "failed to load AWS config")
	}
	return &BedrockClient{
		client:  bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
	}, nil
}

// Chat sends the conversation to the Bedrock-hosted model.
func (b *BedrockClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	body, err := bedrockRequestBody(messages, availableTools)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build Bedrock request")
	}

	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, errors.Labelf("bedrock", err, "failed to invoke Bedrock model")
	}
	return fromBedrockResponse(resp.Body)
}

// bedrockRequestBody builds the anthropic-format request JSON. System
// messages are hoisted into the top-level system field.
func bedrockRequestBody(messages []session.Message, availableTools []tools.Tool) ([]byte, error) {
	var body []map[string]interface{}
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			systemPrompt = msg.Content
		case "user":
			body = append(body, map[string]interface{}{
				"role": "user",
				"content": []map[string]interface{}{
					{"type": "text", "text": msg.Content},
				},
			})
		case "assistant":
			var blocks []map[string]interface{}
			if msg.Content != "" {
				blocks = append(blocks, map[string]interface{}{"type": "text", "text": msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, map[string]interface{}{
					"type":  "tool_use",
					"id":    tc.ToolCallID,
					"name":  tc.Name,
					"input": tc.Args,
				})
			}
			if len(blocks) > 0 {
				body = append(body, map[string]interface{}{"role": "assistant", "content": blocks})
			}
		case "tool":
			if len(msg.ToolCalls) != 1 {
				continue
			}
			body = append(body, map[string]interface{}{
				"role": "user",
				"content": []map[string]interface{}{
					{
						"type":        "tool_result",
						"tool_use_id": msg.ToolCalls[0].ToolCallID,
						"content":     msg.Content,
					},
				},
			})
		}
	}

	request := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        4096,
		"messages":          body,
	}
	if systemPrompt != "" {
		request["system"] = systemPrompt
	}
	if len(availableTools) > 0 {
		var decls []map[string]interface{}
		for _, t := range availableTools {
			props, required := schemaForTool(t)
			schema := map[string]interface{}{
				"type":       "object",
				"properties": props,
			}
			if len(required) > 0 {
				schema["required"] = required
			}
			decls = append(decls, map[string]interface{}{
				"name":         t.Name(),
				"description":  t.Description(),
				"input_schema": schema,
			})
		}
		request["tools"] = decls
	}

	return json.Marshal(request)
}

func fromBedrockResponse(body []byte) (*session.Message, error) {
	var response map[string]interface{}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal Bedrock response")
	}
	if errMsg, ok := response["error"]; ok {
		return nil, errors.New("Bedrock API error: %v", errMsg)
	}

	msg := &session.Message{Role: "assistant"}
	if usage, ok := response["usage"].(map[string]interface{}); ok {
		msg.Usage = &session.Usage{}
		if in, ok := usage["input_tokens"].(float64); ok {
			msg.Usage.InputTokens = int(in)
		}
		if out, ok := usage["output_tokens"].(float64); ok {
			msg.Usage.OutputTokens = int(out)
		}
	}

	content, ok := response["content"].([]interface{})
	if !ok {
		return msg, nil
	}
	for _, item := range content {
		block, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		switch block["type"] {
		case "text":
			if text, ok := block["text"].(string); ok {
				msg.Content += text
			}
		case "tool_use":
			name, _ := block["name"].(string)
			input, _ := block["input"].(map[string]interface{})
			if name == "" {
				continue
			}
			id, _ := block["id"].(string)
			if id == "" {
				id = newCallID()
			}
			msg.ToolCalls = append(msg.ToolCalls, session.ToolCall{
				ToolCallID: id,
				Name:       name,
				Args:       input,
			})
		}
	}
	return msg, nil
}
