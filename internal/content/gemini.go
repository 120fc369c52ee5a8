package content

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/schema-quest/internal/domain"
)

const maxResponseBytes = 32 << 20

// Config configures the Gemini REST client.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	SpeechModel string
	Voice       string
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Client calls the Gemini generateContent endpoint. It does not retry;
// wrap it with WithRetry for the resilient behaviour.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
	system string
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("content api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "gemini-3-flash-preview"
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = "gemini-2.5-flash-preview-tts"
	}
	if cfg.Voice == "" {
		cfg.Voice = "Kore"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	system, err := systemPrompt()
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger, system: system}, nil
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type wireContent struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type prebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoice `json:"prebuiltVoiceConfig"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type generationConfig struct {
	ResponseMimeType   string        `json:"responseMimeType,omitempty"`
	ResponseSchema     *Schema       `json:"responseSchema,omitempty"`
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type generateRequest struct {
	SystemInstruction *wireContent      `json:"systemInstruction,omitempty"`
	Contents          []wireContent     `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type candidate struct {
	Content      wireContent `json:"content"`
	FinishReason string      `json:"finishReason"`
}

type generateResponse struct {
	Candidates     []candidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *Client) doGenerate(ctx context.Context, model string, body generateRequest) (*generateResponse, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := c.cfg.BaseURL + "/v1beta/models/" + model + ":generateContent"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("content request: %w", err)
	}
	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("read content response: %w", readErr)
	}

	c.logger.Debug("content call", "model", model, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var env errorEnvelope
		if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
			apiErr.Message = env.Error.Message
			apiErr.Status = env.Error.Status
		}
		return nil, apiErr
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", ErrMalformedResponse, err)
	}
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: prompt blocked: %s", ErrMalformedResponse, out.PromptFeedback.BlockReason)
	}
	if len(out.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates", ErrMalformedResponse)
	}
	return &out, nil
}

// generateJSON sends prompt with a response schema and decodes the JSON
// answer into out.
func (c *Client) generateJSON(ctx context.Context, prompt string, schema *Schema, out any) error {
	resp, err := c.doGenerate(ctx, c.cfg.Model, generateRequest{
		SystemInstruction: &wireContent{Parts: []part{{Text: c.system}}},
		Contents:          []wireContent{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   schema,
		},
	})
	if err != nil {
		return err
	}

	var text strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	jsonText := strings.TrimSpace(text.String())
	if jsonText == "" {
		return fmt.Errorf("%w: empty text", ErrMalformedResponse)
	}
	if err := json.Unmarshal([]byte(jsonText), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func (c *Client) ExtractFields(ctx context.Context, sourceName, content, mimeType string) ([]domain.Field, error) {
	prompt, err := render("extract.tmpl", map[string]any{
		"SourceName": sourceName,
		"MimeType":   mimeType,
		"Content":    preview(content, extractPreviewChars),
	})
	if err != nil {
		return nil, err
	}
	var wire []fieldWire
	if err := c.generateJSON(ctx, prompt, fieldsSchema, &wire); err != nil {
		return nil, fmt.Errorf("extract fields: %w", err)
	}
	return fieldsFromWire(wire)
}

func (c *Client) GenerateQuestion(ctx context.Context, fields []domain.Field, decisions []domain.DecisionRecord, tier domain.Tier) (*domain.PendingQuestion, error) {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
	}
	prompt, err := render("question.tmpl", map[string]any{
		"Tier":       tier,
		"FieldNames": names,
		"Decisions":  decisions,
	})
	if err != nil {
		return nil, err
	}
	var wire questionWire
	if err := c.generateJSON(ctx, prompt, questionSchema, &wire); err != nil {
		return nil, fmt.Errorf("generate question: %w", err)
	}
	return questionFromWire(wire, tier)
}

func (c *Client) RefineQuestion(ctx context.Context, current *domain.PendingQuestion, note string, tier domain.Tier) (*domain.PendingQuestion, error) {
	if current == nil {
		return nil, errors.New("refine: no question")
	}
	prompt, err := render("refine.tmpl", map[string]any{
		"Tier":     tier,
		"Question": current,
		"Note":     note,
	})
	if err != nil {
		return nil, err
	}
	var wire questionWire
	if err := c.generateJSON(ctx, prompt, questionSchema, &wire); err != nil {
		return nil, fmt.Errorf("refine question: %w", err)
	}
	return questionFromWire(wire, tier)
}

func (c *Client) GenerateDecisionCard(ctx context.Context, field, decision, rationale string, tier domain.Tier, sequenceID int) (*domain.DecisionAnnotation, error) {
	prompt, err := render("card.tmpl", map[string]any{
		"Field":      field,
		"Decision":   decision,
		"Rationale":  rationale,
		"Tier":       tier,
		"SequenceID": sequenceID,
	})
	if err != nil {
		return nil, err
	}
	var wire cardWire
	if err := c.generateJSON(ctx, prompt, cardSchema, &wire); err != nil {
		return nil, fmt.Errorf("decision card: %w", err)
	}
	return cardFromWire(wire, field, decision, rationale, tier), nil
}

func (c *Client) SynthesizeFinalPackage(ctx context.Context, fields []domain.Field, decisions []domain.DecisionRecord) (*domain.FinalPackage, error) {
	prompt, err := render("package.tmpl", map[string]any{
		"Fields":    fields,
		"Decisions": decisions,
	})
	if err != nil {
		return nil, err
	}
	var wire packageWire
	if err := c.generateJSON(ctx, prompt, packageSchema, &wire); err != nil {
		return nil, fmt.Errorf("final package: %w", err)
	}
	return packageFromWire(wire)
}

func (c *Client) SynthesizeSpeech(ctx context.Context, text string) (domain.PCM, error) {
	prompt, err := render("speech.tmpl", map[string]any{"Text": text})
	if err != nil {
		return nil, err
	}
	resp, err := c.doGenerate(ctx, c.cfg.SpeechModel, generateRequest{
		Contents: []wireContent{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoice{VoiceName: c.cfg.Voice}},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("speech: %w", err)
	}
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.InlineData == nil || p.InlineData.Data == "" {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: audio payload: %v", ErrMalformedResponse, err)
		}
		pcm := domain.PCM(raw)
		if err := pcm.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return pcm, nil
	}
	return nil, fmt.Errorf("%w: no audio returned", ErrMalformedResponse)
}
