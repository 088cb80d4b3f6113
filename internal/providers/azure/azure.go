// Package azure builds authenticated Azure OpenAI clients and exposes the
// chat, vision and DALL-E operations the design assistant needs.
//
// Authentication is either an Azure AD bearer token (scope
// https://cognitiveservices.azure.com/.default) or a static api-key. Under
// api-key auth a backup key may be configured; SwitchToBackupKey rebuilds the
// client with it once the primary key is rate limited.
//
// Deployments are addressed through the request's model field, which the SDK's
// azure middleware rewrites to /openai/deployments/{deployment}/....
package azure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	openaiSDK "github.com/openai/openai-go/v3"
	sdkazure "github.com/openai/openai-go/v3/azure"
	"github.com/openai/openai-go/v3/option"

	"github.com/redai/design-gateway/internal/providers"
)

// Auth modes reported by ServiceInfo.
const (
	AuthAzureAD = "azure_ad"
	AuthAPIKey  = "api_key"
)

const (
	defaultAPIVersion      = "2024-04-01-preview"
	defaultDeployment      = "gpt-4.1"
	defaultDalleDeployment = "dall-e-3"

	visionMaxTokens = 1000
)

// User-facing messages for the common upstream failures.
const (
	msgAuthFailed = "Authentication failed. Please check your Azure OpenAI API key and endpoint configuration."
	msgForbidden  = "Access forbidden. Please check your Azure OpenAI permissions and quotas."
	msgRateLimit  = "Rate limit exceeded. Please try again later or check your quota."
)

// ErrNotConfigured is returned by New when neither api-key nor Azure AD auth
// can be set up, or the endpoint is missing.
var ErrNotConfigured = errors.New("azure: Azure OpenAI service not configured properly")

// Config is the Azure OpenAI client configuration.
type Config struct {
	Endpoint        string
	APIKey          string
	BackupKey       string
	APIVersion      string
	Deployment      string
	DalleDeployment string
	UseAzureAD      bool
}

type (
	// ChatResult is the outcome of a chat completion.
	ChatResult struct {
		Content    string
		TokensUsed int
	}

	// VisionResult is the outcome of an image analysis call.
	VisionResult struct {
		Analysis   string
		TokensUsed int
	}
)

// Client is safe for concurrent use. The active SDK client is swapped under
// mu when the backup key is activated.
type Client struct {
	cfg        Config
	logger     *slog.Logger
	httpClient *http.Client
	credential azcore.TokenCredential
	maxRetries int

	mu          sync.RWMutex
	client      openaiSDK.Client
	authMode    string
	adAvailable bool
	usingBackup bool
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithCredential injects the token credential used under Azure AD auth
// instead of the default credential chain.
func WithCredential(cred azcore.TokenCredential) Option {
	return func(cl *Client) { cl.credential = cred }
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithMaxRetries overrides the SDK's automatic retry count.
func WithMaxRetries(n int) Option {
	return func(cl *Client) { cl.maxRetries = n }
}

// New builds a client. Azure AD is attempted first when cfg.UseAzureAD is set;
// if no credential can be obtained the client falls back to api-key auth.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.Deployment == "" {
		cfg.Deployment = defaultDeployment
	}
	if cfg.DalleDeployment == "" {
		cfg.DalleDeployment = defaultDalleDeployment
	}
	if cfg.Endpoint != "" && !strings.HasSuffix(cfg.Endpoint, "/") {
		cfg.Endpoint += "/"
	}

	c := &Client{
		cfg:        cfg,
		logger:     slog.Default(),
		httpClient: &http.Client{Timeout: providers.ProviderTimeout},
		maxRetries: -1,
	}
	for _, o := range opts {
		o(c)
	}

	if cfg.Endpoint == "" {
		return nil, ErrNotConfigured
	}

	if cfg.UseAzureAD {
		cred := c.credential
		if cred == nil {
			var err error
			cred, err = azidentity.NewDefaultAzureCredential(nil)
			if err != nil {
				c.logger.Warn("azure_ad_credential_unavailable",
					slog.String("error", err.Error()),
					slog.Bool("api_key_fallback", cfg.APIKey != ""),
				)
				cred = nil
			}
		}
		if cred != nil {
			c.credential = cred
			c.adAvailable = true
			c.authMode = AuthAzureAD
			c.client = c.newSDKClient(sdkazure.WithTokenCredential(cred))
			return c, nil
		}
	}

	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	c.authMode = AuthAPIKey
	c.client = c.newSDKClient(sdkazure.WithAPIKey(cfg.APIKey))
	return c, nil
}

func (c *Client) newSDKClient(auth option.RequestOption) openaiSDK.Client {
	opts := []option.RequestOption{
		sdkazure.WithEndpoint(c.cfg.Endpoint, c.cfg.APIVersion),
		auth,
		option.WithHTTPClient(c.httpClient),
	}
	if c.maxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(c.maxRetries))
	}
	return openaiSDK.NewClient(opts...)
}

func (c *Client) sdk() openaiSDK.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

func (c *Client) Name() string { return providers.Azure }

// ChatCompletion sends messages to the chat deployment.
func (c *Client) ChatCompletion(ctx context.Context, msgs []providers.Message, maxTokens int, temperature float64) (*ChatResult, error) {
	params := openaiSDK.ChatCompletionNewParams{
		Model:    c.cfg.Deployment,
		Messages: make([]openaiSDK.ChatCompletionMessageParamUnion, 0, len(msgs)),
	}
	for _, m := range msgs {
		params.Messages = append(params.Messages, toSDKMessage(m.Role, m.Content))
	}
	if maxTokens > 0 {
		params.MaxTokens = openaiSDK.Int(int64(maxTokens))
	}
	if temperature > 0 {
		params.Temperature = openaiSDK.Float(temperature)
	}

	client := c.sdk()
	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, toProviderError(err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	return &ChatResult{Content: content, TokensUsed: int(resp.Usage.TotalTokens)}, nil
}

// AnalyzeImage asks the chat deployment to describe a JPEG given as base64.
func (c *Client) AnalyzeImage(ctx context.Context, imageBase64, prompt string) (*VisionResult, error) {
	params := openaiSDK.ChatCompletionNewParams{
		Model: c.cfg.Deployment,
		Messages: []openaiSDK.ChatCompletionMessageParamUnion{
			openaiSDK.UserMessage([]openaiSDK.ChatCompletionContentPartUnionParam{
				openaiSDK.TextContentPart(prompt),
				openaiSDK.ImageContentPart(openaiSDK.ChatCompletionContentPartImageImageURLParam{
					URL:    "data:image/jpeg;base64," + imageBase64,
					Detail: "high",
				}),
			}),
		},
		MaxTokens: openaiSDK.Int(visionMaxTokens),
	}

	client := c.sdk()
	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, toProviderError(err)
	}

	analysis := ""
	if len(resp.Choices) > 0 {
		analysis = resp.Choices[0].Message.Content
	}
	return &VisionResult{Analysis: analysis, TokensUsed: int(resp.Usage.TotalTokens)}, nil
}

// GenerateImage renders one 1024x1024 image with the DALL-E deployment.
func (c *Client) GenerateImage(ctx context.Context, req providers.DalleRequest) (*providers.GeneratedImage, error) {
	style := req.Style
	if style == "" {
		style = "vivid"
	}
	quality := req.Quality
	if quality == "" {
		quality = "standard"
	}

	params := openaiSDK.ImageGenerateParams{
		Prompt:         req.Prompt,
		Model:          openaiSDK.ImageModel(c.cfg.DalleDeployment),
		N:              openaiSDK.Int(1),
		Size:           openaiSDK.ImageGenerateParamsSize1024x1024,
		ResponseFormat: openaiSDK.ImageGenerateParamsResponseFormatURL,
		Style:          openaiSDK.ImageGenerateParamsStyle(style),
		Quality:        openaiSDK.ImageGenerateParamsQuality(quality),
	}

	client := c.sdk()
	resp, err := client.Images.Generate(ctx, params)
	if err != nil {
		return nil, toProviderError(err)
	}
	if len(resp.Data) == 0 {
		return nil, &providers.ProviderError{Provider: providers.Azure, Message: "no image data in response"}
	}

	return &providers.GeneratedImage{
		URL:           resp.Data[0].URL,
		RevisedPrompt: resp.Data[0].RevisedPrompt,
		Model:         c.cfg.DalleDeployment,
	}, nil
}

// SwitchToBackupKey rebuilds the client with the backup key. It reports
// whether a switch happened; it is a no-op under Azure AD auth, without a
// backup key, or when the backup key is already active.
func (c *Client) SwitchToBackupKey() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.authMode != AuthAPIKey || c.cfg.BackupKey == "" || c.usingBackup {
		return false
	}

	c.client = c.newSDKClient(sdkazure.WithAPIKey(c.cfg.BackupKey))
	c.usingBackup = true
	c.logger.Info("azure_backup_key_activated")
	return true
}

// ServiceInfo describes the client configuration for /health.
func (c *Client) ServiceInfo() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return map[string]any{
		"endpoint":           c.cfg.Endpoint,
		"api_version":        c.cfg.APIVersion,
		"deployment_name":    c.cfg.Deployment,
		"dalle_deployment":   c.cfg.DalleDeployment,
		"use_azure_ad":       c.cfg.UseAzureAD,
		"azure_ad_available": c.adAvailable,
		"configured":         true,
		"has_api_key":        c.cfg.APIKey != "",
		"has_endpoint":       c.cfg.Endpoint != "",
		"config_valid":       true,
		"auth_mode":          c.authMode,
		"using_backup_key":   c.usingBackup,
	}
}

func (c *Client) HealthCheck(ctx context.Context) error {
	client := c.sdk()
	if _, err := client.Models.List(ctx); err != nil {
		return fmt.Errorf("azure: health check: %w", toProviderError(err))
	}
	return nil
}

// IsRateLimited reports whether err is an upstream 429.
func IsRateLimited(err error) bool {
	var perr *providers.ProviderError
	return errors.As(err, &perr) && perr.StatusCode == http.StatusTooManyRequests
}

func toProviderError(err error) error {
	var apierr *openaiSDK.Error
	if !errors.As(err, &apierr) {
		return err
	}

	msg := apierr.Error()
	switch {
	case apierr.StatusCode == http.StatusUnauthorized || strings.Contains(msg, "Access denied"):
		msg = msgAuthFailed
	case apierr.StatusCode == http.StatusForbidden:
		msg = msgForbidden
	case apierr.StatusCode == http.StatusTooManyRequests:
		msg = msgRateLimit
	}
	return &providers.ProviderError{
		Provider:   providers.Azure,
		StatusCode: apierr.StatusCode,
		Message:    msg,
	}
}

func toSDKMessage(role, content string) openaiSDK.ChatCompletionMessageParamUnion {
	switch strings.ToLower(role) {
	case "system":
		return openaiSDK.SystemMessage(content)
	case "assistant":
		return openaiSDK.AssistantMessage(content)
	default:
		return openaiSDK.UserMessage(content)
	}
}
