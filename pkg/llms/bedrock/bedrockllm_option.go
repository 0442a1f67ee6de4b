package bedrock

// Amazon models served through cross-region inference profiles.
const (
	ModelAmazonNovaMicroV1 = "us.amazon.nova-micro-v1:0"
	ModelAmazonNovaLiteV1  = "us.amazon.nova-lite-v1:0"
	ModelAmazonNovaProV1   = "us.amazon.nova-pro-v1:0"
)

// Anthropic models.
const (
	ModelAnthropicClaude3Haiku     = "anthropic.claude-3-haiku-20240307-v1:0"
	ModelAnthropicClaude35SonnetV2 = "us.anthropic.claude-3-5-sonnet-20241022-v2:0"
)

// Option is an option for the Bedrock LLM.
type Option func(*options)

type options struct {
	modelID string
	region  string
	client  ConverseAPI
}

// WithModel allows setting a custom modelId.
//
// If not set, the default model is used
// i.e. "us.amazon.nova-lite-v1:0".
func WithModel(modelID string) Option {
	return func(o *options) {
		o.modelID = modelID
	}
}

// WithRegion sets the AWS region used when the client is created
// from the default AWS configuration.
func WithRegion(region string) Option {
	return func(o *options) {
		o.region = region
	}
}

// WithClient allows setting a custom Bedrock runtime client,
// for example *bedrockruntime.Client configured by the caller.
func WithClient(client ConverseAPI) Option {
	return func(o *options) {
		o.client = client
	}
}
