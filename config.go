package dietagent

type ModelConfig struct {
	ModelID     string  `env:"MODEL_ID,required"`
	MaxTokens   int32   `env:"MAX_TOKENS,default=2048"`
	Temperature float32 `env:"TEMPERATURE,default=0.2"`
	TopP        float32 `env:"TOP_P,default=0.9"`
}

type AgentConfig struct {
	MaxCorrections       int    `env:"MAX_CORRECTIONS,default=2"`
	ArtifactsTargetsPath string `env:"ARTIFACTS_TARGETS_PATH,default=artifacts/targets.json"`
	ArtifactsPlansDir    string `env:"ARTIFACTS_PLANS_DIR,default=artifacts/plans"`
	BaseOllamaEndpoint   string `env:"BASE_OLLAMA_ENDPOINT,default=http://localhost:11434"`
	SlackWebhookURL      string `env:"SLACK_WEBHOOK_URL"`
	SlackChannel         string `env:"SLACK_CHANNEL,default=#meal-plans"`
	DebugDump            bool   `env:"DEBUG_DUMP,default=false"`
}

// S3Config locates accepted plans in S3 for the Lambda deployment.
type S3Config struct {
	Bucket     string `env:"ARTIFACTS_S3_BUCKET,required"`
	PlanPrefix string `env:"ARTIFACTS_PLANS_S3_PREFIX,default=plans"`
}
