package di

import (
	"flag"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/link-risk-engine/internal/adapters/filter"
	"github.com/mikey/link-risk-engine/internal/config"
	"github.com/mikey/link-risk-engine/internal/factory"
	"github.com/mikey/link-risk-engine/internal/logging"
)

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	// Input flags
	URL         string
	Message     string
	MessageOnly bool
	InputFile   string
	SkipIntel   bool

	// Classifier flags
	Classifier   string
	ModelPath    string
	OpenAIAPIKey string
	GeminiAPIKey string
	BedrockModel string

	// Output flags
	JSON       bool
	Verbose    bool
	JSONLog    bool
	ConfigFile string
}

// NewFlagSet registers the CLI flags on a new flag set
func NewFlagSet(name string, flags *CLIFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	// Input flags
	fs.StringVar(&flags.URL, "url", "", "URL to score")
	fs.StringVar(&flags.Message, "message", "", "Message text accompanying the URL")
	fs.BoolVar(&flags.MessageOnly, "message-only", false, "Analyze the message text without a URL")
	fs.StringVar(&flags.InputFile, "file", "", "Email file whose links are scored (- for stdin)")
	fs.BoolVar(&flags.SkipIntel, "skip-intel", false, "Do not query threat intelligence providers")

	// Classifier flags
	fs.StringVar(&flags.Classifier, "classifier", "", "Message classifier (none, linear, openai, gemini, bedrock)")
	fs.StringVar(&flags.ModelPath, "model-path", "", "Path to the linear classifier model")
	fs.StringVar(&flags.OpenAIAPIKey, "openai-api-key", "", "API key for OpenAI")
	fs.StringVar(&flags.GeminiAPIKey, "gemini-api-key", "", "API key for Google Gemini")
	fs.StringVar(&flags.BedrockModel, "bedrock-model", "", "Bedrock model ID")

	// Output flags
	fs.BoolVar(&flags.JSON, "json", false, "Print the result as JSON")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose output and debug logging")
	fs.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	fs.StringVar(&flags.ConfigFile, "config", "", "Path to config file")

	return fs
}

// ParseFlags parses command line arguments into a CLIFlags struct
func ParseFlags(name string, args []string) (*CLIFlags, error) {
	flags := &CLIFlags{}
	if err := NewFlagSet(name, flags).Parse(args); err != nil {
		return nil, err
	}
	return flags, nil
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		return LoadCLIConfig(flags, logger)
	}); err != nil {
		return nil, err
	}

	if err := provideEngine(container); err != nil {
		return nil, err
	}

	// Register CLI filter
	if err := container.Provide(func(f *factory.FilterFactory) (*filter.CliFilter, error) {
		scanFilter, err := f.CreateScanFilter()
		if err != nil {
			return nil, err
		}
		return scanFilter.(*filter.CliFilter), nil
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// LoadCLIConfig reads the config file when one is given, otherwise starts
// from the defaults, then applies the command line overrides
func LoadCLIConfig(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
	var cfg *config.Config
	if flags.ConfigFile != "" {
		var err error
		cfg, err = config.NewWithFile(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
	} else {
		cfg = config.NewFromViper(config.NewEmptyViper())
	}

	applyFlags(cfg, flags)
	return cfg, nil
}

// applyFlags overrides configuration with the flags that were set
func applyFlags(cfg *config.Config, flags *CLIFlags) {
	// Set some cli specific settings
	cfg.Set("server.filter_type", "cli")
	cfg.Set("cli.verbose", flags.Verbose)
	cfg.Set("cli.json", flags.JSON)

	if flags.Classifier != "" {
		cfg.Set("classifier.provider", flags.Classifier)
	}
	if flags.ModelPath != "" {
		cfg.Set("classifier.model_path", flags.ModelPath)
	}
	if flags.OpenAIAPIKey != "" {
		cfg.Set("openai.api_key", flags.OpenAIAPIKey)
	}
	if flags.GeminiAPIKey != "" {
		cfg.Set("gemini.api_key", flags.GeminiAPIKey)
	}
	if flags.BedrockModel != "" {
		cfg.Set("bedrock.model_id", flags.BedrockModel)
	}
	if flags.SkipIntel {
		cfg.Set("intel.enabled", false)
	}
}
