package cmd

import (
	"errors"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "hh-interviewer"
)

type Config struct {
	LogFile       string               `mapstructure:"log-file"`
	Interview     *InterviewConfig     `mapstructure:"interview"`
	AI            *AIConfig            `mapstructure:"ai"`
	Transcription *TranscriptionConfig `mapstructure:"transcription"`
	Sessions      *SessionsConfig      `mapstructure:"sessions"`
}

type InterviewConfig struct {
	MaxDurationSeconds   int           `mapstructure:"max-duration-seconds"`
	MaxQuestions         int           `mapstructure:"max-questions"`
	MaxFollowUpsPerTopic int           `mapstructure:"max-follow-ups-per-topic"`
	RetryBackoff         time.Duration `mapstructure:"retry-backoff"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type TranscriptionConfig struct {
	Provider  string           `mapstructure:"provider"`
	Model     string           `mapstructure:"model"`
	DeepInfra *DeepInfraConfig `mapstructure:"deepinfra"`
}

type DeepInfraConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	URL        string `mapstructure:"url"`
}

type SessionsConfig struct {
	IdleTTL         time.Duration `mapstructure:"idle-ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup-interval"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "hh-interviewer runs a timed, adaptive screening interview for a resume and a job description",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is hh-interviewer.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("log-file", "", "write logs to this file instead of stderr")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file"))

	setDefaults()
}

func setDefaults() {
	viper.SetDefault("interview.max-duration-seconds", 1800)
	viper.SetDefault("interview.max-questions", 15)
	viper.SetDefault("interview.max-follow-ups-per-topic", 2)
	viper.SetDefault("interview.retry-backoff", time.Second)

	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	// the engine retries failed generations itself
	viper.SetDefault("ai.gemini.max-retries", 1)
	viper.SetDefault("ai.gemini.max-log-length", 200)

	viper.SetDefault("transcription.provider", "gemini")

	viper.SetDefault("sessions.idle-ttl", 2*time.Hour)
	viper.SetDefault("sessions.cleanup-interval", 10*time.Minute)
}

func initConfig() {
	// Config is needed only for the interview command.
	if interviewCmd.CalledAs() == "" {
		return
	}

	// .env is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config == nil {
		return nil, errors.New("empty configuration")
	}

	if config.Interview == nil {
		config.Interview = &InterviewConfig{}
	}
	if config.AI == nil {
		config.AI = &AIConfig{}
	}
	if config.AI.Gemini == nil {
		config.AI.Gemini = &GeminiConfig{}
	}
	if config.Transcription == nil {
		config.Transcription = &TranscriptionConfig{}
	}
	if config.Transcription.DeepInfra == nil {
		config.Transcription.DeepInfra = &DeepInfraConfig{}
	}
	if config.Sessions == nil {
		config.Sessions = &SessionsConfig{}
	}

	return config, nil
}
