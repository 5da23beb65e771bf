package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/hh-interviewer/internal/ai"
	"github.com/spigell/hh-interviewer/internal/ai/deepinfra"
	"github.com/spigell/hh-interviewer/internal/ai/gemini"
	"github.com/spigell/hh-interviewer/internal/documents"
	"github.com/spigell/hh-interviewer/internal/interview"
	"github.com/spigell/hh-interviewer/internal/logger"
	"github.com/spigell/hh-interviewer/internal/secrets"
	"github.com/spigell/hh-interviewer/internal/session"
	"github.com/spigell/hh-interviewer/internal/transcript"
)

const (
	PromptSaveTranscript = "Save transcript"
	PromptShowStatus     = "Show status"
	PromptExit           = "Exit"

	commandQuit   = ":quit"
	commandStatus = ":status"
	audioPrefix   = "@"
)

var errExit = errors.New("exit requested")

var finalPrompt = promptui.Select{
	Label: "Interview is over. What next?",
	Items: []string{PromptSaveTranscript, PromptShowStatus, PromptExit},
}

var interviewCmd = &cobra.Command{
	Use:   "interview",
	Short: "Run an interactive screening interview",
	Long: `Run an interactive screening interview for a resume and a job description.

Type an answer and press ENTER. Answer with @path/to/recording to submit audio,
:status to see the remaining time and :quit to end the interview.`,
	Run: func(cmd *cobra.Command, _ []string) {
		runInterview(cmd)
	},
}

func init() {
	rootCmd.AddCommand(interviewCmd)

	interviewCmd.Flags().StringP("resume", "r", "", "resume text or markdown file (required)")
	interviewCmd.Flags().StringP("job", "b", "", "job description text or markdown file (required)")
	interviewCmd.Flags().StringP("transcript", "o", "", "where to save the transcript (default is a temporary file)")

	interviewCmd.MarkFlagRequired("resume")
	interviewCmd.MarkFlagRequired("job")
}

// runInterview is the main command for the cli.
func runInterview(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	config, err := getConfig()
	if err != nil {
		log.Fatalf("getting a config: %s", err)
	}

	logger, err := logger.New(logger.Options{
		JSON:   viper.GetBool("json"),
		Debug:  viper.GetBool("debug"),
		Output: config.LogFile,
	})
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer logger.Sync()

	logger.Info("starting the hh-interviewer", zap.String("version", resolveVersion()))
	logger.Debug("interview limits",
		zap.Int("max_duration_seconds", config.Interview.MaxDurationSeconds),
		zap.Int("max_questions", config.Interview.MaxQuestions),
		zap.Int("max_follow_ups_per_topic", config.Interview.MaxFollowUpsPerTopic),
		zap.String("transcription_provider", config.Transcription.Provider),
	)

	completer, err := newCompleter(ctx, config.AI, logger)
	if err != nil {
		logger.Fatal("creating a completion client", zap.Error(err))
	}

	transcriber, err := newTranscriber(ctx, config, logger)
	if err != nil {
		logger.Warn("audio answers are disabled", zap.Error(err))
		transcriber = nil
	}

	sessions := session.NewStore(session.WithLogger(logger.Named("sessions")))
	go sessions.Run(ctx, config.Sessions.CleanupInterval, config.Sessions.IdleTTL)

	opts := []interview.Option{interview.WithLogger(logger)}
	if transcriber != nil {
		opts = append(opts, interview.WithTranscriber(transcriber))
	}

	engine, err := interview.New(completer, sessions, documents.NewStore(), interviewConfig(config), opts...)
	if err != nil {
		logger.Fatal("creating the interview engine", zap.Error(err))
	}

	id, err := upload(cmd, engine)
	if err != nil {
		logger.Fatal("uploading documents", zap.Error(err))
	}

	fmt.Println("Preparing the interview, this may take a moment...")

	first, err := engine.Start(ctx, id)
	if err != nil {
		logger.Fatal("starting the interview", zap.Error(err))
	}

	printInterviewer(first.Question, first.TimeRemaining)

	if err := answerLoop(ctx, engine, id, logger); err != nil && !errors.Is(err, errExit) {
		logger.Fatal("interview failed", zap.Error(err))
	}

	for {
		_, action, err := finalPrompt.Run()
		if err != nil {
			logger.Info("exiting", zap.Error(err))
			return
		}

		if err := handleAction(action, cmd, engine, id, logger); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

func upload(cmd *cobra.Command, engine *interview.Engine) (string, error) {
	var extractor documents.Extractor = documents.PlainText{}

	resume, err := extractor.Extract(cmd.Flag("resume").Value.String())
	if err != nil {
		return "", err
	}

	job, err := extractor.Extract(cmd.Flag("job").Value.String())
	if err != nil {
		return "", err
	}

	result, err := engine.Upload(resume, job)
	if err != nil {
		return "", err
	}

	return result.SessionID, nil
}

func answerLoop(ctx context.Context, engine *interview.Engine, id string, logger *zap.Logger) error {
	answerPrompt := promptui.Prompt{
		Label: "Your answer",
		Validate: func(input string) error {
			if strings.TrimSpace(input) == "" {
				return errors.New("answer must not be empty")
			}
			return nil
		},
	}

	for {
		input, err := answerPrompt.Run()
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				input = commandQuit
			} else {
				return err
			}
		}

		input = strings.TrimSpace(input)

		var result interview.AnswerResult
		switch {
		case input == commandStatus:
			printStatus(engine, id)
			continue
		case input == commandQuit:
			result, err = engine.End(ctx, id)
		case strings.HasPrefix(input, audioPrefix):
			result, err = submitAudio(ctx, engine, id, strings.TrimPrefix(input, audioPrefix))
		default:
			result, err = engine.SubmitAnswer(ctx, id, input)
		}

		if err != nil {
			var engineErr *interview.Error
			if errors.As(err, &engineErr) && engineErr.Notice != "" {
				logger.Warn("answer was not processed", zap.Error(err))
				printInterviewer(engineErr.Notice, 0)
				continue
			}
			return err
		}

		if result.Concluded {
			printInterviewer(result.Message, 0)
			logger.Info("interview concluded",
				zap.String("reason", string(result.Reason)),
				zap.Int("questions_asked", result.QuestionsAsked),
			)
			return nil
		}

		printInterviewer(result.Message, result.TimeRemaining)
	}
}

func submitAudio(ctx context.Context, engine *interview.Engine, id, path string) (interview.AnswerResult, error) {
	path = strings.TrimSpace(path)
	audio, err := os.ReadFile(path)
	if err != nil {
		return interview.AnswerResult{}, &interview.Error{
			Code:   interview.CodeTranscriptionFailed,
			Reason: "reading audio answer",
			Notice: fmt.Sprintf("I could not open %q. Please check the path and try again.", path),
			Err:    err,
		}
	}

	result, err := engine.SubmitAudioAnswer(ctx, id, audio, mime.TypeByExtension(filepath.Ext(path)))
	if err == nil {
		fmt.Printf("(transcribed) %s\n", result.Answer)
	}
	return result, err
}

func handleAction(action string, cmd *cobra.Command, engine *interview.Engine, id string, logger *zap.Logger) error {
	switch action {
	case PromptSaveTranscript:
		snap, err := engine.Snapshot(id)
		if err != nil {
			return err
		}

		filename, err := transcript.Write(cmd.Flag("transcript").Value.String(), snap, time.Now())
		if err != nil {
			return fmt.Errorf("save transcript: %w", err)
		}
		logger.Info("transcript saved", zap.String("filename", filename))
		return nil
	case PromptShowStatus:
		printStatus(engine, id)
		return nil
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func printInterviewer(text string, remaining time.Duration) {
	if remaining > 0 {
		fmt.Printf("\n[%s left] Interviewer: %s\n\n", formatRemaining(remaining), text)
		return
	}
	fmt.Printf("\nInterviewer: %s\n\n", text)
}

func printStatus(engine *interview.Engine, id string) {
	status, err := engine.Status(id)
	if err != nil {
		fmt.Printf("status is unavailable: %s\n", err)
		return
	}

	fmt.Printf("phase: %s, questions asked: %d, elapsed: %s, remaining: %s",
		status.Phase, status.QuestionsAsked, formatRemaining(status.Elapsed), formatRemaining(status.Remaining))
	if status.Concluded {
		fmt.Printf(", concluded: %s", status.Reason)
	}
	fmt.Println()
}

func formatRemaining(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%02d:%02d", int(d/time.Minute), int(d%time.Minute/time.Second))
}

func interviewConfig(config *Config) interview.Config {
	cfg := interview.DefaultConfig()
	ic := config.Interview

	if ic.MaxDurationSeconds > 0 {
		cfg.MaxDuration = time.Duration(ic.MaxDurationSeconds) * time.Second
	}
	if ic.MaxQuestions > 0 {
		cfg.MaxQuestions = ic.MaxQuestions
	}
	if ic.MaxFollowUpsPerTopic >= 0 {
		cfg.MaxFollowUpsPerTopic = ic.MaxFollowUpsPerTopic
	}
	if ic.RetryBackoff >= 0 {
		cfg.RetryBackoff = ic.RetryBackoff
	}
	if config.AI.Gemini.MaxLogLength > 0 {
		cfg.MaxLogLength = config.AI.Gemini.MaxLogLength
	}

	return cfg
}

func newCompleter(ctx context.Context, cfg *AIConfig, log *zap.Logger) (*gemini.Generator, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	apiKey, err := geminiAPIKey(cfg.Gemini)
	if err != nil {
		return nil, err
	}

	genLogger := logger.WithCommonFields(log, "gemini", cfg.Gemini.Model).With(
		zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries),
	)

	return gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, cfg.Gemini.MaxRetries, genLogger)
}

func newTranscriber(ctx context.Context, config *Config, log *zap.Logger) (ai.Transcriber, error) {
	tc := config.Transcription

	switch provider := strings.TrimSpace(strings.ToLower(tc.Provider)); provider {
	case "", "none":
		return nil, errors.New("transcription provider is not configured")
	case "gemini":
		apiKey, err := geminiAPIKey(config.AI.Gemini)
		if err != nil {
			return nil, err
		}

		model := tc.Model
		if model == "" {
			model = config.AI.Gemini.Model
		}

		return gemini.NewTranscriber(ctx, apiKey, model, logger.WithCommonFields(log, "gemini", model))
	case "deepinfra":
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "deepinfra api key",
			Value: tc.DeepInfra.APIKey,
			Env:   "DEEPINFRA_API_KEY",
			File:  tc.DeepInfra.APIKeyFile,
		})
		if err != nil {
			return nil, fmt.Errorf("%w (or set transcription.deepinfra.api-key-file)", err)
		}

		return deepinfra.New(apiKey, tc.DeepInfra.URL, tc.Model, logger.WithCommonFields(log, "deepinfra", tc.Model))
	default:
		return nil, fmt.Errorf("unsupported transcription provider: %s", tc.Provider)
	}
}

func geminiAPIKey(cfg *GeminiConfig) (string, error) {
	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.APIKey,
		Env:   "GEMINI_API_KEY",
		File:  cfg.APIKeyFile,
	})
	if err != nil {
		return "", fmt.Errorf("%w (or set ai.gemini.api-key-file)", err)
	}
	return apiKey, nil
}
