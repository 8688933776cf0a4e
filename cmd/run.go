package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/job-harvester/internal/ai"
	"github.com/spigell/job-harvester/internal/ai/gemini"
	"github.com/spigell/job-harvester/internal/ai/local"
	"github.com/spigell/job-harvester/internal/browser"
	"github.com/spigell/job-harvester/internal/filtering"
	"github.com/spigell/job-harvester/internal/harvest"
	"github.com/spigell/job-harvester/internal/hiringcafe"
	"github.com/spigell/job-harvester/internal/linkedin"
	"github.com/spigell/job-harvester/internal/logger"
	"github.com/spigell/job-harvester/internal/notify"
	"github.com/spigell/job-harvester/internal/pipeline"
	"github.com/spigell/job-harvester/internal/posting"
	"github.com/spigell/job-harvester/internal/report"
	"github.com/spigell/job-harvester/internal/secrets"
	"github.com/spigell/job-harvester/internal/store"
)

const (
	PromptYes                 = "Yes"
	PromptNo                  = "No"
	PromptReportByCompanies   = "Report by companies"
	PromptPostingsToFile      = "Dump postings to file"
	PromptAppendToExcludeFile = "Append all postings to exclude file"
)

var errExit = errors.New("exit requested")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Harvest, score and report postings",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before scoring")
	runCmd.Flags().Bool("headed", false, "show the browser window")
	runCmd.Flags().String("dump", "", "also write scored matches as JSON to this file")
	runCmd.Flags().StringP("exclude-file", "e", "", "file with postings to exclude. Default is unset.")

	viper.BindPFlag("dump", runCmd.Flags().Lookup("dump"))
	viper.BindPFlag("exclude-file", runCmd.Flags().Lookup("exclude-file"))
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jsonLogs := viper.GetBool("json")
	logger, err := logger.New(jsonLogs, viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the job-harvester", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	if headed, _ := cmd.Flags().GetBool("headed"); headed {
		config.Browser.Headless = false
	}

	lock, err := store.AcquireLock(config.DB)
	if err != nil {
		logger.Fatal("acquiring run lock", zap.Error(err), zap.String("db", config.DB))
	}
	defer lock.Release()

	cvText, profileJSON, err := loadProfile(config.Profile)
	if err != nil {
		logger.Fatal("loading candidate profile", zap.Error(err))
	}

	strategies, err := config.strategies()
	if err != nil {
		logger.Fatal("building strategies", zap.Error(err))
	}

	backend, err := newBackend(ctx, config.AI, logger)
	if err != nil {
		logger.Fatal("creating model backend", zap.Error(err), zap.String("backend", config.AI.Backend))
	}

	seen, err := store.Open(ctx, config.DB)
	if err != nil {
		logger.Fatal("opening dedup store", zap.Error(err), zap.String("db", config.DB))
	}
	defer seen.Close()

	if n, err := seen.Count(ctx); err == nil {
		logger.Info("dedup store opened", zap.String("db", config.DB), zap.String("records", humanize.Comma(int64(n))))
	}

	session, err := browser.Launch(ctx, config.Browser, logger)
	if err != nil {
		logger.Fatal("launching browser", zap.Error(err))
	}
	defer session.Close()

	source := hiringcafe.New(logger)
	if config.Browser.UserAgent != "" {
		source.UserAgent = config.Browser.UserAgent
	}

	harvester := harvest.New(config.harvestConfig(), harvest.Deps{
		Browser: session,
		Source:  source,
		Details: harvest.NewDetailFetcher(config.detailConfig(), session, logger),
		Logger:  logger,
	})

	feeds, err := newFeeds(config, logger)
	if err != nil {
		logger.Fatal("configuring linkedin feed", zap.Error(err))
	}

	reportPath := config.Report
	if config.ReportPerRun {
		reportPath = report.TimestampedPath(reportPath, time.Now())
	}
	writer, err := report.NewWriter(reportPath)
	if err != nil {
		logger.Fatal("preparing report", zap.Error(err))
	}

	notifier, err := newNotifier(config.Telegram, logger)
	if err != nil {
		logger.Fatal("configuring telegram", zap.Error(err))
	}

	var gate pipeline.Gate
	if approve, _ := cmd.Flags().GetBool("auto-approve"); !approve {
		gate = confirm(logger, config.ExcludeFile)
	}

	var progress io.Writer
	if !jsonLogs {
		progress = os.Stderr
	}

	disabled := make(map[string]string, len(config.DisabledFilters))
	for _, name := range config.DisabledFilters {
		disabled[name] = "disabled in config"
	}

	p, err := pipeline.New(pipeline.Config{
		Threshold:   config.Threshold,
		ReportEvery: config.ReportEvery,
		Filters: &filtering.Config{
			MinDescriptionLength: config.MinDescription,
			ExcludedCompanies:    config.ExcludedCompanies,
			ExcludeFile:          config.ExcludeFile,
		},
		DisabledFilters: disabled,
	}, pipeline.Deps{
		Harvester: harvester,
		Feeds:     feeds,
		Store:     seen,
		Scorer:    ai.NewScorer(backend, logger, config.AI.MaxLogLength),
		Escalator: ai.NewEscalator(backend, logger, config.AI.MaxLogLength),
		Report:    writer,
		Notifier:  notifier,
		Gate:      gate,
		Progress:  progress,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("creating pipeline", zap.Error(err))
	}

	res, err := p.Run(ctx, strategies, pipeline.Profile{JSON: profileJSON, CVText: cvText})
	if err != nil {
		logger.Fatal("running pipeline", zap.Error(err))
	}

	if res.Aborted {
		logger.Info("exiting", zap.String("reason", "scoring was not confirmed"))
		return
	}

	if config.Dump != "" {
		if err := dumpMatches(config.Dump, res.Matches); err != nil {
			logger.Error("dumping matches", zap.Error(err), zap.String("path", config.Dump))
		} else {
			logger.Info("dumped matches", zap.String("path", config.Dump))
		}
	}

	fields := []zap.Field{zap.Int("matches", len(res.Matches)), zap.String("run_id", res.RunID)}
	if res.ReportWritten {
		fields = append(fields, zap.String("report", writer.Path()))
	}
	logger.Info("done", fields...)
}

func getConfig() (*Config, error) {
	return decodeConfig(viper.AllSettings())
}

func newBackend(ctx context.Context, cfg AIConfig, logger *zap.Logger) (ai.Backend, error) {
	switch cfg.Backend {
	case backendLocal:
		return local.New(cfg.Local, logger), nil

	case backendOpenAI:
		key, err := secrets.Load(secrets.Source{
			Name:    "openai api key",
			Value:   cfg.OpenAI.APIKey,
			File:    cfg.OpenAI.APIKeyFile,
			Keyring: secretOpenAI,
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set ai.openai.api-key-file, JH_OPENAI_API_KEY_FILE or run `%s secret set %s`)", err, app, secretOpenAI)
		}
		oc := local.Config{
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
			APIKey:  key,
			Timeout: cfg.OpenAI.Timeout,
		}
		if oc.BaseURL == "" {
			oc.BaseURL = openAIBaseURL
		}
		if oc.Model == "" {
			oc.Model = openAIModel
		}
		return local.New(oc, logger), nil

	case backendGemini:
		key, err := secrets.Load(secrets.Source{
			Name:    "gemini api key",
			Value:   cfg.Gemini.APIKey,
			File:    cfg.Gemini.APIKeyFile,
			Keyring: secretGemini,
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set ai.gemini.api-key-file, JH_GEMINI_API_KEY_FILE or run `%s secret set %s`)", err, app, secretGemini)
		}
		return gemini.NewGenerator(ctx, key, cfg.Gemini.Model, logger)

	default:
		return nil, fmt.Errorf("unsupported ai backend: %s", cfg.Backend)
	}
}

func newNotifier(cfg TelegramConfig, logger *zap.Logger) (pipeline.Notifier, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	token, err := secrets.Load(secrets.Source{
		Name:    "telegram token",
		Value:   cfg.Token,
		File:    cfg.TokenFile,
		Keyring: secretTelegram,
	})
	if err != nil {
		return nil, err
	}
	return notify.NewTelegram(token, cfg.ChatID, logger), nil
}

func newFeeds(config *Config, logger *zap.Logger) ([]pipeline.Feed, error) {
	if !config.LinkedIn.Enabled {
		return nil, nil
	}

	token, err := secrets.Load(secrets.Source{
		Name:    "bright data api token",
		Value:   config.LinkedIn.APIToken,
		File:    config.LinkedIn.APITokenFile,
		Keyring: secretBrightData,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set linkedin.api-token-file, JH_BRIGHTDATA_TOKEN_FILE or run `%s secret set %s`)", err, app, secretBrightData)
	}
	return []pipeline.Feed{linkedin.New(config.linkedinConfig(), token, logger)}, nil
}

// confirm asks the operator what to do with the filtered postings before
// any model call is made.
func confirm(logger *zap.Logger, excludeFile string) pipeline.Gate {
	items := []string{PromptYes, PromptNo, PromptReportByCompanies, PromptPostingsToFile}
	if excludeFile != "" {
		items = append(items, PromptAppendToExcludeFile)
	}
	prompt := promptui.Select{
		Label: "Proceed with scoring?",
		Items: items,
	}

	return func(_ context.Context, postings *posting.Postings) (bool, error) {
		for postings.Len() > 0 {
			logger.Info("current list of postings", zap.Int("count", postings.Len()))

			_, action, err := prompt.Run()
			if err != nil {
				return false, err
			}

			proceed, err := handleAction(action, logger, excludeFile, postings)
			if errors.Is(err, errExit) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			if proceed {
				return true, nil
			}
		}

		logger.Info("exiting", zap.String("reason", "no postings left"))
		return false, nil
	}
}

func handleAction(action string, logger *zap.Logger, excludeFile string, postings *posting.Postings) (bool, error) {
	switch action {
	case PromptYes:
		return true, nil
	case PromptNo:
		logger.Info("exiting", zap.String("reason", "got no from prompt"))
		return false, errExit
	case PromptReportByCompanies:
		pretty, _ := json.MarshalIndent(postings.ReportByCompany(), "", "  ")
		logger.Info(string(pretty), zap.Int("postings count", postings.Len()))
		return false, nil
	case PromptPostingsToFile:
		filename, err := postings.DumpToTmpFile()
		if err != nil {
			return false, fmt.Errorf("dump postings to file: %w", err)
		}
		logger.Info("dumping postings to file", zap.String("filename", filename))
		return false, nil
	case PromptAppendToExcludeFile:
		excluded, err := posting.ReadExcludedFile(excludeFile)
		if err != nil {
			return false, err
		}
		excluded.Append(postings.ToExcluded(time.Now().UTC()))
		if err := excluded.ToFile(excludeFile); err != nil {
			return false, err
		}
		logger.Info("appended to exclude file", zap.String("filename", excludeFile), zap.Int("count", postings.Len()))

		keys := excluded.Keys()
		postings.Exclude(func(p *posting.Posting) bool {
			_, ok := keys[p.Key()]
			return ok
		})
		return false, nil
	default:
		return false, fmt.Errorf("invalid action: %s", action)
	}
}

func dumpMatches(path string, matches []report.Match) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(report.SortByScore(matches))
}
