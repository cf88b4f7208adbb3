package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yungbote/journey-tutor-backend/internal/data/db"
	"github.com/yungbote/journey-tutor-backend/internal/data/repos"
	"github.com/yungbote/journey-tutor-backend/internal/platform/envutil"
	"github.com/yungbote/journey-tutor-backend/internal/platform/logger"
	"github.com/yungbote/journey-tutor-backend/internal/services"
)

var rootCmd = &cobra.Command{
	Use:           "journeyctl",
	Short:         "Operate the journey tutor backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

var seedCmd = &cobra.Command{
	Use:   "seed <catalog.yaml>",
	Short: "Import journeys and steps from a YAML catalog",
	Long: `Import journeys and their steps from a YAML catalog.

Journeys are matched by title. Existing journeys are updated and their
steps replaced; new ones are created. The whole file is applied in one
transaction.`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Mint a bearer token for a user id",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

var promptCmd = &cobra.Command{
	Use:   "prompt <attempt-id>",
	Short: "Print the prompt the next turn of an attempt would send",
	Long: `Print the prompt built for an attempt's current step without calling the model.

--kind rating and --kind response need --input; response also takes
--rating, --attempt and --action.`,
	Args: cobra.ExactArgs(1),
	RunE: runPrompt,
}

var (
	seedDryRun bool
	tokenTTL   time.Duration

	promptKind    string
	promptInput   string
	promptRating  int
	promptAttempt int
	promptAction  string
)

func init() {
	seedCmd.Flags().BoolVar(&seedDryRun, "dry-run", false, "validate the catalog without writing")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	promptCmd.Flags().StringVar(&promptKind, "kind", string(services.PromptKindChat), "chat, rating or response")
	promptCmd.Flags().StringVar(&promptInput, "input", "", "learner answer for rating and response prompts")
	promptCmd.Flags().IntVar(&promptRating, "rating", 3, "rating achieved, for response prompts")
	promptCmd.Flags().IntVar(&promptAttempt, "attempt", 1, "attempt number on the step")
	promptCmd.Flags().StringVar(&promptAction, "action", "retry_step", "decided action, for response prompts")
	rootCmd.AddCommand(migrateCmd, seedCmd, tokenCmd, promptCmd)
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() (*logger.Logger, error) {
	return logger.New(envutil.String("LOG_MODE", "development"))
}

func openDB(log *logger.Logger) (*db.PostgresService, error) {
	pg, err := db.NewPostgresService(log, db.ConfigFromEnv())
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrateAll(pg.DB()); err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return pg, nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()
	pg, err := openDB(log)
	if err != nil {
		return err
	}
	defer pg.Close()
	fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	catalog, err := services.ParseCatalog(f)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	if seedDryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "%d journeys valid\n", len(catalog.Journeys))
		return nil
	}

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()
	pg, err := openDB(log)
	if err != nil {
		return err
	}
	defer pg.Close()

	gdb := pg.DB()
	svc := services.NewJourneyCatalogService(gdb, log, repos.NewJourneyRepo(gdb, log), repos.NewJourneyStepRepo(gdb, log))
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()
	res, err := svc.Import(ctx, catalog)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %d, updated %d\n", res.Created, res.Updated)
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	userID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid user id: %w", err)
	}
	auth, err := services.NewAuthService(logger.Nop(), envutil.String("JWT_SECRET_KEY", ""), envutil.String("JWT_ISSUER", ""))
	if err != nil {
		return err
	}
	token, err := auth.IssueToken(userID, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func runPrompt(cmd *cobra.Command, args []string) error {
	attemptID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid attempt id: %w", err)
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()
	pg, err := openDB(log)
	if err != nil {
		return err
	}
	defer pg.Close()

	gdb := pg.DB()
	builder := services.NewPromptBuilder(log,
		repos.NewJourneyRepo(gdb, log),
		repos.NewJourneyStepRepo(gdb, log),
		repos.NewJourneyAttemptRepo(gdb, log),
		repos.NewJourneyStepResponseRepo(gdb, log),
		repos.NewUserProfileVariableRepo(gdb, log),
		envutil.Int("PROMPT_HISTORY_LIMIT", 6),
	)
	prompt, err := builder.BuildForAttempt(cmd.Context(), attemptID, services.PromptKind(promptKind), services.PromptInputs{
		UserInput:     promptInput,
		Rating:        promptRating,
		AttemptNumber: promptAttempt,
		Action:        promptAction,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), prompt)
	return nil
}
