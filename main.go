package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/PratikAg001/doc-scribe/api"
	"github.com/PratikAg001/doc-scribe/config"
	"github.com/PratikAg001/doc-scribe/feedback"
	"github.com/PratikAg001/doc-scribe/session"
	"github.com/PratikAg001/doc-scribe/soap"
	"github.com/PratikAg001/doc-scribe/ui"
)

var logger *log.Logger

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().
		String("server-url", "http://localhost:8000", "Transcription backend base URL")
	rootCmd.PersistentFlags().
		String("mode", "standard", "Audio processing mode (standard or enhanced)")

	viper.BindPFlag("server_url", rootCmd.PersistentFlags().Lookup("server-url"))
	viper.BindPFlag("processing_mode", rootCmd.PersistentFlags().Lookup("mode"))

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(analyticsCmd)
}

func initConfig() {
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Printf("Error reading config file: %s\n", err)
		}
	}

	logger = log.New(os.Stderr)
}

var rootCmd = &cobra.Command{
	Use:   "docscribe",
	Short: "docscribe records clinical dictation and reviews generated notes",
	Long: `docscribe streams microphone audio to the transcription backend,
shows the live transcript, and lets you review each generated note
statement against the transcript excerpts that support it.`,
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a new session with a live transcript view",
	RunE:  runRecord,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored sessions",
	RunE:  runSessions,
}

var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a stored session's transcript and note",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback <session-id>",
	Short: "Review a session's note, edit statements, and submit feedback",
	Args:  cobra.ExactArgs(1),
	RunE:  runFeedback,
}

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Show learning analytics",
	RunE:  runAnalytics,
}

func newController(cfg config.Settings) *session.Controller {
	return session.NewController(session.Options{
		Backend: api.NewClient(cfg.ServerURL),
		WSBase:  cfg.WSURL,
		Logger:  logger,
	})
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	client := api.NewClient(cfg.ServerURL)

	ctrl := newController(cfg)
	ctrl.OnComplete = func() {
		sessions, err := client.Sessions(cmd.Context())
		if err != nil {
			logger.Error("Failed to refresh session list", "error", err)
			return
		}
		logger.Info("Session stored", "totalSessions", len(sessions))
	}
	defer ctrl.Close()

	if err := ctrl.Start(cmd.Context(), cfg.ProcessingMode); err != nil {
		return err
	}
	return ui.Run(ctrl)
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	client := api.NewClient(cfg.ServerURL)

	sessions, err := client.Sessions(cmd.Context())
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Session", "Created", "Status", "Mode", "Processing"})
	for _, s := range sessions {
		table.Append([]string{
			s.SessionID,
			s.CreatedAt,
			s.Status,
			s.AudioProcessingMode,
			fmt.Sprintf("%.1fs", s.ProcessingTime),
		})
	}
	table.Render()
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	client := api.NewClient(cfg.ServerURL)

	record, err := client.Session(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	heading := lipgloss.NewStyle().Bold(true)
	fmt.Println(heading.Render("Transcript"))
	fmt.Println(record.Transcript)
	fmt.Println()

	if record.SoapNote != "" {
		rendered, err := glamour.Render(record.SoapNote, "dark")
		if err != nil {
			// fall back to raw text rather than losing the note
			rendered = record.SoapNote
		}
		fmt.Println(heading.Render("Note"))
		fmt.Println(rendered)
	}

	for _, name := range soap.SectionNames {
		stmts := record.SoapSections[name]
		if len(stmts) == 0 {
			continue
		}
		fmt.Println(heading.Render(name))
		for _, stmt := range stmts {
			fmt.Printf("  • %s (%.0f%%)\n", stmt.Statement, stmt.Confidence*100)
			source := soap.ResolveSource(record.TranscriptSegments, stmt.SourceSegments)
			if source != "" {
				fmt.Printf("    source: %s\n", source)
			}
		}
	}
	return nil
}

func runFeedback(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctrl := newController(cfg)

	ctx := cmd.Context()
	if err := ctrl.Load(ctx, args[0]); err != nil {
		return err
	}
	snap := ctrl.Snapshot()

	if err := editStatements(ctrl, snap); err != nil {
		return err
	}

	var (
		satisfaction string
		timeSaved    string
		comments     string
	)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Overall satisfaction").
				Options(
					huh.NewOption("1 - Poor", "1"),
					huh.NewOption("2", "2"),
					huh.NewOption("3", "3"),
					huh.NewOption("4", "4"),
					huh.NewOption("5 - Excellent", "5"),
				).
				Value(&satisfaction),
			huh.NewInput().
				Title("Time saved (minutes)").
				Validate(validateMinutes).
				Value(&timeSaved),
			huh.NewText().
				Title("Comments").
				Value(&comments),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	rating, err := strconv.ParseFloat(satisfaction, 64)
	if err != nil {
		return fmt.Errorf("parse satisfaction: %w", err)
	}
	var minutes float64
	if timeSaved != "" {
		minutes, err = strconv.ParseFloat(timeSaved, 64)
		if err != nil {
			return fmt.Errorf("parse time saved: %w", err)
		}
	}

	ack, err := ctrl.SubmitFeedback(ctx, rating, minutes, comments)
	if err != nil {
		return err
	}
	logger.Info(
		"Feedback submitted",
		"edits", ack.EditsCount,
		"learning", ack.LearningStatus,
	)
	return nil
}

// editStatements loops a statement picker until the user is done, opening
// an edit form for each selection.
func editStatements(ctrl *session.Controller, snap session.Snapshot) error {
	type ref struct {
		section string
		index   int
	}

	for {
		options := []huh.Option[ref]{huh.NewOption("Done editing", ref{})}
		for _, name := range soap.SectionNames {
			for i := range snap.Note.Sections[name] {
				text, _ := ctrl.StatementText(name, i)
				label := fmt.Sprintf("[%s %d] %s", name, i+1, text)
				options = append(options, huh.NewOption(label, ref{name, i}))
			}
		}
		if len(options) == 1 {
			return nil
		}

		var picked ref
		pick := huh.NewForm(huh.NewGroup(
			huh.NewSelect[ref]().
				Title("Edit a statement?").
				Options(options...).
				Value(&picked),
		))
		if err := pick.Run(); err != nil {
			return err
		}
		if picked == (ref{}) {
			return nil
		}

		ctrl.SetEditMode(true)
		current, _ := ctrl.StatementText(picked.section, picked.index)
		newText := current
		editType := string(feedback.StyleImprovement)
		edit := huh.NewForm(huh.NewGroup(
			huh.NewText().
				Title("Statement").
				Value(&newText),
			huh.NewSelect[string]().
				Title("Edit type").
				Options(
					huh.NewOption("Factual correction", string(feedback.FactualCorrection)),
					huh.NewOption("Style improvement", string(feedback.StyleImprovement)),
					huh.NewOption("Addition", string(feedback.Addition)),
					huh.NewOption("Deletion", string(feedback.Deletion)),
				).
				Value(&editType),
		))
		if err := edit.Run(); err != nil {
			return err
		}
		if err := ctrl.RecordEdit(picked.section, picked.index, newText, feedback.EditType(editType)); err != nil {
			return err
		}
		ctrl.SetEditMode(false)
	}
}

// validateMinutes accepts an empty field or a non-negative number.
func validateMinutes(s string) error {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("enter a number of minutes")
	}
	if v < 0 {
		return fmt.Errorf("minutes cannot be negative")
	}
	return nil
}

func runAnalytics(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	client := api.NewClient(cfg.ServerURL)

	stats, err := client.LearningAnalytics(cmd.Context())
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	for key, value := range stats {
		table.Append([]string{key, fmt.Sprintf("%v", value)})
	}
	table.Render()
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
