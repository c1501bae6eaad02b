package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"coursequiz"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to a YAML config file")
		courseID   = flag.String("course", "", "Course ID (required)")
		studentID  = flag.String("student", "", "Student ID (required)")
		outputFile = flag.String("output", "", "Output file for quiz JSON (default: stdout)")
		playMode   = flag.Bool("play", false, "Take the quiz interactively and submit it")
		history    = flag.Bool("history", false, "Show the student's history and course progress")
		verbose    = flag.Bool("verbose", false, "Enable verbose debugging output")
	)
	flag.Parse()

	cfg, err := coursequiz.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := coursequiz.NewLogger(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger.SetVerbose(*verbose)

	if *courseID == "" || *studentID == "" {
		fatal(logger, "Course and student are required. Use -course and -student flags.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := coursequiz.OpenStore(ctx, cfg)
	if err != nil {
		fatal(logger, "Failed to open database", "error", err)
	}
	defer db.Close()

	engine, err := coursequiz.NewEngine(ctx, cfg, db, logger)
	if err != nil {
		fatal(logger, "Failed to create engine", "error", err)
	}
	defer engine.Close()

	if *history {
		showHistory(ctx, engine, *studentID, *courseID)
		return
	}

	view, err := engine.GenerateAdaptiveQuiz(ctx, *courseID, *studentID)
	if err != nil {
		fatal(logger, "Failed to generate quiz", "error", err)
	}

	if *playMode {
		playQuiz(ctx, logger, engine, view)
		return
	}

	output, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		fatal(logger, "Failed to marshal quiz", "error", err)
	}

	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, output, 0644); err != nil {
			fatal(logger, "Failed to write output file", "error", err)
		}
		logger.Info("Quiz saved", "path", *outputFile, "quiz_id", view.QuizID)
	} else {
		fmt.Println(string(output))
	}
}

func fatal(logger *coursequiz.Logger, msg string, keysAndValues ...interface{}) {
	logger.Error(msg, keysAndValues...)
	logger.Sync()
	os.Exit(1)
}

func playQuiz(ctx context.Context, logger *coursequiz.Logger, engine *coursequiz.Engine, view *coursequiz.QuizView) {
	fmt.Printf("🎯 Difficulty: %s\n", view.Difficulty)
	fmt.Printf("📝 Questions: %d, time limit: %d minutes\n\n", len(view.Questions), view.TimeLimitMinutes)

	scanner := bufio.NewScanner(os.Stdin)
	letters := []string{"A", "B", "C", "D"}
	answers := make(map[string]int, len(view.Questions))
	start := time.Now()

	for i, question := range view.Questions {
		fmt.Printf("Question %d/%d:\n", i+1, len(view.Questions))
		fmt.Printf("%s\n\n", question.Text)
		for j, option := range question.Options {
			fmt.Printf("%s) %s\n", letters[j], option)
		}
		fmt.Println()

		for {
			fmt.Print("Your answer (A/B/C/D, empty to skip): ")
			if !scanner.Scan() {
				break
			}
			answer := strings.ToUpper(strings.TrimSpace(scanner.Text()))
			if answer == "" {
				break
			}
			if idx := strings.Index("ABCD", answer); len(answer) == 1 && idx >= 0 {
				answers[question.ID] = idx
				break
			}
			fmt.Println("Please enter A, B, C, or D")
		}
		fmt.Println()
	}

	minutes := int(time.Since(start).Minutes())
	graded, err := engine.SubmitQuiz(ctx, view.QuizID, answers, minutes)
	if err != nil {
		fatal(logger, "Failed to submit quiz", "error", err)
	}

	for _, r := range graded.Results {
		if r.Correct {
			fmt.Printf("✅ %d. %s\n", r.Position+1, r.Text)
		} else {
			fmt.Printf("❌ %d. %s\n   The correct answer is %s) %s\n",
				r.Position+1, r.Text, letters[r.CorrectOptionIndex], r.Options[r.CorrectOptionIndex])
		}
		if r.Explanation != "" {
			fmt.Printf("   💡 %s\n", r.Explanation)
		}
	}

	summary := graded.View()
	fmt.Println()
	fmt.Println(strings.Repeat("─", 50))
	fmt.Printf("🏆 Score: %d/%d (%.1f%%)\n", summary.CorrectAnswers, summary.TotalQuestions, summary.Score)
	if summary.Passed {
		fmt.Println("🌟 Passed!")
	} else {
		fmt.Println("📚 Keep studying!")
	}
}

func showHistory(ctx context.Context, engine *coursequiz.Engine, studentID, courseID string) {
	stats, err := engine.History(ctx, studentID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load history: %v\n", err)
		os.Exit(1)
	}
	progress, err := engine.CourseProgress(ctx, studentID, courseID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load course progress: %v\n", err)
		os.Exit(1)
	}
	advice, err := engine.Recommendation(ctx, studentID, courseID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load recommendation: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("📊 Completed quizzes: %d\n", stats.Attempts)
	fmt.Printf("   Average score: %.1f%%\n", stats.AverageScore)
	fmt.Printf("   Success rate: %.1f%%\n", stats.SuccessRate)
	fmt.Printf("   Best score: %.1f%%\n\n", stats.BestScore)

	fmt.Printf("📚 Course %s\n", courseID)
	fmt.Printf("   Quizzes: %d (%d completed)\n", progress.QuizCount, progress.CompletedCount)
	fmt.Printf("   Average score: %.1f%%\n", progress.AverageScore)
	fmt.Printf("   Next difficulty: %s\n", progress.RecommendedDifficulty)
	fmt.Printf("   Can validate course: %t\n", progress.CanValidate)
	fmt.Printf("   Chunks: %d\n\n", progress.ChunkCount)
	fmt.Printf("💡 %s\n", advice)
}
