package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"coursequiz"

	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to a YAML config file")
		importFile = flag.String("import", "", "Import a course from a text or markdown file")
		title      = flag.String("title", "", "Title of the imported course (default: file name)")
		publish    = flag.Bool("publish", false, "Publish the imported course")
		courseID   = flag.String("course", "", "Re-index one course")
		all        = flag.Bool("all", false, "Re-index every published course")
		parallel   = flag.Int("parallel", 2, "Courses indexed concurrently with -all")
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

	if *importFile == "" && *courseID == "" && !*all {
		fmt.Fprintln(os.Stderr, "Nothing to do. Use -import, -course or -all.")
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
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

	if *importFile != "" {
		id, err := importCourse(ctx, engine, *importFile, *title, *publish)
		if err != nil {
			fatal(logger, "Failed to import course", "file", *importFile, "error", err)
		}
		fmt.Printf("📚 Imported course %s\n", id)
		if *courseID == "" {
			*courseID = id
		}
	}

	if *courseID != "" {
		n, err := engine.IndexCourse(ctx, *courseID)
		if err != nil {
			fatal(logger, "Failed to index course", "course_id", *courseID, "error", err)
		}
		fmt.Printf("✅ Course %s: %d chunks indexed\n", *courseID, n)
	}

	if *all {
		if err := indexAll(ctx, logger, engine, *parallel); err != nil {
			fatal(logger, "Failed to index courses", "error", err)
		}
	}
}

func fatal(logger *coursequiz.Logger, msg string, keysAndValues ...interface{}) {
	logger.Error(msg, keysAndValues...)
	logger.Sync()
	os.Exit(1)
}

func importCourse(ctx context.Context, engine *coursequiz.Engine, path, title string, publish bool) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read course file: %w", err)
	}
	if title == "" {
		base := filepath.Base(path)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	course, err := engine.ImportCourse(ctx, title, string(content), publish)
	if err != nil {
		return "", err
	}
	return course.ID, nil
}

// indexAll re-indexes every published course, a few at a time. One failed
// course does not stop the others; the first error is reported at the end.
func indexAll(ctx context.Context, logger *coursequiz.Logger, engine *coursequiz.Engine, parallel int) error {
	courses, err := engine.ListCourses(ctx, true)
	if err != nil {
		return err
	}
	if parallel <= 0 {
		parallel = 1
	}

	var g errgroup.Group
	g.SetLimit(parallel)
	for _, course := range courses {
		g.Go(func() error {
			n, err := engine.IndexCourse(ctx, course.ID)
			if err != nil {
				logger.Error("Failed to index course", "course_id", course.ID, "title", course.Title, "error", err)
				return err
			}
			fmt.Printf("✅ %s (%s): %d chunks\n", course.Title, course.ID, n)
			return nil
		})
	}
	err = g.Wait()
	fmt.Printf("🎉 Indexed %d published courses\n", len(courses))
	return err
}
