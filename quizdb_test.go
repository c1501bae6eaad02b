package coursequiz

import (
	"context"
	"path/filepath"
	"testing"
)

func TestRebind(t *testing.T) {
	pg := &DB{driver: DriverPostgres}
	if got := pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"); got != "SELECT * FROM t WHERE a = $1 AND b = $2" {
		t.Fatalf("postgres rebind: got=%q", got)
	}
	lite := &DB{driver: DriverSQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Fatalf("sqlite rebind: got=%q", got)
	}
}

func TestOpenDBRejectsUnknownDriver(t *testing.T) {
	if _, err := OpenDB(context.Background(), "mysql", "x"); err == nil {
		t.Fatalf("want error for an unsupported driver")
	}
}

func TestDBPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quiz.db")
	ctx := context.Background()

	db, err := OpenDB(ctx, DriverSQLite, path)
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	seedCourse(t, db, "c1", "Persisted text.")
	openQuiz(t, db, "q1", 2)
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err = OpenDB(ctx, DriverSQLite, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	if c, err := db.LoadCourse(ctx, "c1"); err != nil || c.Content != "Persisted text." {
		t.Fatalf("LoadCourse after reopen: got=%v err=%v", c, err)
	}
	if q, err := db.LoadQuiz(ctx, "q1"); err != nil || len(q.Questions) != 2 {
		t.Fatalf("LoadQuiz after reopen: got=%v err=%v", q, err)
	}
}

func TestOptionsJSON(t *testing.T) {
	s, err := OptionsToJSON([]string{"a", `quote "b"`})
	if err != nil {
		t.Fatalf("OptionsToJSON: %v", err)
	}
	got, err := JSONToOptions(s)
	if err != nil || len(got) != 2 || got[1] != `quote "b"` {
		t.Fatalf("JSONToOptions: got=%v err=%v", got, err)
	}
	if _, err := JSONToOptions("not json"); err == nil {
		t.Fatalf("want error for malformed options")
	}
}
