package schema_test

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/foundry/stdfingest/internal/summarizer/schema"
)

func TestDDLAppliesCleanlyAndTwice(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	for i := 0; i < 2; i++ {
		if _, err := db.Exec(schema.DDL); err != nil {
			t.Fatalf("Exec DDL (pass %d): %v", i, err)
		}
	}

	tables := []string{
		"File_Info", "Wafer_Info", "Dut_Info", "Dut_Counts",
		"Test_Info", "Test_Offsets", "Bin_Info",
	}
	for _, name := range tables {
		var got string
		if err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", name).Scan(&got); err != nil {
			t.Fatalf("table %s missing: %v", name, err)
		}
	}
}

func TestPragmaStatementsApply(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	for _, stmt := range schema.PragmaStatements {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Exec %q: %v", stmt, err)
		}
	}
}

func TestMissingNameConstant(t *testing.T) {
	if schema.MissingName == "" {
		t.Fatal("MissingName must not be empty")
	}
}
