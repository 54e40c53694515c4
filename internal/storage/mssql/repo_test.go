package mssql

import (
	"fmt"
	"strings"
	"testing"

	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/storage"
)

func TestBuildCreateSQL_ObjectIDGuard(t *testing.T) {
	t.Parallel()

	ddl, err := buildCreateSQL(storage.TableSpec{
		Name:    "dbo.vendor_products",
		Columns: []string{"vendor_name", "article_id"},
	})
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	want := "IF OBJECT_ID(N'dbo.vendor_products', N'U') IS NULL BEGIN CREATE TABLE [dbo].[vendor_products] " +
		"([vendor_name] NVARCHAR(MAX) NULL, [article_id] NVARCHAR(MAX) NULL); END;"
	if ddl != want {
		t.Fatalf("ddl=%q\nwant=%q", ddl, want)
	}
}

func TestBuildDeleteSQL(t *testing.T) {
	t.Parallel()

	got := buildDeleteSQL(storage.TableSpec{Name: "links", ScopeColumn: "vendor_name"})
	if got != "DELETE FROM [links] WHERE [vendor_name] = @p1;" {
		t.Fatalf("sql=%q", got)
	}
}

// TestBuildBulkInsertSQL_NumbersPlaceholdersAcrossRows verifies @pN numbering
// continues across rows and args are flattened in row order.
func TestBuildBulkInsertSQL_NumbersPlaceholdersAcrossRows(t *testing.T) {
	t.Parallel()

	q, args := buildBulkInsertSQL("t", []string{"a", "b]"}, [][]any{{"1", nil}, {"2", "x"}})
	if q != "INSERT INTO [t] ([a], [b]]]) VALUES (@p1, @p2), (@p3, @p4)" {
		t.Fatalf("sql=%q", q)
	}
	if fmt.Sprint(args) != "[1 <nil> 2 x]" {
		t.Fatalf("args=%v", args)
	}
}

// TestBatches_StayUnderParameterCap checks the batch split used by ReplaceRows.
func TestBatches_StayUnderParameterCap(t *testing.T) {
	t.Parallel()

	cols := []string{"a", "b", "c", "d", "e", "f", "g"}
	rows := make([][]any, 1000)
	for i := range rows {
		rows[i] = make([]any, len(cols))
	}
	for _, b := range storage.Batches(rows, len(cols), maxParams) {
		q, args := buildBulkInsertSQL("t", cols, b)
		if len(args) > maxParams {
			t.Fatalf("batch has %d params", len(args))
		}
		if strings.Count(q, "@p") != len(args) {
			t.Fatalf("placeholder/arg mismatch")
		}
	}
}
