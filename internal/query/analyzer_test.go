package query

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAnalyzeSimpleSelect(t *testing.T) {
	a, err := Analyze(`SELECT drug_name, total_spending FROM medicare_part_d_spending WHERE year = 2023`)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if diff := cmp.Diff([]string{"medicare_part_d_spending"}, a.Tables); diff != "" {
		t.Errorf("tables mismatch (-want +got):\n%s", diff)
	}
	if len(a.CTEs) != 0 {
		t.Errorf("unexpected CTEs: %v", a.CTEs)
	}
}

func TestAnalyzeJoins(t *testing.T) {
	sql := `SELECT a.npi, b.total_claims
		FROM providers a
		JOIN prescriber_summary b ON a.npi = b.npi
		LEFT JOIN hospital_info AS h ON h.ccn = a.ccn`
	a, err := Analyze(sql)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	want := []string{"providers", "prescriber_summary", "hospital_info"}
	if diff := cmp.Diff(want, a.Tables); diff != "" {
		t.Errorf("tables mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzeCommaJoin(t *testing.T) {
	a, err := Analyze(`SELECT * FROM t1, t2 x, t3 WHERE t1.id = x.id`)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	want := []string{"t1", "t2", "t3"}
	if diff := cmp.Diff(want, a.Tables); diff != "" {
		t.Errorf("tables mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzeCTEsExcluded(t *testing.T) {
	sql := `WITH top_drugs AS (
			SELECT drug_name FROM spending ORDER BY total DESC LIMIT 10
		), totals (name, amt) AS (
			SELECT drug_name, SUM(total) FROM spending GROUP BY drug_name
		)
		SELECT * FROM top_drugs JOIN totals ON top_drugs.drug_name = totals.name`
	a, err := Analyze(sql)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if diff := cmp.Diff([]string{"top_drugs", "totals"}, a.CTEs); diff != "" {
		t.Errorf("ctes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"spending"}, a.Tables); diff != "" {
		t.Errorf("tables mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzeSubquery(t *testing.T) {
	a, err := Analyze(`SELECT * FROM (SELECT npi FROM providers) p JOIN claims c ON c.npi = p.npi`)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	want := []string{"providers", "claims"}
	if diff := cmp.Diff(want, a.Tables); diff != "" {
		t.Errorf("tables mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzeQuotedAndQualified(t *testing.T) {
	a, err := Analyze(`SELECT * FROM "drug spending" JOIN main.providers ON 1=1`)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	want := []string{"drug spending", "main.providers"}
	if diff := cmp.Diff(want, a.Tables); diff != "" {
		t.Errorf("tables mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzeDeduplicates(t *testing.T) {
	a, err := Analyze(`SELECT * FROM t UNION SELECT * FROM T`)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(a.Tables) != 1 {
		t.Errorf("expected a single deduplicated table, got %v", a.Tables)
	}
}

func TestAnalyzeCommentsAndStrings(t *testing.T) {
	sql := `-- from fake_table
		SELECT 'FROM not_a_table', col /* JOIN ghost */ FROM real_table`
	a, err := Analyze(sql)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if diff := cmp.Diff([]string{"real_table"}, a.Tables); diff != "" {
		t.Errorf("tables mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzeNoRelations(t *testing.T) {
	a, err := Analyze(`SELECT 1 + 1`)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(a.Tables) != 0 {
		t.Errorf("unexpected tables: %v", a.Tables)
	}
}
