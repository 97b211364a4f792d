package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/medlens/medlens/internal/logging"
	"github.com/medlens/medlens/internal/table"
)

func benchTable(rows int) *table.Table {
	t := table.New(
		table.Column{Name: "facility_id", Type: table.Text},
		table.Column{Name: "state", Type: table.Text},
		table.Column{Name: "rating", Type: table.Int},
	)
	states := []string{"CA", "TX", "NY", "FL"}
	for i := 0; i < rows; i++ {
		_ = t.AppendRow(fmt.Sprintf("F%06d", i), states[i%len(states)], int64(i%5+1))
	}
	return t
}

func BenchmarkRegister(b *testing.B) {
	ctx := context.Background()
	data := benchTable(1000)
	s, err := NewSession(logging.NewNopLogger())
	if err != nil {
		b.Fatal(err)
	}
	defer s.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Register(ctx, "hospitals", data, "bench"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkQueryAggregate(b *testing.B) {
	ctx := context.Background()
	s, err := NewSession(logging.NewNopLogger())
	if err != nil {
		b.Fatal(err)
	}
	defer s.Close()
	if _, err := s.Register(ctx, "hospitals", benchTable(1000), "bench"); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Query(ctx, "SELECT state, AVG(rating) FROM hospitals GROUP BY state"); err != nil {
			b.Fatal(err)
		}
	}
}
