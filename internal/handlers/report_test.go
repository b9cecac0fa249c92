package handlers

import (
	"context"
	"testing"

	"github.com/jithinsankar/fastapi-cached/internal/domain"
)

func TestSalesReport_Revenue(t *testing.T) {
	fn := SalesReport(SalesReportConfig{})
	ctx := context.Background()

	tests := []struct {
		subregion string
		storeID   string
		revenue   int
	}{
		{"EMEA", "101", 101000},
		{"APAC", "404", 404000},
		{"EMEA", "ONLINE", 20000}, // len("EMEA") * 5000
		{"AMER", "ONLINE", 20000},
	}

	for _, tt := range tests {
		out, err := fn(ctx, domain.Assignment{
			"subregion": tt.subregion,
			"store_id":  tt.storeID,
		})
		if err != nil {
			t.Fatalf("handler failed for %s/%s: %v", tt.subregion, tt.storeID, err)
		}

		report, ok := out.(Report)
		if !ok {
			t.Fatalf("expected Report, got %T", out)
		}
		if report.Data["revenue"] != tt.revenue {
			t.Fatalf("%s/%s: expected revenue %d, got %d",
				tt.subregion, tt.storeID, tt.revenue, report.Data["revenue"])
		}
	}
}

func TestSalesReportSignature_FullCombinationSpace(t *testing.T) {
	sig, err := SalesReportSignature()
	if err != nil {
		t.Fatalf("signature: %v", err)
	}

	specs, rest, err := domain.Extract(sig)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("expected no non-discrete parameters, got %d", len(rest))
	}
	if len(specs) != 2 {
		t.Fatalf("expected 2 discrete parameters, got %d", len(specs))
	}

	if n := domain.NewCombinations(specs).Count(); n != 15 {
		t.Fatalf("expected 3*5=15 combinations, got %d", n)
	}
}
