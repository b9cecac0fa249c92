// Package handlers holds the demo endpoint: a deliberately slow sales
// report whose inputs are two enumerated parameters, which makes its whole
// output space precomputable.
package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/jithinsankar/fastapi-cached/internal/domain"
	"github.com/jithinsankar/fastapi-cached/internal/intercept"
	"github.com/jithinsankar/fastapi-cached/pkg/logging"

	"go.uber.org/zap"
)

// Subregion is the sales subregion, a closed set.
type Subregion string

func (Subregion) DiscreteValues() []string {
	return []string{"EMEA", "APAC", "AMER"}
}

// StoreID identifies a physical store, or the online channel.
type StoreID string

func (StoreID) DiscreteValues() []string {
	return []string{"101", "202", "303", "404", "ONLINE"}
}

// Report is the sales report returned for one (subregion, store) pair.
type Report struct {
	Subregion string         `json:"subregion"`
	StoreID   string         `json:"store_id"`
	Data      map[string]int `json:"data"`
}

// SalesReportConfig tunes the demo handler.
type SalesReportConfig struct {
	// Delay simulates the expensive per-call work (the original talks to a
	// slow database). Zero in tests.
	Delay time.Duration
}

// SalesReport builds the slow report handler. Once wrapped, this function
// only runs during precomputation and for out-of-domain fallbacks.
func SalesReport(cfg SalesReportConfig) intercept.Handler {
	return func(ctx context.Context, args domain.Assignment) (any, error) {
		subregion := args["subregion"]
		storeID := args["store_id"]

		logging.L(ctx).Info("computing sales report",
			zap.String("subregion", subregion),
			zap.String("store_id", storeID),
		)

		if cfg.Delay > 0 {
			select {
			case <-time.After(cfg.Delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		var revenue int
		if storeID == "ONLINE" {
			revenue = len(subregion) * 5000
		} else {
			// Out-of-domain store IDs that aren't numeric just report zero.
			n, _ := strconv.Atoi(storeID)
			revenue = n * 1000
		}

		return Report{
			Subregion: subregion,
			StoreID:   storeID,
			Data:      map[string]int{"revenue": revenue},
		}, nil
	}
}

// SalesReportSignature describes the handler's parameter list for discrete
// domain extraction.
func SalesReportSignature() (domain.Signature, error) {
	return domain.SignatureOf(
		func(ctx context.Context, subregion Subregion, storeID StoreID) (Report, error) {
			return Report{}, nil
		},
		"subregion", "store_id",
	)
}

// NewSalesReportWrapper wires the demo handler into an intercepting
// wrapper. The cache file path defaults to sales_report_cache.json.
func NewSalesReportWrapper(cfg SalesReportConfig, opts ...intercept.Option) (*intercept.Wrapper, error) {
	sig, err := SalesReportSignature()
	if err != nil {
		return nil, err
	}
	return intercept.Wrap("sales_report", SalesReport(cfg), sig, opts...)
}
