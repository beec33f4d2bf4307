package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/sevarahealth/sevara/internal/models"
)

func getCounterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	c, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("get metric: %v", err)
	}
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestMetrics_TransitionCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	t.Run("increments by action and result", func(t *testing.T) {
		m.RecordTransition("sign", "success")
		m.RecordTransition("sign", "success")
		m.RecordTransition("sign", "conflict")

		if val := getCounterValue(t, m.TransitionCounter, "sign", "success"); val != 2 {
			t.Errorf("expected 2, got %f", val)
		}
		if val := getCounterValue(t, m.TransitionCounter, "sign", "conflict"); val != 1 {
			t.Errorf("expected 1, got %f", val)
		}
	})

	t.Run("actions are tracked independently", func(t *testing.T) {
		m.RecordTransition("countersign", "success")

		if val := getCounterValue(t, m.TransitionCounter, "countersign", "success"); val != 1 {
			t.Errorf("expected 1, got %f", val)
		}
	})
}

type stubStatsStore struct {
	stats *models.AgreementStats
	err   error
	calls int
}

func (s *stubStatsStore) GetAgreementStats(_ context.Context) (*models.AgreementStats, error) {
	s.calls++
	return s.stats, s.err
}

func TestAgreementCollector_Gauges(t *testing.T) {
	store := &stubStatsStore{stats: &models.AgreementStats{
		NotStarted:              3,
		AwaitingOrgSignature:    2,
		AwaitingVendorSignature: 1,
		Executed:                5,
		Voided:                  1,
		TotalOrgs:               12,
	}}

	reg := prometheus.NewRegistry()
	if err := reg.Register(NewAgreementCollector(store, zerolog.Nop())); err != nil {
		t.Fatalf("register collector: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	byName := make(map[string]*dto.MetricFamily)
	for _, f := range families {
		byName[f.GetName()] = f
	}

	agreements, ok := byName["sevara_baa_agreements"]
	if !ok {
		t.Fatal("sevara_baa_agreements not exported")
	}
	if got := len(agreements.GetMetric()); got != 5 {
		t.Errorf("expected 5 status series, got %d", got)
	}

	orgs, ok := byName["sevara_organizations_total"]
	if !ok {
		t.Fatal("sevara_organizations_total not exported")
	}
	if val := orgs.GetMetric()[0].GetGauge().GetValue(); val != 12 {
		t.Errorf("expected 12 orgs, got %f", val)
	}
}

func TestAgreementCollector_CachesBetweenScrapes(t *testing.T) {
	store := &stubStatsStore{stats: &models.AgreementStats{TotalOrgs: 1}}
	collector := NewAgreementCollector(store, zerolog.Nop())

	reg := prometheus.NewRegistry()
	if err := reg.Register(collector); err != nil {
		t.Fatalf("register collector: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := reg.Gather(); err != nil {
			t.Fatalf("gather: %v", err)
		}
	}
	if store.calls != 1 {
		t.Errorf("expected 1 store call across cached scrapes, got %d", store.calls)
	}
}

func TestAgreementCollector_StoreFailure(t *testing.T) {
	store := &stubStatsStore{err: errors.New("connection refused")}

	reg := prometheus.NewRegistry()
	if err := reg.Register(NewAgreementCollector(store, zerolog.Nop())); err != nil {
		t.Fatalf("register collector: %v", err)
	}

	// A failing store must not break the scrape.
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 0 {
		t.Errorf("expected no families on store failure, got %d", len(families))
	}
}
