package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/skywatch/internal/consolidate"
	"github.com/linnemanlabs/skywatch/internal/consolidate/memstore"
	"github.com/linnemanlabs/skywatch/internal/fake"
	"github.com/linnemanlabs/skywatch/internal/filter"
	"github.com/linnemanlabs/skywatch/internal/incident"
	"github.com/linnemanlabs/skywatch/internal/verify"
)

var batchNow = time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)

// scriptedProvider classifies by matching a substring of the title.
type scriptedProvider struct {
	mu      sync.Mutex
	byTitle map[string]*verify.Response
	err     error
	calls   int
}

func (p *scriptedProvider) Classify(_ context.Context, req *verify.Request) (*verify.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	if resp, ok := p.byTitle[req.Title]; ok {
		return resp, nil
	}
	return &verify.Response{IsIncident: true, Category: "incident", Confidence: 0.9}, nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// captureNotifier records notified incidents.
type captureNotifier struct {
	mu   sync.Mutex
	incs []*incident.Consolidated
	fail bool
}

func (n *captureNotifier) Notify(_ context.Context, inc *incident.Consolidated) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("webhook down")
	}
	n.incs = append(n.incs, inc)
	return nil
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.incs)
}

func ptr(v float64) *float64 { return &v }

func rawReport(title string, sources ...incident.RawSource) incident.RawRecord {
	if len(sources) == 0 {
		sources = []incident.RawSource{
			{URL: "https://dr.dk/" + title, SourceType: "media"},
		}
	}
	return incident.RawRecord{
		Title:      title,
		Narrative:  "A drone was observed hovering near the runway.",
		OccurredAt: "2026-03-01T12:00:00Z",
		Lat:        ptr(55.6181),
		Lon:        ptr(12.6561),
		AssetType:  "airport",
		Country:    "DK",
		Sources:    sources,
	}
}

type testRig struct {
	svc      *Service
	store    *memstore.Store
	notifier *captureNotifier
	provider *scriptedProvider
}

func newRig(provider *scriptedProvider) *testRig {
	store := memstore.New()
	notifier := &captureNotifier{}

	var p verify.Provider
	if provider != nil {
		p = provider
	}
	verifier := verify.New(p, verify.NewCache(time.Hour, nil), time.Second, 0.6, log.Nop(), verify.Hooks{})
	engine := consolidate.NewEngine(store, 2, 6*time.Hour, log.Nop())

	svc := NewService(
		incident.NewNormalizer(nil),
		filter.New(filter.DefaultBoundingBox()),
		fake.New(),
		verifier,
		engine,
		notifier,
		nil, // metrics optional, nil records nothing
		log.Nop(),
		4,
		func() time.Time { return batchNow },
	)
	return &testRig{svc: svc, store: store, notifier: notifier, provider: provider}
}

func TestIngest_DuplicateReportsMerge(t *testing.T) {
	t.Parallel()

	rig := newRig(nil)

	out := rig.svc.Ingest(context.Background(), []incident.RawRecord{
		rawReport("Drone over Kastrup airport"),
		rawReport("Kastrup closed after drone sighting"),
	})

	if out[0].Status != StatusCreated && out[1].Status != StatusCreated {
		t.Fatalf("expected one created, got %+v", out)
	}
	var merged, created int
	for _, o := range out {
		switch o.Status {
		case StatusCreated:
			created++
		case StatusMerged:
			merged++
		}
	}
	if created != 1 || merged != 1 {
		t.Errorf("created=%d merged=%d, want 1 and 1", created, merged)
	}
	if out[0].IncidentID != out[1].IncidentID {
		t.Error("both reports should land on the same incident")
	}

	incs, err := rig.store.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(incs) != 1 {
		t.Errorf("incidents = %d, want 1", len(incs))
	}
}

func TestIngest_OutOfRegionRejected(t *testing.T) {
	t.Parallel()

	rig := newRig(nil)

	raw := rawReport("Drone at JFK")
	raw.Lat, raw.Lon = ptr(40.64), ptr(-73.78)
	raw.Country = "US"

	out := rig.svc.Ingest(context.Background(), []incident.RawRecord{raw})
	if out[0].Status != StatusRejected {
		t.Fatalf("status = %q, want rejected", out[0].Status)
	}
	if out[0].Stage != StageFilter {
		t.Errorf("stage = %q, want %q", out[0].Stage, StageFilter)
	}
}

func TestIngest_SatireRejected(t *testing.T) {
	t.Parallel()

	rig := newRig(nil)

	raw := rawReport("Drone demands asylum at Kastrup")
	raw.Sources = []incident.RawSource{
		{URL: "https://rokokoposten.dk/drone", SourceType: "media"},
	}

	out := rig.svc.Ingest(context.Background(), []incident.RawRecord{raw})
	if out[0].Status != StatusRejected {
		t.Fatalf("status = %q, want rejected", out[0].Status)
	}
	if out[0].Stage != StageFake {
		t.Errorf("stage = %q, want %q", out[0].Stage, StageFake)
	}
}

func TestIngest_MalformedRecordDoesNotAbortBatch(t *testing.T) {
	t.Parallel()

	rig := newRig(nil)

	bad := rawReport("partially geocoded")
	bad.Lon = nil

	out := rig.svc.Ingest(context.Background(), []incident.RawRecord{
		bad,
		rawReport("Drone over Kastrup airport"),
	})

	if out[0].Status != StatusRejected || out[0].Stage != StageNormalize {
		t.Errorf("bad record outcome = %+v, want normalize reject", out[0])
	}
	if out[1].Status != StatusCreated {
		t.Errorf("good record outcome = %+v, want created", out[1])
	}
}

func TestIngest_AIRejectDropsCandidate(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{byTitle: map[string]*verify.Response{
		"Denmark considers drone no-fly zones": {IsIncident: false, Category: "policy", Confidence: 0.9},
	}}
	rig := newRig(provider)

	out := rig.svc.Ingest(context.Background(), []incident.RawRecord{
		rawReport("Denmark considers drone no-fly zones"),
	})

	if out[0].Status != StatusRejected {
		t.Fatalf("status = %q, want rejected", out[0].Status)
	}
	if out[0].Stage != StageVerify {
		t.Errorf("stage = %q, want %q", out[0].Stage, StageVerify)
	}
	if out[0].Reason != "policy" {
		t.Errorf("reason = %q, want policy", out[0].Reason)
	}
}

func TestIngest_AIFailureDoesNotBlock(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{err: errors.New("api down")}
	rig := newRig(provider)

	out := rig.svc.Ingest(context.Background(), []incident.RawRecord{
		rawReport("Drone over Kastrup airport"),
	})

	if out[0].Status != StatusCreated {
		t.Errorf("status = %q, want created despite AI outage", out[0].Status)
	}
}

func TestIngest_AIAnnotationStored(t *testing.T) {
	t.Parallel()

	rig := newRig(&scriptedProvider{}) // default: incident, 0.9

	out := rig.svc.Ingest(context.Background(), []incident.RawRecord{
		rawReport("Drone over Kastrup airport"),
	})
	if out[0].Status != StatusCreated {
		t.Fatalf("status = %q", out[0].Status)
	}

	inc, ok, err := rig.store.Get(context.Background(), out[0].IncidentID)
	if err != nil || !ok {
		t.Fatalf("Get: %v %v", ok, err)
	}
	if inc.AICategory != "incident" {
		t.Errorf("ai category = %q, want incident", inc.AICategory)
	}
	if inc.AIConfidence == nil || *inc.AIConfidence != 0.9 {
		t.Error("ai confidence not stored")
	}
	if got := rig.provider.callCount(); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
}

func TestIngest_OfficialUpgradeNotifiesOnce(t *testing.T) {
	t.Parallel()

	rig := newRig(nil)
	ctx := context.Background()

	// first batch: media only, REPORTED, no notification
	out := rig.svc.Ingest(ctx, []incident.RawRecord{
		rawReport("Drone over Kastrup airport"),
	})
	if out[0].EvidenceScore != consolidate.ScoreReported {
		t.Fatalf("score = %d, want %d", out[0].EvidenceScore, consolidate.ScoreReported)
	}
	if rig.notifier.count() != 0 {
		t.Fatal("no notification expected below OFFICIAL")
	}

	// second batch: police source upgrades to OFFICIAL, one notification
	police := rawReport("Police confirm drone at Kastrup",
		incident.RawSource{URL: "https://politi.dk/presse/1", SourceType: "police"})
	out = rig.svc.Ingest(ctx, []incident.RawRecord{police})
	if out[0].Status != StatusMerged {
		t.Fatalf("status = %q, want merged", out[0].Status)
	}
	if out[0].EvidenceScore != consolidate.ScoreOfficial {
		t.Fatalf("score = %d, want %d", out[0].EvidenceScore, consolidate.ScoreOfficial)
	}
	if rig.notifier.count() != 1 {
		t.Fatalf("notifications = %d, want 1", rig.notifier.count())
	}

	// third batch: another official source, already OFFICIAL, no re-notification
	more := rawReport("NOTAM issued for Kastrup",
		incident.RawSource{URL: "https://notam.example/ekch", SourceType: "notam"})
	_ = rig.svc.Ingest(ctx, []incident.RawRecord{more})
	if rig.notifier.count() != 1 {
		t.Errorf("notifications = %d, want still 1", rig.notifier.count())
	}
}

func TestIngest_NotifierFailureDoesNotAffectOutcomes(t *testing.T) {
	t.Parallel()

	rig := newRig(nil)
	rig.notifier.fail = true

	out := rig.svc.Ingest(context.Background(), []incident.RawRecord{
		rawReport("Police confirm drone at Kastrup",
			incident.RawSource{URL: "https://politi.dk/presse/1", SourceType: "police"}),
	})
	if out[0].Status != StatusCreated {
		t.Errorf("status = %q, want created even when the webhook fails", out[0].Status)
	}
}

func TestIngest_DistinctFacilitiesDistinctIncidents(t *testing.T) {
	t.Parallel()

	rig := newRig(nil)

	oslo := rawReport("Drone over Gardermoen")
	oslo.Lat, oslo.Lon = ptr(60.1976), ptr(11.1004)
	oslo.Country = "NO"

	out := rig.svc.Ingest(context.Background(), []incident.RawRecord{
		rawReport("Drone over Kastrup airport"),
		oslo,
	})

	if out[0].Status != StatusCreated || out[1].Status != StatusCreated {
		t.Fatalf("outcomes = %+v, want two created", out)
	}
	if out[0].IncidentID == out[1].IncidentID {
		t.Error("distinct facilities must not share an incident")
	}
}

func TestIngest_EveryRecordGetsAnOutcome(t *testing.T) {
	t.Parallel()

	rig := newRig(nil)

	raws := []incident.RawRecord{
		rawReport("Drone over Kastrup airport"),
		{Title: "", Narrative: "", OccurredAt: ""},
		rawReport("Drone over Kastrup airport again"),
	}
	out := rig.svc.Ingest(context.Background(), raws)

	if len(out) != len(raws) {
		t.Fatalf("outcomes = %d, want %d", len(out), len(raws))
	}
	for i, o := range out {
		if o.Index != i {
			t.Errorf("outcome %d has index %d", i, o.Index)
		}
		if o.Status == "" {
			t.Errorf("outcome %d has no status", i)
		}
	}
}
