package pipeline

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/skywatch/internal/consolidate"
	"github.com/linnemanlabs/skywatch/internal/fake"
	"github.com/linnemanlabs/skywatch/internal/filter"
	"github.com/linnemanlabs/skywatch/internal/incident"
	"github.com/linnemanlabs/skywatch/internal/verify"
)

// Outcome statuses.
const (
	StatusCreated  = "created"
	StatusMerged   = "merged"
	StatusRejected = "rejected"
)

// Stage names used in outcomes and metrics.
const (
	StageNormalize   = "normalize"
	StageFilter      = "filter"
	StageFake        = "fake"
	StageVerify      = "verify"
	StageConsolidate = "consolidate"
)

// Outcome is the per-record result of a batch run.
type Outcome struct {
	Index         int    `json:"index"`
	Status        string `json:"status"`
	Stage         string `json:"stage,omitempty"`
	Reason        string `json:"reason,omitempty"`
	IncidentID    string `json:"incident_id,omitempty"`
	EvidenceScore int    `json:"evidence_score,omitempty"`
}

// Notifier pushes noteworthy incidents to an external channel.
type Notifier interface {
	Notify(ctx context.Context, inc *incident.Consolidated) error
}

// Service runs the full pipeline over ingestion batches.
type Service struct {
	normalizer  *incident.Normalizer
	filter      *filter.Filter
	detector    *fake.Detector
	verifier    *verify.Verifier
	engine      *consolidate.Engine
	notifier    Notifier
	metrics     *Metrics
	logger      log.Logger
	parallelism int
	now         func() time.Time
}

// NewService creates the pipeline service. notifier may be nil; now may be
// nil to use the wall clock.
func NewService(
	normalizer *incident.Normalizer,
	flt *filter.Filter,
	detector *fake.Detector,
	verifier *verify.Verifier,
	engine *consolidate.Engine,
	notifier Notifier,
	metrics *Metrics,
	logger log.Logger,
	parallelism int,
	now func() time.Time,
) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	if now == nil {
		now = time.Now
	}
	if parallelism < 1 {
		parallelism = 1
	}
	return &Service{
		normalizer:  normalizer,
		filter:      flt,
		detector:    detector,
		verifier:    verifier,
		engine:      engine,
		notifier:    notifier,
		metrics:     metrics,
		logger:      logger,
		parallelism: parallelism,
		now:         now,
	}
}

// survivor is a candidate that passed every filter stage and awaits
// consolidation, tagged with its batch index and grouping partition.
type survivor struct {
	index int
	cand  *incident.Candidate
	ai    *consolidate.AIAnnotation
}

// Ingest runs the pipeline over a batch. Individually malformed or rejected
// records never abort the batch; every record gets an outcome. Candidates
// that might consolidate into the same facility are funneled through the same
// partition and processed sequentially; distinct partitions run concurrently.
func (s *Service) Ingest(ctx context.Context, raws []incident.RawRecord) []Outcome {
	start := s.now()
	outcomes := make([]Outcome, len(raws))

	// stages 1-4, sequential: verification happens before any merge decision
	// so provider latency never holds a consolidation partition
	var survivors []survivor
	for i := range raws {
		outcomes[i].Index = i
		cand, out := s.screen(ctx, &raws[i])
		if cand == nil {
			outcomes[i] = Outcome{Index: i, Status: StatusRejected, Stage: out.Stage, Reason: out.Reason}
			s.metrics.observeReject(out.Stage)
			continue
		}
		survivors = append(survivors, survivor{index: i, cand: cand, ai: out.ai})
	}

	// stages 5-6, partitioned by grouping key
	partitions := make(map[string][]survivor)
	for _, sv := range survivors {
		key := incident.GroupKey(sv.cand.AssetType, sv.cand.Country, sv.cand.Lat, sv.cand.Lon, sv.cand.Place, s.engine.Precision())
		partitions[key] = append(partitions[key], sv)
	}

	var notify []*incident.Consolidated
	var g errgroup.Group
	g.SetLimit(s.parallelism)
	results := make([][]*consolidate.Result, 0, len(partitions))
	for _, part := range partitions {
		part := part
		slot := len(results)
		results = append(results, make([]*consolidate.Result, len(part)))
		g.Go(func() error {
			for i, sv := range part {
				res, err := s.engine.Consolidate(ctx, sv.cand, sv.ai)
				if err != nil {
					// conservative default: reject the candidate, keep the batch going
					s.logger.Error(ctx, err, "consolidation failed", "index", sv.index)
					outcomes[sv.index] = Outcome{Index: sv.index, Status: StatusRejected, Stage: StageConsolidate, Reason: err.Error()}
					s.metrics.observeReject(StageConsolidate)
					continue
				}
				results[slot][i] = res
				status := StatusCreated
				if res.Merged {
					status = StatusMerged
				}
				outcomes[sv.index] = Outcome{
					Index:         sv.index,
					Status:        status,
					IncidentID:    res.Incident.ID,
					EvidenceScore: res.Incident.EvidenceScore,
				}
				s.metrics.observeConsolidation(res.Merged, res.Incident.EvidenceScore)
			}
			return nil
		})
	}
	_ = g.Wait() // partition workers never return errors; per-candidate failures are outcomes

	for _, slot := range results {
		for _, res := range slot {
			if res == nil {
				continue
			}
			if res.Incident.EvidenceScore == consolidate.ScoreOfficial && res.PrevScore < consolidate.ScoreOfficial {
				notify = append(notify, res.Incident)
			}
		}
	}
	s.sendNotifications(ctx, notify)

	s.metrics.observeBatch(len(raws), s.now().Sub(start).Seconds())
	s.logger.Info(ctx, "batch complete",
		"batch_size", len(raws),
		"survivors", len(survivors),
		"partitions", len(partitions),
		"duration", s.now().Sub(start).Seconds(),
	)
	return outcomes
}

// screenOutcome carries the rejection stage/reason, or the AI annotation for
// a surviving candidate.
type screenOutcome struct {
	Stage  string
	Reason string
	ai     *consolidate.AIAnnotation
}

// screen runs stages 1-4 on one record. A nil candidate means rejection.
func (s *Service) screen(ctx context.Context, raw *incident.RawRecord) (*incident.Candidate, screenOutcome) {
	cand, err := s.normalizer.Normalize(raw, s.now())
	if err != nil {
		s.logger.Warn(ctx, "malformed candidate", "error", err, "title", raw.Title)
		return nil, screenOutcome{Stage: StageNormalize, Reason: err.Error()}
	}

	fv := s.filter.Check(cand.Title, cand.Narrative, cand.Lat, cand.Lon)
	if !fv.Pass {
		return nil, screenOutcome{Stage: StageFilter, Reason: fv.Reason}
	}
	cand.Place = fv.Place

	dv := s.detector.Detect(cand, s.now())
	if dv.IsFake {
		s.logger.Info(ctx, "fake content rejected",
			"title", cand.Title,
			"failed_layers", dv.FailedLayers,
		)
		return nil, screenOutcome{Stage: StageFake, Reason: "failed layers: " + strings.Join(dv.FailedLayers, ",")}
	}

	vr := s.verifier.Verify(ctx, cand)
	if vr.Opinion == verify.OpinionReject {
		return nil, screenOutcome{Stage: StageVerify, Reason: string(vr.Category)}
	}

	var ai *consolidate.AIAnnotation
	if vr.Opinion != verify.OpinionNone {
		ai = &consolidate.AIAnnotation{Category: string(vr.Category), Confidence: vr.Confidence}
	}
	return cand, screenOutcome{ai: ai}
}

func (s *Service) sendNotifications(ctx context.Context, incs []*incident.Consolidated) {
	if s.notifier == nil {
		return
	}
	for _, inc := range incs {
		if err := s.notifier.Notify(ctx, inc); err != nil {
			s.logger.Error(ctx, err, "notification failed", "incident_id", inc.ID)
		}
	}
}
