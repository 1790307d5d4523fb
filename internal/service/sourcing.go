package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/haywardj/lotline/internal/domain"
	"github.com/haywardj/lotline/internal/logger"
	"github.com/haywardj/lotline/internal/platform/marketplace"
	"github.com/haywardj/lotline/internal/platform/supplier"
)

const (
	searchPageSize = 40
	// Phase-2 progress is checkpointed every this many products.
	checkpointEvery = 10
	// Item creation in phase 3 retries this many times before the candidate
	// is dropped from its auction.
	createItemAttempts = 3
	freightCountryCode = "US"
)

// SourcingOptions controls one pipeline run.
type SourcingOptions struct {
	// Resume reloads the latest unfinished run instead of starting fresh.
	Resume bool
	// DryRun executes phases 1 and 2 and the phase-3 distribution without
	// any marketplace creation calls.
	DryRun bool
}

// SourcingConfig holds the pipeline tuning knobs.
type SourcingConfig struct {
	Auctions        int
	ItemsPerAuction int
	// TopCandidates caps how many phase-1 candidates reach deep evaluation.
	TopCandidates int
	// KeywordBatch is how many rotation keywords one run searches.
	KeywordBatch     int
	PagesPerSearch   int
	CallDelay        time.Duration
	BackoffAfter     int
	RequestRate      float64
	BuyerPremiumRate float64
}

// AuctionPlan is the phase-3 distribution for one auction, also returned by
// dry runs for pre-flight inspection.
type AuctionPlan struct {
	Title      string                     `json:"title"`
	SaleID     string                     `json:"sale_id,omitempty"`
	OpensAt    time.Time                  `json:"opens_at"`
	ClosesAt   time.Time                  `json:"closes_at"`
	Candidates []domain.EnrichedCandidate `json:"candidates"`
}

// SourcingService runs the three-phase smart-sourcing pipeline: wide
// keyword search, deep candidate evaluation, and stratified auction
// creation. Run state is persisted after every bounded unit of work so a
// crashed run resumes where it stopped.
type SourcingService struct {
	runs     RunStore
	keywords KeywordStore
	lots     LotStore
	supplier supplier.API
	market   marketplace.API
	breakers *BreakerEngine

	cfg     SourcingConfig
	limiter *rate.Limiter
	nowFunc func() time.Time
	sleep   func(time.Duration)

	consecutiveFailures int
	backoff             backoff.BackOff
}

// NewSourcingService creates the sourcing pipeline. The breaker engine
// receives one lot-creation tick per lot the run actually creates.
func NewSourcingService(runs RunStore, keywords KeywordStore, lots LotStore, sup supplier.API, market marketplace.API, breakers *BreakerEngine, cfg SourcingConfig) *SourcingService {
	rps := cfg.RequestRate
	if rps <= 0 {
		rps = 1
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Second
	bo.MaxInterval = 2 * time.Minute
	bo.MaxElapsedTime = 0

	return &SourcingService{
		runs:     runs,
		keywords: keywords,
		lots:     lots,
		supplier: sup,
		market:   market,
		breakers: breakers,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		nowFunc:  time.Now,
		sleep:    time.Sleep,
		backoff:  bo,
	}
}

// SetClock overrides the clock and sleep. Test hook.
func (s *SourcingService) SetClock(now func() time.Time, sleep func(time.Duration)) {
	s.nowFunc = now
	s.sleep = sleep
}

// pace enforces the supplier rate limit plus the configured fixed delay,
// escalating to exponential backoff after a run of consecutive failures.
func (s *SourcingService) pace(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	if s.cfg.CallDelay > 0 {
		s.sleep(s.cfg.CallDelay)
	}
	if s.cfg.BackoffAfter > 0 && s.consecutiveFailures >= s.cfg.BackoffAfter {
		d := s.backoff.NextBackOff()
		logger.CtxWarn(ctx, "%d consecutive supplier failures, backing off %s", s.consecutiveFailures, d)
		s.sleep(d)
	}
	return nil
}

func (s *SourcingService) noteResult(err error) {
	if err != nil {
		s.consecutiveFailures++
		return
	}
	s.consecutiveFailures = 0
	s.backoff.Reset()
}

// Run executes the pipeline end to end, resuming a prior run when asked.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - opts: resume and dry-run switches.
// Returns:
//   - *domain.SourcingRun: the final persisted run state.
//   - []AuctionPlan: the phase-3 distribution, populated even on dry runs.
//   - error: non-nil on unrecoverable failure; the run row still holds the
//     last checkpoint.
func (s *SourcingService) Run(ctx context.Context, opts SourcingOptions) (*domain.SourcingRun, []AuctionPlan, error) {
	run, err := s.loadOrCreateRun(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	ctx = logger.SetRunID(ctx, run.ID)

	if !run.Phase1Done {
		if err := s.runPhase1(ctx, run); err != nil {
			return run, nil, fmt.Errorf("phase 1: %w", err)
		}
	}
	if !run.Phase2Done {
		if err := s.runPhase2(ctx, run); err != nil {
			return run, nil, fmt.Errorf("phase 2: %w", err)
		}
	}

	plans, err := s.runPhase3(ctx, run, opts.DryRun)
	if err != nil {
		return run, plans, fmt.Errorf("phase 3: %w", err)
	}

	if !opts.DryRun {
		now := s.nowFunc()
		run.CompletedAt = &now
	}
	if err := s.runs.Save(ctx, run); err != nil {
		return run, plans, err
	}
	return run, plans, nil
}

func (s *SourcingService) loadOrCreateRun(ctx context.Context, opts SourcingOptions) (*domain.SourcingRun, error) {
	if opts.Resume {
		run, err := s.runs.Latest(ctx)
		if err != nil {
			return nil, fmt.Errorf("no run to resume: %w", err)
		}
		if run.CompletedAt != nil {
			return nil, fmt.Errorf("latest run %s already completed", run.ID)
		}
		logger.CtxInfo(ctx, "resuming run %s (phase1=%t phase2=%t)", run.ID, run.Phase1Done, run.Phase2Done)
		return run, nil
	}

	run := &domain.SourcingRun{
		ID:               uuid.New().String(),
		StartedAt:        s.nowFunc(),
		BuyerPremiumRate: s.cfg.BuyerPremiumRate,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// runPhase1 searches the supplier catalog for every rotation keyword under
// two sort orders and up to PagesPerSearch pages each, scoring every hit.
// The run row is saved after each completed keyword.
func (s *SourcingService) runPhase1(ctx context.Context, run *domain.SourcingRun) error {
	batch := s.cfg.KeywordBatch
	if batch <= 0 {
		batch = 10
	}
	keywords, err := s.keywords.NextForRotation(ctx, batch)
	if err != nil {
		return err
	}
	if len(keywords) == 0 {
		return fmt.Errorf("keyword rotation is empty")
	}

	categorySeen := make(map[string]int)
	for _, c := range run.Candidates.Data {
		categorySeen[c.Category]++
	}
	seenProducts := make(map[string]bool, len(run.Candidates.Data))
	for _, c := range run.Candidates.Data {
		seenProducts[c.ProductID] = true
	}

	for _, kw := range keywords {
		if run.HasProcessedKeyword(kw.Keyword) {
			continue
		}
		found := s.searchKeyword(ctx, run, kw, categorySeen, seenProducts)

		run.ProcessedKeywords = append(run.ProcessedKeywords, kw.Keyword)
		if err := s.runs.Save(ctx, run); err != nil {
			return err
		}
		if err := s.keywords.MarkSourced(ctx, kw.ID, 0); err != nil {
			logger.CtxWarn(ctx, "mark keyword %q sourced: %v", kw.Keyword, err)
		}
		logger.With(logger.Fields{logger.FieldCount: found}).WithRun(run.ID).
			Info(ctx, "keyword %q complete, %d candidates total", kw.Keyword, len(run.Candidates.Data))
	}

	run.Phase1Done = true
	return s.runs.Save(ctx, run)
}

// searchKeyword runs all page/sort combinations for one keyword and returns
// how many new candidates it contributed. Search failures are logged into
// the run's error log, never fatal.
func (s *SourcingService) searchKeyword(ctx context.Context, run *domain.SourcingRun, kw domain.SourcingKeyword, categorySeen map[string]int, seenProducts map[string]bool) int {
	found := 0
	for _, sortOrder := range []string{supplier.SortBestMatch, supplier.SortSellPrice} {
		for page := 1; page <= s.cfg.PagesPerSearch; page++ {
			if err := s.pace(ctx); err != nil {
				return found
			}
			products, err := s.supplier.SearchProducts(ctx, kw.Keyword, sortOrder, page, searchPageSize)
			s.noteResult(err)
			if err != nil {
				run.ErrorLog = append(run.ErrorLog, fmt.Sprintf("search %q %s p%d: %v", kw.Keyword, sortOrder, page, err))
				continue
			}
			if len(products) == 0 {
				break
			}
			for _, p := range products {
				if seenProducts[p.ID] {
					continue
				}
				if kw.MaxCostCents > 0 && p.SellPriceCents > kw.MaxCostCents {
					continue
				}
				seenProducts[p.ID] = true
				cand := domain.Candidate{
					ProductID:      p.ID,
					ProductName:    p.Name,
					Category:       p.Category,
					Keyword:        kw.Keyword,
					WholesaleCents: p.SellPriceCents,
					ListingCount:   p.ListedNum,
					InventoryNum:   p.WarehouseInventory,
					HasVideo:       p.HasVideo,
				}
				cand.Score = ScoreCandidate(cand, categorySeen)
				categorySeen[cand.Category]++
				run.Candidates.Data = append(run.Candidates.Data, cand)
				found++
			}
		}
	}
	return found
}

// runPhase2 deep-evaluates the top phase-1 candidates: full detail, best
// variant by markup-to-weight, inventory verification, cheapest freight,
// pricing, and the composite re-score. Progress is checkpointed every ten
// products.
func (s *SourcingService) runPhase2(ctx context.Context, run *domain.SourcingRun) error {
	candidates := append([]domain.Candidate(nil), run.Candidates.Data...)
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if len(candidates) > s.cfg.TopCandidates {
		candidates = candidates[:s.cfg.TopCandidates]
	}

	sinceCheckpoint := 0
	for i, cand := range candidates {
		if run.HasProcessedProduct(cand.ProductID) {
			continue
		}

		enriched, err := s.evaluateCandidate(ctx, cand, i)
		run.ProcessedProducts = append(run.ProcessedProducts, cand.ProductID)
		if err != nil {
			run.ErrorLog = append(run.ErrorLog, fmt.Sprintf("evaluate %s: %v", cand.ProductID, err))
		} else if enriched != nil {
			run.Enriched.Data = append(run.Enriched.Data, *enriched)
		}

		sinceCheckpoint++
		if sinceCheckpoint >= checkpointEvery {
			if err := s.runs.Save(ctx, run); err != nil {
				return err
			}
			sinceCheckpoint = 0
		}
	}

	run.Phase2Done = true
	return s.runs.Save(ctx, run)
}

// evaluateCandidate performs the full deep evaluation of one candidate.
// A nil result with nil error means the candidate was disqualified.
func (s *SourcingService) evaluateCandidate(ctx context.Context, cand domain.Candidate, index int) (*domain.EnrichedCandidate, error) {
	if err := s.pace(ctx); err != nil {
		return nil, err
	}
	detail, err := s.supplier.GetProductDetail(ctx, cand.ProductID)
	s.noteResult(err)
	if err != nil {
		return nil, err
	}
	if len(detail.Variants) == 0 {
		return nil, nil
	}

	variant := bestVariant(detail.Variants)
	if variant == nil {
		return nil, nil
	}

	if err := s.pace(ctx); err != nil {
		return nil, err
	}
	inventory, err := s.supplier.GetVariantInventory(ctx, variant.ID)
	s.noteResult(err)
	if err != nil {
		return nil, err
	}
	if inventory <= 0 {
		return nil, nil
	}

	if err := s.pace(ctx); err != nil {
		return nil, err
	}
	freight, err := s.supplier.CalculateFreight(ctx, variant.ID, freightCountryCode)
	s.noteResult(err)
	if err != nil {
		return nil, err
	}

	pricing := PriceCandidate(variant.PriceCents, freight, s.cfg.BuyerPremiumRate, index)

	e := domain.EnrichedCandidate{
		Candidate:        cand,
		VariantID:        variant.ID,
		VariantCostCents: variant.PriceCents,
		WeightGrams:      variant.WeightGrams,
		FreightCents:     freight,
		ImageCount:       len(detail.ImageURLs),
		ImageURLs:        detail.ImageURLs,
		MarkupRatio:      markupRatio(cand.WholesaleCents, variant.PriceCents),
		StartingBidCents: pricing.StartingBidCents,
		ReserveCents:     pricing.ReserveCents,
	}
	e.DeepScore = ScoreEnriched(e)
	return &e, nil
}

// bestVariant picks the variant maximizing markup-to-weight, not simply the
// first one. Variants without stock or weight are skipped.
func bestVariant(variants []supplier.Variant) *supplier.Variant {
	var best *supplier.Variant
	var bestRatio float64
	for i := range variants {
		v := &variants[i]
		if v.InventoryNum <= 0 || v.WeightGrams <= 0 || v.PriceCents <= 0 {
			continue
		}
		ratio := float64(v.PriceCents) / v.WeightGrams
		if best == nil || ratio > bestRatio {
			best = v
			bestRatio = ratio
		}
	}
	return best
}

// markupRatio is the catalog list price over the variant wholesale cost.
func markupRatio(listCents, costCents int64) float64 {
	if costCents <= 0 {
		return 0
	}
	return float64(listCents) / float64(costCents)
}

// runPhase3 distributes the top phase-2 candidates round-robin across the
// configured number of auctions and, unless dry-running, creates the sales,
// items, and lots.
func (s *SourcingService) runPhase3(ctx context.Context, run *domain.SourcingRun, dryRun bool) ([]AuctionPlan, error) {
	enriched := append([]domain.EnrichedCandidate(nil), run.Enriched.Data...)
	sort.Slice(enriched, func(i, j int) bool { return enriched[i].DeepScore > enriched[j].DeepScore })

	want := s.cfg.Auctions * s.cfg.ItemsPerAuction
	if len(enriched) > want {
		enriched = enriched[:want]
	}
	if len(enriched) == 0 {
		return nil, fmt.Errorf("no candidates survived evaluation")
	}

	plans := s.distribute(enriched)
	if dryRun {
		logger.CtxInfo(ctx, "dry run: %d auctions planned over %d candidates, no external calls made", len(plans), len(enriched))
		return plans, nil
	}

	for i := range plans {
		if err := s.createAuction(ctx, run, &plans[i]); err != nil {
			run.ErrorLog = append(run.ErrorLog, fmt.Sprintf("auction %q: %v", plans[i].Title, err))
			if err := s.runs.Save(ctx, run); err != nil {
				return plans, err
			}
		}
	}

	run.Phase3Done = true
	return plans, s.runs.Save(ctx, run)
}

// distribute deals candidates round-robin so each auction gets a stratified
// mix of scores and categories rather than a block of adjacent ranks.
func (s *SourcingService) distribute(enriched []domain.EnrichedCandidate) []AuctionPlan {
	n := s.cfg.Auctions
	if n < 1 {
		n = 1
	}
	opens := s.nowFunc().Add(24 * time.Hour).Truncate(time.Hour)
	closes := opens.Add(7 * 24 * time.Hour)

	plans := make([]AuctionPlan, n)
	for i := range plans {
		plans[i] = AuctionPlan{
			Title:    fmt.Sprintf("Weekly Finds #%d - %s", i+1, opens.Format("Jan 2")),
			OpensAt:  opens,
			ClosesAt: closes,
		}
	}
	for i, e := range enriched {
		p := &plans[i%n]
		p.Candidates = append(p.Candidates, e)
	}
	return plans
}

// createAuction creates one marketplace sale with its items and the backing
// lots. Item creation is retried a bounded number of times; image upload is
// best-effort.
func (s *SourcingService) createAuction(ctx context.Context, run *domain.SourcingRun, plan *AuctionPlan) error {
	saleID, err := s.market.CreateSale(ctx, marketplace.CreateSaleParams{
		Title:    plan.Title,
		OpensAt:  plan.OpensAt,
		ClosesAt: plan.ClosesAt,
	})
	if err != nil {
		return fmt.Errorf("create sale: %w", err)
	}
	plan.SaleID = saleID
	run.CreatedSaleIDs = append(run.CreatedSaleIDs, saleID)

	if err := s.market.AttachShippingPolicy(ctx, saleID); err != nil {
		return fmt.Errorf("attach shipping policy: %w", err)
	}

	for _, cand := range plan.Candidates {
		if err := s.createLot(ctx, saleID, cand); err != nil {
			run.ErrorLog = append(run.ErrorLog, fmt.Sprintf("item %s in sale %s: %v", cand.ProductID, saleID, err))
		}
	}

	if err := s.market.PublishSale(ctx, saleID); err != nil {
		return fmt.Errorf("publish sale: %w", err)
	}

	// Lots only flip to PUBLISHED once the sale is actually public.
	lots, err := s.lots.ListByStatus(ctx, domain.LotStatusListed)
	if err != nil {
		return err
	}
	for _, lot := range lots {
		if lot.SaleID != saleID {
			continue
		}
		if err := s.lots.UpdateStatus(ctx, lot.ID, domain.LotStatusPublished, nil); err != nil {
			run.ErrorLog = append(run.ErrorLog, fmt.Sprintf("publish lot %s: %v", lot.ID, err))
		}
	}
	return nil
}

// createLot creates the marketplace item for one candidate with bounded
// retry, uploads its images best-effort, and records the lot.
func (s *SourcingService) createLot(ctx context.Context, saleID string, cand domain.EnrichedCandidate) error {
	var itemID string
	var err error
	for attempt := 1; attempt <= createItemAttempts; attempt++ {
		itemID, err = s.market.CreateItem(ctx, saleID, marketplace.CreateItemParams{
			Title:            cand.ProductName,
			Description:      fmt.Sprintf("%s - brand new, ships free.", cand.ProductName),
			StartingBidCents: cand.StartingBidCents,
			ReserveCents:     cand.ReserveCents,
		})
		if err == nil {
			break
		}
		logger.CtxWarn(ctx, "create item attempt %d/%d for %s: %v", attempt, createItemAttempts, cand.ProductID, err)
		s.sleep(time.Duration(attempt) * time.Second)
	}
	if err != nil {
		return err
	}

	for _, url := range cand.ImageURLs {
		if err := s.market.UploadItemImage(ctx, itemID, url); err != nil {
			logger.CtxWarn(ctx, "image upload for item %s: %v", itemID, err)
		}
	}

	lot := &domain.Lot{
		ID:                uuid.New().String(),
		SupplierProductID: cand.ProductID,
		SupplierVariantID: cand.VariantID,
		ProductName:       cand.ProductName,
		WholesaleCents:    cand.VariantCostCents,
		ShippingCents:     cand.FreightCents,
		StartingBidCents:  cand.StartingBidCents,
		ReserveCents:      cand.ReserveCents,
		SaleID:            saleID,
		ItemID:            itemID,
		Status:            domain.LotStatusSourced,
	}
	if err := s.lots.Create(ctx, lot); err != nil {
		return err
	}
	// One tick per lot, not per run: the cap limits listings, not invocations.
	s.breakers.RecordLotCreated(ctx)
	return s.lots.UpdateStatus(ctx, lot.ID, domain.LotStatusListed, nil)
}
