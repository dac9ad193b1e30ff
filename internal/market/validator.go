// Package market runs simulated A/B tests of product ideas: it renders a
// landing page per variant, registers placeholder ad campaigns, and after
// the test window reports per-variant metrics with a model's analysis.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/llm"
	"github.com/Atharva-Kanherkar/echo/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Defaults of a test request.
const (
	DefaultBudget   = 10.0
	DefaultDuration = time.Hour
)

// Test statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
)

const pageBaseURL = "https://echo-test.app"

// Variant is one version of the pitch under test.
type Variant struct {
	Headline    string `json:"headline"`
	Subheadline string `json:"subheadline,omitempty"`
	CTA         string `json:"cta,omitempty"`
}

// LandingPage is a rendered variant.
type LandingPage struct {
	VariantID string  `json:"variant_id"`
	URL       string  `json:"url"`
	Path      string  `json:"path"`
	Content   Variant `json:"content"`
}

// TestRequest describes a new A/B test.
type TestRequest struct {
	UserID   string         `json:"user_id"`
	Variants []Variant      `json:"variants"`
	Audience map[string]any `json:"target_audience"`
	Budget   float64        `json:"budget"`
	Duration time.Duration  `json:"-"`
}

// Metrics are the numbers of one variant.
type Metrics struct {
	Headline       string  `json:"headline"`
	Impressions    int     `json:"impressions"`
	Clicks         int     `json:"clicks"`
	Conversions    int     `json:"conversions"`
	CTR            float64 `json:"ctr"`
	ConversionRate float64 `json:"conversion_rate"`
	CostPerClick   float64 `json:"cost_per_click"`
}

// Analysis is the model's reading of the metrics.
type Analysis struct {
	Winner          string   `json:"winner"`
	Confidence      string   `json:"confidence"`
	KeyInsight      string   `json:"key_insight"`
	Recommendations []string `json:"recommendations"`
}

// Outcome is what Results reports.
type Outcome struct {
	Status   string             `json:"status"`
	Message  string             `json:"message,omitempty"`
	Results  map[string]Metrics `json:"results,omitempty"`
	Analysis *Analysis          `json:"analysis,omitempty"`
}

// Validator creates and evaluates tests.
type Validator struct {
	store     store.DocumentStore
	llm       llm.Completer
	pagesDir  string
	platforms []string
	logger    *zap.Logger
	now       func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand

	tests sync.Map // test id -> *sync.Mutex held while completing
}

// NewValidator creates a validator writing pages to pagesDir and registering
// campaigns on the given platforms.
func NewValidator(st store.DocumentStore, c llm.Completer, pagesDir string, platforms []string, logger *zap.Logger) *Validator {
	return &Validator{
		store:     st,
		llm:       c,
		pagesDir:  pagesDir,
		platforms: platforms,
		logger:    logger.Named("market"),
		now:       time.Now,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateTest renders the landing pages, registers campaigns and stores the
// running test. It returns the test id.
func (v *Validator) CreateTest(ctx context.Context, req TestRequest) (string, error) {
	if len(req.Variants) == 0 {
		return "", fmt.Errorf("at least one variant is required")
	}
	if req.Budget <= 0 {
		req.Budget = DefaultBudget
	}
	if req.Duration <= 0 {
		req.Duration = DefaultDuration
	}
	if req.Audience == nil {
		req.Audience = map[string]any{}
	}

	id := uuid.NewString()
	if err := os.MkdirAll(v.pagesDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create pages dir: %w", err)
	}

	pages := make([]LandingPage, len(req.Variants))
	for i, variant := range req.Variants {
		page, err := v.createPage(ctx, id, i, variant)
		if err != nil {
			return "", err
		}
		pages[i] = page
	}

	campaigns := v.createCampaigns(pages, req.Budget/float64(len(pages)))
	now := v.now().UTC()

	err := v.store.Set(ctx, store.CollectionABTests, id, store.Doc{
		"user_id":         req.UserID,
		"variants":        req.Variants,
		"landing_pages":   pages,
		"campaign_ids":    campaigns,
		"target_audience": req.Audience,
		"budget":          req.Budget,
		"duration_hours":  req.Duration.Hours(),
		"status":          StatusRunning,
		"start_time":      now.Format(time.RFC3339),
		"end_time":        now.Add(req.Duration).Format(time.RFC3339),
	}, false)
	if err != nil {
		return "", fmt.Errorf("failed to store test: %w", err)
	}

	v.logger.Info("A/B test created",
		zap.String("id", id),
		zap.Float64("budget", req.Budget),
		zap.Duration("duration", req.Duration),
		zap.Int("variants", len(req.Variants)))
	return id, nil
}

func (v *Validator) createPage(ctx context.Context, testID string, i int, variant Variant) (LandingPage, error) {
	html, err := v.generateHTML(ctx, variant)
	if err != nil {
		v.logger.Debug("using fallback page", zap.Error(err))
		html = FallbackHTML(variant, testID, variantID(i))
	}

	path := filepath.Join(v.pagesDir, fmt.Sprintf("landing_page_%s_%d.html", testID, i))
	if err := os.WriteFile(path, []byte(html), 0644); err != nil {
		return LandingPage{}, fmt.Errorf("failed to write landing page: %w", err)
	}
	return LandingPage{
		VariantID: variantID(i),
		URL:       fmt.Sprintf("%s/%s/%s", pageBaseURL, testID, variantID(i)),
		Path:      path,
		Content:   variant,
	}, nil
}

func (v *Validator) generateHTML(ctx context.Context, variant Variant) (string, error) {
	if v.llm == nil {
		return "", fmt.Errorf("no model configured")
	}
	cta := variant.CTA
	if cta == "" {
		cta = "Learn More"
	}
	reply, err := v.llm.ChatWithSystem(ctx, "You write landing pages.", fmt.Sprintf(pagePrompt, variant.Headline, variant.Subheadline, cta))
	if err != nil {
		return "", err
	}
	html := llm.StripCodeFence(reply)
	if !strings.Contains(strings.ToLower(html), "<html") {
		return "", fmt.Errorf("reply is not an HTML document")
	}
	return html, nil
}

// createCampaigns registers one placeholder campaign per page and platform.
func (v *Validator) createCampaigns(pages []LandingPage, budgetPerVariant float64) []string {
	var ids []string
	for _, p := range pages {
		for _, platform := range v.platforms {
			id := platform + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
			v.logger.Debug("campaign created",
				zap.String("campaign", id),
				zap.String("url", p.URL),
				zap.Float64("budget", budgetPerVariant))
			ids = append(ids, id)
		}
	}
	return ids
}

// Results reports on a test. A running test before its end time reports
// only its status; afterwards metrics are collected, analysed and stored,
// and the test is marked completed.
func (v *Validator) Results(ctx context.Context, id string) (*Outcome, error) {
	lock, _ := v.tests.LoadOrStore(id, &sync.Mutex{})
	lock.(*sync.Mutex).Lock()
	defer lock.(*sync.Mutex).Unlock()

	d, err := v.store.Get(ctx, store.CollectionABTests, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load test: %w", err)
	}

	if d.Data.String("status") == StatusCompleted {
		var out Outcome
		if err := decode(store.Doc{
			"status":   StatusCompleted,
			"results":  d.Data["results"],
			"analysis": d.Data["analysis"],
		}, &out); err != nil {
			return nil, err
		}
		return &out, nil
	}

	end, err := time.Parse(time.RFC3339, d.Data.String("end_time"))
	if err != nil {
		return nil, fmt.Errorf("invalid end time: %w", err)
	}
	if v.now().Before(end) {
		return &Outcome{Status: StatusRunning, Message: "Test still in progress"}, nil
	}

	var variants []Variant
	if err := decode(d.Data["variants"], &variants); err != nil {
		return nil, err
	}
	results := v.collect(variants, d.Data.Float("budget"))
	analysis := v.analyze(ctx, results)

	if err := v.store.Update(ctx, store.CollectionABTests, id, store.Doc{
		"status":   StatusCompleted,
		"results":  results,
		"analysis": analysis,
	}); err != nil {
		return nil, fmt.Errorf("failed to store results: %w", err)
	}
	return &Outcome{Status: StatusCompleted, Results: results, Analysis: analysis}, nil
}

// collect draws placeholder metrics for every variant.
func (v *Validator) collect(variants []Variant, budget float64) map[string]Metrics {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make(map[string]Metrics, len(variants))
	for i, variant := range variants {
		impressions := 100 + v.rnd.Intn(401)
		clicks := 10 + v.rnd.Intn(41)
		conversions := 1 + v.rnd.Intn(10)
		out[variantID(i)] = Metrics{
			Headline:       variant.Headline,
			Impressions:    impressions,
			Clicks:         clicks,
			Conversions:    conversions,
			CTR:            round2(float64(clicks) / float64(impressions) * 100),
			ConversionRate: round2(float64(conversions) / float64(clicks) * 100),
			CostPerClick:   round2(budget / float64(len(variants)) / float64(clicks)),
		}
	}
	return out
}

func (v *Validator) analyze(ctx context.Context, results map[string]Metrics) *Analysis {
	fallback := &Analysis{
		Winner:          "variant_0",
		Confidence:      "low",
		KeyInsight:      "Insufficient data for analysis",
		Recommendations: []string{},
	}
	if v.llm == nil {
		return fallback
	}

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fallback
	}
	var a Analysis
	if err := llm.ChatJSON(ctx, v.llm, "You analyse A/B tests.", fmt.Sprintf(analysisPrompt, data), &a); err != nil || a.Winner == "" {
		v.logger.Debug("using fallback analysis", zap.Error(err))
		return fallback
	}
	if a.Recommendations == nil {
		a.Recommendations = []string{}
	}
	return &a
}

func variantID(i int) string {
	return fmt.Sprintf("variant_%d", i)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func decode(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode: %w", err)
	}
	return nil
}
