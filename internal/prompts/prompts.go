// Package prompts suggests journaling prompts. Suggestions come from a
// text-generation endpoint seeded with the user's recent capsules, and the
// service degrades to a fixed list whenever generation fails.
package prompts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MrSnakeDoc/timecapsule/internal/domain"
	"github.com/MrSnakeDoc/timecapsule/internal/logger"
)

const (
	// Count is the number of prompts returned per call.
	Count = 8
	// contextCapsules is how many recent capsules seed the request.
	contextCapsules = 10
	noCapsules      = "No capsules yet"
)

// DefaultFallback is returned whenever generation fails.
var DefaultFallback = []string{
	"What's a sound from your childhood that instantly brings back memories?",
	"Describe a meal that someone special once made for you.",
	"What's a place you've visited that changed how you see the world?",
	"Write about a moment when a stranger showed you unexpected kindness.",
	"What song takes you back to a specific time in your life?",
	"Describe the view from a window you used to look out of often.",
	"What's something you learned from a grandparent or elder?",
	"Write about a rainy day that turned into something wonderful.",
}

const systemPrompt = "You are a warm, empathetic journaling companion. Generate creative journaling prompts " +
	"that help people reflect on memories, relationships, and meaningful moments. " +
	"Make prompts emotionally resonant but gentle."

var (
	promptRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capsule_prompt_requests_total",
		Help: "Prompt suggestion requests by outcome (cached, generated, fallback).",
	}, []string{"outcome"})

	promptGenerationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "capsule_prompt_generation_duration_seconds",
		Help:    "Duration of calls to the text-generation endpoint.",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20},
	})
)

// ContextSource returns a user's most recent capsules (title, tags, notes).
type ContextSource interface {
	RecentCapsuleContext(ctx context.Context, ownerID uuid.UUID, limit int) ([]domain.Capsule, error)
}

// Generator turns an instruction into raw model text.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Options configures the service.
type Options struct {
	Timeout   time.Duration // per generation call
	CacheTTL  time.Duration // lifetime of a successful generation
	CacheSize int
	Fallback  []string // defaults to DefaultFallback
}

// Service implements GetPrompts.
type Service struct {
	source   ContextSource
	gen      Generator
	cache    *expirable.LRU[uuid.UUID, []string]
	mu       sync.RWMutex
	fallback []string
	timeout  time.Duration
	log      logger.Logger
}

// NewService builds the service. gen may be nil, in which case every call
// returns the fallback list.
func NewService(source ContextSource, gen Generator, opts Options, log logger.Logger) *Service {
	fallback := opts.Fallback
	if len(fallback) != Count {
		fallback = DefaultFallback
	}
	size := opts.CacheSize
	if size <= 0 {
		size = 1024
	}

	return &Service{
		source:   source,
		gen:      gen,
		cache:    expirable.NewLRU[uuid.UUID, []string](size, nil, opts.CacheTTL),
		fallback: fallback,
		timeout:  opts.Timeout,
		log:      log.With(logger.String("component", "prompts")),
	}
}

// GetPrompts returns prompts for userID. It never fails: any error along
// the way yields the fallback list.
func (s *Service) GetPrompts(ctx context.Context, userID uuid.UUID) []string {
	if cached, ok := s.cache.Get(userID); ok {
		promptRequestsTotal.WithLabelValues("cached").Inc()
		return clone(cached)
	}

	prompts, err := s.generate(ctx, userID)
	if err != nil {
		s.log.Warn("prompt generation failed, using fallback",
			logger.String("user_id", userID.String()),
			logger.Error(err))
		promptRequestsTotal.WithLabelValues("fallback").Inc()
		return s.Fallback()
	}

	s.cache.Add(userID, prompts)
	promptRequestsTotal.WithLabelValues("generated").Inc()
	return clone(prompts)
}

// Fallback returns a copy of the configured fallback list.
func (s *Service) Fallback() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.fallback)
}

// SetFallback replaces the fallback list. Lists without exactly Count
// entries are rejected and the current list is kept.
func (s *Service) SetFallback(prompts []string) error {
	if len(prompts) != Count {
		return fmt.Errorf("fallback needs %d prompts, got %d", Count, len(prompts))
	}
	s.mu.Lock()
	s.fallback = clone(prompts)
	s.mu.Unlock()
	return nil
}

// Forget drops the cached prompts of userID, ex: after a new capsule.
func (s *Service) Forget(userID uuid.UUID) { s.cache.Remove(userID) }

func (s *Service) generate(ctx context.Context, userID uuid.UUID) ([]string, error) {
	if s.gen == nil {
		return nil, errors.New("no text generator configured")
	}

	recent, err := s.source.RecentCapsuleContext(ctx, userID, contextCapsules)
	if err != nil {
		// Missing context only makes the prompts less personal.
		s.log.Warn("loading prompt context", logger.Error(err))
		recent = nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := s.gen.Generate(ctx, systemPrompt, UserPrompt(BuildContext(recent)))
	promptGenerationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	return ParsePrompts(raw)
}

// BuildContext renders recent capsules as `"title" (tags: a, b)` entries
// joined by "; ".
func BuildContext(capsules []domain.Capsule) string {
	if len(capsules) == 0 {
		return noCapsules
	}
	parts := make([]string, 0, len(capsules))
	for _, c := range capsules {
		tags := "none"
		if len(c.Tags) > 0 {
			tags = strings.Join(c.Tags, ", ")
		}
		parts = append(parts, fmt.Sprintf("%q (tags: %s)", c.Title, tags))
	}
	return strings.Join(parts, "; ")
}

// UserPrompt is the instruction sent with the rendered context.
func UserPrompt(recent string) string {
	return fmt.Sprintf("Generate %d unique journaling prompts for a user. Their recent memory capsules include: %s. "+
		"Make some prompts relate to their themes and some be fresh explorations. "+
		"Return ONLY a JSON array of %d strings, no other text.", Count, recent, Count)
}

var codeFence = regexp.MustCompile("```json\\n?|\\n?```")

// ParsePrompts decodes a JSON array of strings, tolerating a surrounding
// markdown code fence. Blank entries are dropped and extra prompts past
// Count are ignored. Fewer than Count prompts is an error.
func ParsePrompts(raw string) ([]string, error) {
	cleaned := strings.TrimSpace(codeFence.ReplaceAllString(raw, ""))

	var items []string
	if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
		return nil, fmt.Errorf("decode prompts: %w", err)
	}

	out := make([]string, 0, Count)
	for _, p := range items {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
		if len(out) == Count {
			break
		}
	}
	if len(out) < Count {
		return nil, fmt.Errorf("got %d prompts, want %d", len(out), Count)
	}
	return out, nil
}

func clone(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
