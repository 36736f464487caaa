package gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/theprogressmethod/telbot-sub003/internal/bus"
	"github.com/theprogressmethod/telbot-sub003/internal/channel"
	"github.com/theprogressmethod/telbot-sub003/internal/config"
	"github.com/theprogressmethod/telbot-sub003/internal/cron"
	"github.com/theprogressmethod/telbot-sub003/internal/experiment"
	"github.com/theprogressmethod/telbot-sub003/internal/profile"
	"github.com/theprogressmethod/telbot-sub003/internal/rules"
	"github.com/theprogressmethod/telbot-sub003/internal/store"
)

// Options for creating a Gateway
type Options struct {
	SignalChan chan os.Signal // for testing signal handling
	Channels   *channel.Manager
}

// Gateway owns the running service: storage, the analysis pipeline, the job
// scheduler, and the delivery channels.
type Gateway struct {
	cfg        *config.Config
	bus        *bus.MessageBus
	store      *store.Store
	analyzer   *profile.Analyzer
	tracker    *experiment.Tracker
	cron       *cron.Service
	channels   *channel.Manager
	signalChan chan os.Signal // for testing
}

// New creates a Gateway with default options
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{cfg: cfg}

	g.bus = bus.NewMessageBus(bus.DefaultBufSize)

	dbPath := strings.TrimSpace(cfg.Store.DBPath)
	if dbPath == "" {
		dbPath = filepath.Join(config.ConfigDir(), "data", config.DefaultDBFile)
	}
	st, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	g.store = st

	ruleset := rules.DefaultRules()
	if path := strings.TrimSpace(cfg.Analysis.RulesPath); path != "" {
		loaded, err := rules.LoadRules(path)
		if err != nil {
			log.Printf("[gateway] rules load warning, using defaults: %v", err)
		} else {
			ruleset = loaded
		}
	}

	g.analyzer = profile.NewAnalyzer(st, ruleset, profile.Options{
		WindowWeeks:     cfg.Analysis.WindowWeeks,
		PodWindowWeeks:  cfg.Analysis.PodWindowWeeks,
		AtRiskThreshold: cfg.Analysis.AtRiskThreshold,
		Analytics:       profile.NewMemoryCache(time.Duration(cfg.Analysis.CacheTTLMinutes) * time.Minute),
	})
	g.tracker = experiment.NewTracker(st, cfg.Analysis.MonitorDays)

	g.signalChan = opts.SignalChan

	cronStorePath := filepath.Join(config.ConfigDir(), "data", "cron", "jobs.json")
	g.cron = cron.NewService(cronStorePath)
	g.cron.OnJob = g.handleJob

	if opts.Channels != nil {
		g.channels = opts.Channels
	} else {
		chMgr, err := channel.NewManager(cfg.Channels, g.bus)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("create channel manager: %w", err)
		}
		g.channels = chMgr
	}

	return g, nil
}

// Analyzer exposes the analysis pipeline to the CLI.
func (g *Gateway) Analyzer() *profile.Analyzer {
	return g.analyzer
}

// Tracker exposes the experiment tracker to the CLI.
func (g *Gateway) Tracker() *experiment.Tracker {
	return g.tracker
}

// Store exposes storage to the CLI.
func (g *Gateway) Store() *store.Store {
	return g.store
}

// Bus exposes the message bus (for testing).
func (g *Gateway) Bus() *bus.MessageBus {
	return g.bus
}

// handleJob dispatches a scheduled job. Sweep jobs recompute analytics for
// every pod; digest jobs additionally deliver the formatted summary of one
// pod to its chat.
func (g *Gateway) handleJob(job cron.Job) (string, error) {
	switch job.Payload.Task {
	case "sweep":
		return g.runSweep()
	case "digest":
		return g.runDigest(job.Payload)
	default:
		return "", fmt.Errorf("unknown task %q", job.Payload.Task)
	}
}

func (g *Gateway) runSweep() (string, error) {
	pods, err := g.analyzer.Pods()
	if err != nil {
		return "", fmt.Errorf("list pods: %w", err)
	}

	analyzed := 0
	for _, podID := range pods {
		result, err := g.analyzer.AnalyzePod(podID)
		if err != nil {
			log.Printf("[gateway] sweep: pod %s failed: %v", podID, err)
			continue
		}
		analyzed++
		log.Printf("[gateway] sweep: pod %s, %d members, rate %.2f, %d insights",
			podID, result.Summary.MemberCount, result.Summary.AvgAttendanceRate, len(result.Insights))
	}
	return fmt.Sprintf("swept %d/%d pods", analyzed, len(pods)), nil
}

func (g *Gateway) runDigest(p cron.Payload) (string, error) {
	if p.PodID == "" {
		return "", fmt.Errorf("digest job has no pod id")
	}
	result, err := g.analyzer.AnalyzePod(p.PodID)
	if err != nil {
		return "", fmt.Errorf("analyze pod %s: %w", p.PodID, err)
	}

	content := FormatDigest(result, config.DefaultDigestMaxItems)
	if p.Channel != "" && p.ChatID != "" {
		g.bus.Outbound <- bus.OutboundMessage{
			Channel: p.Channel,
			ChatID:  p.ChatID,
			Content: content,
		}
	}
	return fmt.Sprintf("digest for %s: %d insights", p.PodID, len(result.Insights)), nil
}

// FormatDigest renders a pod analysis as a chat-ready summary. Insights are
// already sorted by priority; only the top maxItems appear.
func FormatDigest(result *profile.PodResult, maxItems int) string {
	var sb strings.Builder
	s := result.Summary

	fmt.Fprintf(&sb, "**Pod %s — Weekly Summary**\n", s.PodID)
	fmt.Fprintf(&sb, "Members analyzed: %d\n", s.MemberCount)
	fmt.Fprintf(&sb, "Average attendance: %.0f%%\n", s.AvgAttendanceRate*100)
	if len(s.AtRiskMembers) > 0 {
		fmt.Fprintf(&sb, "At-risk members: %d\n", len(s.AtRiskMembers))
	}

	items := result.Insights
	if maxItems > 0 && len(items) > maxItems {
		items = items[:maxItems]
	}
	if len(items) > 0 {
		sb.WriteString("\n")
		for _, ins := range items {
			fmt.Fprintf(&sb, "[%s] **%s**\n%s\n", strings.ToUpper(string(ins.Priority)), ins.Title, ins.Description)
			for _, action := range ins.SuggestedActions {
				fmt.Fprintf(&sb, "- %s\n", action)
			}
		}
	}
	return sb.String()
}

// ApplyAdaptation records an adaptation experiment for a user and logs it in
// the profile's history. The baseline comes from the user's current profile.
func (g *Gateway) ApplyAdaptation(userID, podID, adaptationType string, adaptations []string) (string, error) {
	result, err := g.analyzer.AnalyzeUser(userID, podID)
	if err != nil {
		return "", err
	}

	baseline := map[string]float64{}
	for k, v := range result.Profile.BehaviorPatterns {
		baseline[k] = v
	}
	for k, v := range result.Profile.EngagementMetrics {
		baseline[k] = v
	}

	id, err := g.tracker.Apply(userID, adaptationType, adaptations, baseline)
	if err != nil {
		return "", err
	}
	g.analyzer.RecordAdaptation(userID, id, adaptationType)
	return id, nil
}

// ensureDefaultJobs registers the standing sweep job and one digest job per
// configured pod chat, if missing.
func (g *Gateway) ensureDefaultJobs() error {
	const sweepName = "analytics-sweep"

	jobs := g.cron.ListJobs()
	hasSweep := false
	digests := make(map[string]bool)
	for _, job := range jobs {
		if job.Payload.Task == "sweep" {
			hasSweep = true
		}
		if job.Payload.Task == "digest" {
			digests[job.Payload.PodID] = true
		}
	}

	if !hasSweep {
		_, err := g.cron.AddJob(sweepName,
			cron.Schedule{Kind: "cron", Expr: g.cfg.Analysis.SweepSchedule},
			cron.Payload{Task: "sweep"})
		if err != nil {
			return err
		}
	}

	for podID, chatID := range g.cfg.Channels.Telegram.PodChats {
		if digests[podID] {
			continue
		}
		_, err := g.cron.AddJob("digest-"+podID,
			cron.Schedule{Kind: "cron", Expr: g.cfg.Analysis.DigestSchedule},
			cron.Payload{Task: "digest", PodID: podID, Channel: "telegram", ChatID: chatID})
		if err != nil {
			return err
		}
	}
	return nil
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	log.Printf("[gateway] channels started: %v", g.channels.EnabledChannels())

	if err := g.cron.Start(ctx); err != nil {
		log.Printf("[gateway] cron start warning: %v", err)
	}
	if err := g.ensureDefaultJobs(); err != nil {
		log.Printf("[gateway] ensure default jobs warning: %v", err)
	}

	log.Printf("[gateway] running")

	// Use injected signal channel for testing, or create default
	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	<-sigCh

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

func (g *Gateway) Shutdown() error {
	g.cron.Stop()
	_ = g.channels.StopAll()
	if g.store != nil {
		if err := g.store.Close(); err != nil {
			log.Printf("[gateway] close store warning: %v", err)
		}
	}
	log.Printf("[gateway] shutdown complete")
	return nil
}
