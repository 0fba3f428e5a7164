// Package audit periodically checks every bridge: it reports channels the bot can no
// longer reach, refreshes stored channel labels and re-provisions lost webhooks.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/memohai/bridgebot/internal/bridge"
)

// Registry is the registry surface the audit needs.
type Registry interface {
	List(ctx context.Context) ([]bridge.Bridge, error)
	Webhook(bridgeID int64, side bridge.Side) (bridge.Webhook, bool)
	RefreshNames(ctx context.Context, id int64, nameA, nameB string) error
	ReprovisionWebhook(ctx context.Context, id int64, side bridge.Side) (bridge.Webhook, error)
}

// Slot names one side of a bridge.
type Slot struct {
	BridgeID int64
	Side     bridge.Side
}

// MissingChannel is a bridged channel that could not be resolved.
type MissingChannel struct {
	Slot
	ChannelID   string
	DisplayName string
}

// Report summarizes one audit run.
type Report struct {
	Checked       int
	Missing       []MissingChannel
	Renamed       []int64
	Reprovisioned []Slot
	Errors        int
}

type Service struct {
	registry  Registry
	directory bridge.Directory
	schedule  string
	cron      *cron.Cron
	logger    *slog.Logger
}

// NewService creates the audit job. An empty schedule disables periodic runs; RunOnce
// still works.
func NewService(log *slog.Logger, registry Registry, directory bridge.Directory, schedule string) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}
	logger := log.With(slog.String("service", "audit"))
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule = strings.TrimSpace(schedule)
	if schedule != "" {
		if _, err := parser.Parse(schedule); err != nil {
			return nil, fmt.Errorf("invalid audit schedule %q: %w", schedule, err)
		}
	}
	cl := cronLogger{logger: logger}
	return &Service{
		registry:  registry,
		directory: directory,
		schedule:  schedule,
		cron:      cron.New(cron.WithParser(parser), cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		logger:    logger,
	}, nil
}

// Start schedules the job.
func (s *Service) Start(_ context.Context) error {
	if s.schedule == "" {
		s.logger.Info("audit disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return fmt.Errorf("schedule audit: %w", err)
	}
	s.cron.Start()
	s.logger.Info("audit scheduled", slog.String("schedule", s.schedule))
	return nil
}

// Stop waits for a running audit to finish or ctx to expire.
func (s *Service) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce audits every bridge.
func (s *Service) RunOnce(ctx context.Context) Report {
	var report Report
	items, err := s.registry.List(ctx)
	if err != nil {
		s.logger.Error("list bridges failed", slog.Any("error", err))
		report.Errors++
		return report
	}
	for _, b := range items {
		s.audit(ctx, b, &report)
		report.Checked++
	}
	s.logger.Info("audit finished",
		slog.Int("checked", report.Checked),
		slog.Int("missing", len(report.Missing)),
		slog.Int("renamed", len(report.Renamed)),
		slog.Int("reprovisioned", len(report.Reprovisioned)),
		slog.Int("errors", report.Errors),
	)
	return report
}

func (s *Service) audit(ctx context.Context, b bridge.Bridge, report *Report) {
	log := s.logger.With(slog.Int64("bridge_id", b.ID))
	names := map[bridge.Side]string{bridge.SideA: b.DisplayNameA, bridge.SideB: b.DisplayNameB}
	renamed := false

	for _, side := range []bridge.Side{bridge.SideA, bridge.SideB} {
		channelID := b.Channel(side)
		info, err := s.directory.Channel(ctx, channelID)
		if err != nil {
			if !errors.Is(err, bridge.ErrChannelNotFound) {
				log.Warn("channel lookup failed", slog.String("channel_id", channelID), slog.Any("error", err))
				report.Errors++
				continue
			}
			log.Warn("bridged channel missing", slog.String("channel_id", channelID), slog.String("display_name", b.DisplayName(side)))
			report.Missing = append(report.Missing, MissingChannel{
				Slot:        Slot{BridgeID: b.ID, Side: side},
				ChannelID:   channelID,
				DisplayName: b.DisplayName(side),
			})
			continue
		}
		if label := info.Label(); label != names[side] {
			names[side] = label
			renamed = true
		}
		if hook, ok := s.registry.Webhook(b.ID, side); ok && hook.Valid() {
			continue
		}
		if _, err := s.registry.ReprovisionWebhook(ctx, b.ID, side); err != nil {
			log.Warn("webhook reprovision failed", slog.String("side", string(side)), slog.Any("error", err))
			report.Errors++
			continue
		}
		log.Info("webhook reprovisioned", slog.String("side", string(side)))
		report.Reprovisioned = append(report.Reprovisioned, Slot{BridgeID: b.ID, Side: side})
	}

	if !renamed {
		return
	}
	if err := s.registry.RefreshNames(ctx, b.ID, names[bridge.SideA], names[bridge.SideB]); err != nil {
		log.Warn("refresh names failed", slog.Any("error", err))
		report.Errors++
		return
	}
	report.Renamed = append(report.Renamed, b.ID)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, slog.Any("error", err))...)
}
