package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"trpc.group/trpc-go/trpc-a2a-go/protocol"

	"github.com/tuannvm/jira-dashboard/internal/agent"
	"github.com/tuannvm/jira-dashboard/internal/broadcast"
	"github.com/tuannvm/jira-dashboard/internal/common"
	"github.com/tuannvm/jira-dashboard/internal/config"
	"github.com/tuannvm/jira-dashboard/internal/dashboard"
	"github.com/tuannvm/jira-dashboard/internal/filter"
	"github.com/tuannvm/jira-dashboard/internal/jira"
	"github.com/tuannvm/jira-dashboard/internal/llm"
	"github.com/tuannvm/jira-dashboard/internal/logging"
	"github.com/tuannvm/jira-dashboard/internal/metrics"
	"github.com/tuannvm/jira-dashboard/internal/proxy"
	"github.com/tuannvm/jira-dashboard/internal/refresh"
	"github.com/tuannvm/jira-dashboard/internal/store"
	"github.com/tuannvm/jira-dashboard/internal/tracker"
)

var loadConfig = func() (*config.Config, error) {
	cfg := config.NewConfig()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func addr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}

func newProxyService(cfg *config.Config, hub *broadcast.Hub) (*proxy.Service, error) {
	client, err := jira.NewClient(cfg, nil)
	if err != nil {
		return nil, err
	}
	return proxy.NewService(cfg, client, hub)
}

// newFetcher reads pages through the proxy, or straight from Jira when direct is set
func newFetcher(cfg *config.Config, direct bool) (tracker.PageFetcher, error) {
	if direct {
		client, err := jira.NewClient(cfg, &http.Client{Timeout: cfg.FetchTimeout})
		if err != nil {
			return nil, err
		}
		return jira.PageFetcher{Searcher: client}, nil
	}
	opts := []tracker.Option{tracker.WithTimeout(cfg.FetchTimeout)}
	if cfg.AuthType == "apikey" {
		opts = append(opts, tracker.WithAPIKey(cfg.APIKey))
	}
	return tracker.NewClient(cfg.ProxyURL, opts...), nil
}

// newRefresher wires the snapshot store and the hub into a refresher and
// restores the last persisted snapshot. The returned cleanup closes both.
func newRefresher(ctx context.Context, cfg *config.Config, fetcher tracker.PageFetcher, hub *broadcast.Hub, persist bool) (*refresh.Refresher, func(), error) {
	var opts []refresh.Option
	if hub != nil {
		opts = append(opts, refresh.WithPublisher(hub, cfg.BroadcastChannel))
	}

	var snapshots *store.SQLiteStore
	if persist && cfg.SnapshotPath != "" {
		s, err := store.NewSQLiteStore(cfg.SnapshotPath)
		if err != nil {
			return nil, nil, err
		}
		snapshots = s
		opts = append(opts, refresh.WithStore(snapshots))
	}

	r := refresh.NewRefresher(fetcher, cfg.PageSize, opts...)
	if err := r.Restore(ctx); err != nil {
		logging.Warnf("Failed to restore snapshot: %v", err)
	}

	cleanup := func() {
		r.Close()
		if snapshots != nil {
			if err := snapshots.Close(); err != nil {
				logging.Warnf("Failed to close snapshot store: %v", err)
			}
		}
	}
	return r, cleanup, nil
}

func newAgentServer(cfg *config.Config, r *refresh.Refresher) (func(context.Context) error, error) {
	var llmClient llm.Completer
	if cfg.LLMEnabled {
		c, err := llm.NewClient(cfg)
		if err != nil {
			return nil, err
		}
		llmClient = c
	}

	srv, err := common.SetupServer(common.SetupServerOptions{
		AgentName:    cfg.AgentName,
		AgentVersion: cfg.AgentVersion,
		AgentURL:     cfg.AgentURL,
		Description:  "Answers dashboard metrics questions about the configured Jira search",
		AuthType:     cfg.AuthType,
		JWTSecret:    cfg.JWTSecret,
		APIKey:       cfg.APIKey,
		Processor:    agent.NewDashboardAgent(cfg, r, llmClient),
		Skills:       agent.Skills(),
	})
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		return common.StartServer(ctx, srv, cfg.ServerHost, cfg.AgentPort)
	}, nil
}

func handleServe(ctx context.Context, withAgent bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	hub := broadcast.NewHub()
	defer hub.Close()

	px, err := newProxyService(cfg, hub)
	if err != nil {
		return err
	}
	proxySrv, err := common.NewHTTPServer("proxy", addr(cfg.ServerHost, cfg.ProxyPort), px.Handler())
	if err != nil {
		return err
	}

	fetcher, err := newFetcher(cfg, false)
	if err != nil {
		return err
	}
	r, cleanup, err := newRefresher(ctx, cfg, fetcher, hub, true)
	if err != nil {
		return err
	}
	defer cleanup()

	// webhook changes must not be answered from pages cached before them
	dash, err := dashboard.NewServer(cfg, r, hub, dashboard.WithInvalidate(px.Purge))
	if err != nil {
		return err
	}
	dashSrv, err := common.NewHTTPServer("dashboard", addr(cfg.ServerHost, cfg.DashboardPort), dash.Handler())
	if err != nil {
		return err
	}

	var runAgent func(context.Context) error
	if withAgent {
		if runAgent, err = newAgentServer(cfg, r); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return proxySrv.Serve(gctx) })
	g.Go(func() error { return dashSrv.Serve(gctx) })
	g.Go(func() error { return refresh.NewScheduler(r, cfg.RefreshInterval).Run(gctx) })
	if runAgent != nil {
		g.Go(func() error { return runAgent(gctx) })
	}
	return g.Wait()
}

func handleProxy(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	hub := broadcast.NewHub()
	defer hub.Close()

	px, err := newProxyService(cfg, hub)
	if err != nil {
		return err
	}
	srv, err := common.NewHTTPServer("proxy", addr(cfg.ServerHost, cfg.ProxyPort), px.Handler())
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

func handleDashboard(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	hub := broadcast.NewHub()
	defer hub.Close()

	fetcher, err := newFetcher(cfg, false)
	if err != nil {
		return err
	}
	r, cleanup, err := newRefresher(ctx, cfg, fetcher, hub, true)
	if err != nil {
		return err
	}
	defer cleanup()

	dash, err := dashboard.NewServer(cfg, r, hub)
	if err != nil {
		return err
	}
	srv, err := common.NewHTTPServer("dashboard", addr(cfg.ServerHost, cfg.DashboardPort), dash.Handler())
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(gctx) })
	g.Go(func() error { return refresh.NewScheduler(r, cfg.RefreshInterval).Run(gctx) })
	return g.Wait()
}

func handleFetch(ctx context.Context, opts fetchOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fetcher, err := newFetcher(cfg, opts.Direct)
	if err != nil {
		return err
	}
	r, cleanup, err := newRefresher(ctx, cfg, fetcher, nil, opts.Save)
	if err != nil {
		return err
	}
	defer cleanup()

	state, err := r.Refresh(ctx)
	if err != nil {
		logging.Debugf("Refresh failed: %v", err)
		return errors.New(config.GenericFetchError)
	}

	issues := filter.Apply(state.Issues, opts.Criteria)
	snap := metrics.Compute(issues, dashboard.MetricsOptions(cfg, time.Now()))
	if opts.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	fmt.Fprintln(os.Stdout, renderReport(state, snap, dashboard.Rows(issues), opts.Limit, time.Now()))
	return nil
}

func handleAgent(ctx context.Context, direct bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fetcher, err := newFetcher(cfg, direct)
	if err != nil {
		return err
	}
	r, cleanup, err := newRefresher(ctx, cfg, fetcher, nil, true)
	if err != nil {
		return err
	}
	defer cleanup()

	runAgent, err := newAgentServer(cfg, r)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runAgent(gctx) })
	g.Go(func() error { return refresh.NewScheduler(r, cfg.RefreshInterval).Run(gctx) })
	return g.Wait()
}

func handleAsk(ctx context.Context, opts askOptions, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	target := opts.AgentURL
	if target == "" {
		target = cfg.AgentURL
	}

	a2aClient, err := common.SetupA2AClient(cfg, target)
	if err != nil {
		return err
	}

	parts := []protocol.Part{&protocol.DataPart{
		Type: "data",
		Data: opts.Criteria,
	}}
	if question := strings.TrimSpace(strings.Join(args, " ")); question != "" {
		parts = append(parts, protocol.NewTextPart(question))
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	reply, err := common.SendTask(ctx, a2aClient, protocol.SendTaskParams{
		ID:      "ask-" + uuid.NewString(),
		Message: protocol.Message{Role: protocol.MessageRoleUser, Parts: parts},
	})
	if err != nil {
		return err
	}

	for _, part := range reply.Parts {
		if text := common.TextOf(part); text != "" {
			fmt.Fprintln(os.Stdout, text)
			continue
		}
		if !opts.JSON {
			continue
		}
		var data interface{}
		switch v := part.(type) {
		case *protocol.DataPart:
			data = v.Data
		case protocol.DataPart:
			data = v.Data
		}
		if data != nil {
			out, err := json.MarshalIndent(data, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, string(out))
		}
	}
	return nil
}

func handleSnapshot(ctx context.Context, limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	snapshots, err := store.NewSQLiteStore(cfg.SnapshotPath)
	if err != nil {
		return err
	}
	defer snapshots.Close()

	snap, err := snapshots.LoadSnapshot(ctx)
	if err != nil {
		return err
	}

	state := refresh.State{
		Issues:      snap.Issues,
		Total:       snap.Total,
		CycleID:     snap.CycleID,
		RefreshedAt: snap.RefreshedAt,
	}
	m := metrics.Compute(snap.Issues, dashboard.MetricsOptions(cfg, time.Now()))
	fmt.Fprintln(os.Stdout, renderReport(state, m, dashboard.Rows(snap.Issues), limit, time.Now()))
	return nil
}
