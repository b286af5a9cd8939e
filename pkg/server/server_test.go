package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lakeglass/lakeglass/pkg/logger"
	"github.com/lakeglass/lakeglass/pkg/orchestrator"
	"github.com/lakeglass/lakeglass/pkg/plan"
	"github.com/lakeglass/lakeglass/pkg/server"
)

type fakePipeline struct {
	answer   *orchestrator.Answer
	overview *orchestrator.Overview
	err      error
}

func (f *fakePipeline) Answer(_ context.Context, question string) (*orchestrator.Answer, error) {
	if f.err != nil {
		return nil, f.err
	}
	a := *f.answer
	a.Plan.Question = question
	return &a, nil
}

func (f *fakePipeline) Overview(context.Context) (*orchestrator.Overview, error) {
	return f.overview, f.err
}

type fakeTables struct {
	tables []string
	err    error
}

func (f *fakeTables) Tables(context.Context) ([]string, error) { return f.tables, f.err }

func startServer(t *testing.T, cfg server.Config) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	cfg.Logger = logger.NewTest()
	cfg.Listener = ln

	srv, err := server.New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("server did not shut down")
		}
	})
	return "http://" + ln.Addr().String()
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestServer_Ask(t *testing.T) {
	t.Parallel()

	t.Run("returns_the_pipeline_answer", func(t *testing.T) {
		t.Parallel()

		pipeline := &fakePipeline{answer: &orchestrator.Answer{
			Plan: &plan.AnalyticalPlan{Feasible: true, SQL: "SELECT 1"},
		}}
		base := startServer(t, server.Config{Pipeline: pipeline, Tables: &fakeTables{}})

		resp, body := postJSON(t, base+"/api/ask", `{"question":"how many rows?"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		planBody, ok := body["plan"].(map[string]any)
		require.True(t, ok)
		require.Equal(t, "how many rows?", planBody["question"])
		require.Equal(t, true, planBody["feasible"])
	})

	t.Run("empty_question_is_a_400", func(t *testing.T) {
		t.Parallel()

		base := startServer(t, server.Config{
			Pipeline: &fakePipeline{answer: &orchestrator.Answer{Plan: &plan.AnalyticalPlan{}}},
			Tables:   &fakeTables{},
		})

		resp, body := postJSON(t, base+"/api/ask", `{"question":"  "}`)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Contains(t, body["error"], "question is required")
	})

	t.Run("malformed_body_is_a_400", func(t *testing.T) {
		t.Parallel()

		base := startServer(t, server.Config{
			Pipeline: &fakePipeline{answer: &orchestrator.Answer{Plan: &plan.AnalyticalPlan{}}},
			Tables:   &fakeTables{},
		})

		resp, body := postJSON(t, base+"/api/ask", `{"question":`)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Contains(t, body["error"], "invalid json")
	})

	t.Run("get_is_method_not_allowed", func(t *testing.T) {
		t.Parallel()

		base := startServer(t, server.Config{
			Pipeline: &fakePipeline{answer: &orchestrator.Answer{Plan: &plan.AnalyticalPlan{}}},
			Tables:   &fakeTables{},
		})

		resp, err := http.Get(base + "/api/ask")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		require.Equal(t, http.MethodPost, resp.Header.Get("Allow"))
	})

	t.Run("pipeline_error_is_a_500", func(t *testing.T) {
		t.Parallel()

		base := startServer(t, server.Config{
			Pipeline: &fakePipeline{err: errors.New("schema context unavailable")},
			Tables:   &fakeTables{},
		})

		resp, body := postJSON(t, base+"/api/ask", `{"question":"anything"}`)
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		require.Contains(t, body["error"], "schema context unavailable")
	})
}

func TestServer_Overview(t *testing.T) {
	t.Parallel()

	pipeline := &fakePipeline{overview: &orchestrator.Overview{
		Dashboard: &plan.Dashboard{Title: "Data overview"},
		Panels:    []orchestrator.PanelResult{},
	}}
	base := startServer(t, server.Config{Pipeline: pipeline, Tables: &fakeTables{}})

	resp, body := postJSON(t, base+"/api/overview", `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	dash, ok := body["dashboard"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "Data overview", dash["title"])
}

func TestServer_Tables(t *testing.T) {
	t.Parallel()

	base := startServer(t, server.Config{
		Pipeline: &fakePipeline{answer: &orchestrator.Answer{Plan: &plan.AnalyticalPlan{}}},
		Tables:   &fakeTables{tables: []string{"orders", "users"}},
	})

	resp, err := http.Get(base + "/api/tables")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string][]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, []string{"orders", "users"}, body["tables"])
}

func TestServer_Refresh(t *testing.T) {
	t.Parallel()

	t.Run("reloads_and_reports_tables", func(t *testing.T) {
		t.Parallel()

		refreshed := false
		base := startServer(t, server.Config{
			Pipeline: &fakePipeline{answer: &orchestrator.Answer{Plan: &plan.AnalyticalPlan{}}},
			Tables:   &fakeTables{},
			Refresher: server.RefresherFunc(func(context.Context) ([]string, error) {
				refreshed = true
				return []string{"orders"}, nil
			}),
		})

		resp, body := postJSON(t, base+"/api/refresh", `{}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.True(t, refreshed)
		require.Equal(t, []any{"orders"}, body["tables"])
	})

	t.Run("unconfigured_refresh_is_501", func(t *testing.T) {
		t.Parallel()

		base := startServer(t, server.Config{
			Pipeline: &fakePipeline{answer: &orchestrator.Answer{Plan: &plan.AnalyticalPlan{}}},
			Tables:   &fakeTables{},
		})

		resp, _ := postJSON(t, base+"/api/refresh", `{}`)
		require.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	})
}

func TestServer_HealthEndpoints(t *testing.T) {
	t.Parallel()

	t.Run("healthz_is_always_ok", func(t *testing.T) {
		t.Parallel()

		base := startServer(t, server.Config{
			Pipeline: &fakePipeline{answer: &orchestrator.Answer{Plan: &plan.AnalyticalPlan{}}},
			Tables:   &fakeTables{err: errors.New("down")},
		})

		resp, err := http.Get(base + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("readyz_reflects_store_health", func(t *testing.T) {
		t.Parallel()

		base := startServer(t, server.Config{
			Pipeline: &fakePipeline{answer: &orchestrator.Answer{Plan: &plan.AnalyticalPlan{}}},
			Tables:   &fakeTables{err: errors.New("down")},
		})

		resp, err := http.Get(base + "/readyz")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}
