package execution

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goliatone/go-integrations/core"
)

type recordedCall struct {
	path          string
	authorization string
	payload       map[string]any
}

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, call recordedCall)) (*httptest.Server, *[]recordedCall) {
	t.Helper()
	calls := []recordedCall{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := recordedCall{path: r.URL.Path, authorization: r.Header.Get("Authorization")}
		_ = json.NewDecoder(r.Body).Decode(&call.payload)
		calls = append(calls, call)
		handler(w, call)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	cfg := core.DefaultConfig().Dispatcher
	cfg.BaseURL = baseURL + "/"
	cfg.ServiceToken = "service-role"
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestClient_PollAutomationReadsEitherCounterShape(t *testing.T) {
	responses := []string{
		`{"data":{"items_found":4,"events_created":3}}`,
		`{"data":{"total_items_found":9,"total_events_created":2}}`,
	}
	index := 0
	server, calls := newTestServer(t, func(w http.ResponseWriter, _ recordedCall) {
		_, _ = w.Write([]byte(responses[index]))
		index++
	})
	client := newTestClient(t, server.URL)

	first, err := client.PollAutomation(context.Background(), "auto_1")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if first.ItemsFound != 4 || first.EventsCreated != 3 {
		t.Fatalf("unexpected outcome %#v", first)
	}
	second, err := client.PollAutomation(context.Background(), "auto_1")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if second.ItemsFound != 9 || second.EventsCreated != 2 {
		t.Fatalf("expected total_* fallback, got %#v", second)
	}

	call := (*calls)[0]
	if call.path != "/functions/v1/scheduler-runner/polling" {
		t.Fatalf("unexpected poll path %q", call.path)
	}
	if call.authorization != "Bearer service-role" {
		t.Fatalf("expected service token, got %q", call.authorization)
	}
	if call.payload["automation_id"] != "auto_1" {
		t.Fatalf("unexpected payload %#v", call.payload)
	}
}

func TestClient_PollFailureCarriesStatusAndBody(t *testing.T) {
	server, _ := newTestServer(t, func(w http.ResponseWriter, _ recordedCall) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("scheduler offline"))
	})
	client := newTestClient(t, server.URL)

	_, err := client.PollAutomation(context.Background(), "auto_1")
	var downstream *core.DownstreamError
	if !errors.As(err, &downstream) {
		t.Fatalf("expected downstream error, got %v", err)
	}
	if downstream.StatusCode != http.StatusServiceUnavailable || downstream.Message != "scheduler offline" {
		t.Fatalf("unexpected downstream error %#v", downstream)
	}
}

func TestClient_ProcessEventsScopesToService(t *testing.T) {
	server, calls := newTestServer(t, func(w http.ResponseWriter, _ recordedCall) {
		_, _ = w.Write([]byte(`{"data":{"successful":5,"failed":1}}`))
	})
	client := newTestClient(t, server.URL)

	outcome, err := client.ProcessEvents(context.Background(), "u1", "Gmail")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome.Successful != 5 || outcome.Failed != 1 {
		t.Fatalf("unexpected outcome %#v", outcome)
	}
	call := (*calls)[0]
	if call.path != "/functions/v1/event-processor/user" || call.payload["service_name"] != "gmail" || call.payload["user_id"] != "u1" {
		t.Fatalf("unexpected process call %#v", call)
	}

	if _, err := client.ProcessEvents(context.Background(), "u1", ""); err != nil {
		t.Fatalf("process without service: %v", err)
	}
	if _, ok := (*calls)[1].payload["service_name"]; ok {
		t.Fatalf("expected service_name to be omitted when unknown")
	}
}

func TestClient_ServiceCallsRequireServiceToken(t *testing.T) {
	client, err := NewClient(core.DispatcherConfig{BaseURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.PollAutomation(context.Background(), "auto_1")
	var downstream *core.DownstreamError
	if !errors.As(err, &downstream) || downstream.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected service configuration error, got %v", err)
	}
}

func TestClient_ExecuteAutomation(t *testing.T) {
	server, calls := newTestServer(t, func(w http.ResponseWriter, _ recordedCall) {
		_, _ = w.Write([]byte(`{"data":{"execution_id":"exec_1","result":{"actions_executed":3}}}`))
	})
	client := newTestClient(t, server.URL)

	outcome, err := client.ExecuteAutomation(context.Background(), core.ManualExecution{
		AutomationID: "auto_2",
		BearerToken:  "user-jwt",
		TriggerData:  map[string]any{"trigger_type": "manual"},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome.ExecutionID != "exec_1" || outcome.ActionsExecuted != 3 {
		t.Fatalf("unexpected outcome %#v", outcome)
	}
	if outcome.Result["execution_id"] != "exec_1" {
		t.Fatalf("expected data object as result, got %#v", outcome.Result)
	}
	call := (*calls)[0]
	if call.authorization != "Bearer user-jwt" || call.path != "/functions/v1/script-executor/manual" {
		t.Fatalf("unexpected execute call %#v", call)
	}
	if call.payload["test_mode"] != false {
		t.Fatalf("expected test_mode false, got %#v", call.payload)
	}
}

func TestClient_ExecuteAutomationErrorMessages(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`{"error":"quota exceeded","message":"ignored"}`, "quota exceeded"},
		{`{"message":"script crashed"}`, "script crashed"},
		{`{}`, "Execution failed"},
		{`gateway timeout`, "Execution failed: gateway timeout"},
	}
	for _, tc := range cases {
		body := tc.body
		server, _ := newTestServer(t, func(w http.ResponseWriter, _ recordedCall) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(body))
		})
		client := newTestClient(t, server.URL)
		_, err := client.ExecuteAutomation(context.Background(), core.ManualExecution{AutomationID: "a", BearerToken: "jwt"})
		var downstream *core.DownstreamError
		if !errors.As(err, &downstream) {
			t.Fatalf("%s: expected downstream error, got %v", tc.body, err)
		}
		if downstream.Message != tc.want || downstream.StatusCode != http.StatusBadGateway {
			t.Fatalf("%s: expected %q, got %#v", tc.body, tc.want, downstream)
		}
	}
}

func TestClient_UnreachableServiceIsBadGateway(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	baseURL := server.URL
	server.Close()

	client := newTestClient(t, baseURL)
	_, err := client.ExecuteAutomation(context.Background(), core.ManualExecution{AutomationID: "a", BearerToken: "jwt"})
	var downstream *core.DownstreamError
	if !errors.As(err, &downstream) || downstream.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected bad gateway downstream error, got %v", err)
	}
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	if _, err := NewClient(core.DispatcherConfig{}); err == nil {
		t.Fatalf("expected missing base url to fail")
	}
}
