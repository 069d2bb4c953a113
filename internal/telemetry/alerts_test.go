package telemetry

import (
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

// TestAlertsFileValid verifies the Prometheus alerts configuration is valid YAML.
func TestAlertsFileValid(t *testing.T) {
	alertsPath := "../../deploy/prometheus/alerts.yml"

	data, err := os.ReadFile(alertsPath)
	if err != nil {
		t.Skipf("Skipping test: alerts file not found at %s", alertsPath)
		return
	}

	var config map[string]interface{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		t.Fatalf("Invalid YAML in alerts.yml: %v", err)
	}

	// Verify groups exist
	groups, ok := config["groups"]
	if !ok {
		t.Error("alerts.yml missing 'groups' key")
		return
	}

	groupsList, ok := groups.([]interface{})
	if !ok || len(groupsList) == 0 {
		t.Error("alerts.yml 'groups' is empty or invalid")
	}

	t.Logf("Successfully parsed alerts.yml with %d alert groups", len(groupsList))
}

// TestCriticalAlertsPresent verifies critical alerts are defined.
func TestCriticalAlertsPresent(t *testing.T) {
	alertsPath := "../../deploy/prometheus/alerts.yml"

	data, err := os.ReadFile(alertsPath)
	if err != nil {
		t.Skipf("Skipping test: alerts file not found at %s", alertsPath)
		return
	}

	content := string(data)

	criticalAlerts := []string{
		"HighAPIErrorRate",
		"BridgeClipTimeouts",
		"SessionTickSlow",
	}

	for _, alertName := range criticalAlerts {
		if !strings.Contains(content, alertName) {
			t.Errorf("Critical alert '%s' not found in alerts.yml", alertName)
		}
	}
}

// TestAlertLabels verifies alerts have required labels.
func TestAlertLabels(t *testing.T) {
	alertsPath := "../../deploy/prometheus/alerts.yml"

	data, err := os.ReadFile(alertsPath)
	if err != nil {
		t.Skipf("Skipping test: alerts file not found at %s", alertsPath)
		return
	}

	type Alert struct {
		Alert       string            `yaml:"alert"`
		Expr        string            `yaml:"expr"`
		For         string            `yaml:"for"`
		Labels      map[string]string `yaml:"labels"`
		Annotations map[string]string `yaml:"annotations"`
	}

	type Group struct {
		Name  string  `yaml:"name"`
		Rules []Alert `yaml:"rules"`
	}

	type Config struct {
		Groups []Group `yaml:"groups"`
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		t.Fatalf("Failed to parse alerts.yml: %v", err)
	}

	for _, group := range config.Groups {
		for _, alert := range group.Rules {
			if alert.Alert == "" {
				continue // Skip non-alert rules
			}

			// Every alert should have a severity label
			if _, ok := alert.Labels["severity"]; !ok {
				t.Errorf("Alert '%s' missing 'severity' label", alert.Alert)
			}

			// Every alert should have annotations
			if len(alert.Annotations) == 0 {
				t.Errorf("Alert '%s' missing annotations", alert.Alert)
			}

			// Check for summary annotation
			if _, ok := alert.Annotations["summary"]; !ok {
				t.Errorf("Alert '%s' missing 'summary' annotation", alert.Alert)
			}
		}
	}
}

// TestMetricsExist verifies key metrics used in alerts actually exist.
func TestMetricsExist(t *testing.T) {
	// These are the metric names that should be exported by our code
	expectedMetrics := []string{
		"receiver_portal_api_request_duration_seconds",
		"receiver_portal_api_requests_total",
		"receiver_portal_session_active",
		"receiver_portal_session_tick_duration_seconds",
		"receiver_portal_flow_transitions_total",
		"receiver_portal_flow_actions_total",
		"receiver_portal_timeline_checkpoint_events_total",
		"receiver_portal_audio_rejections_total",
		"receiver_portal_bridge_outcomes_total",
		"receiver_portal_api_websocket_connections",
		"receiver_portal_events_exported_total",
		"receiver_portal_assets_missing",
	}

	// Touch the vectors so they report at least one series.
	FlowTransitionsTotal.WithLabelValues("priming", "gate_one").Add(0)
	FlowActionsTotal.WithLabelValues("enter", "ok").Add(0)
	CheckpointEventsTotal.WithLabelValues("gate", "gate-enter").Add(0)
	AudioRejectionsTotal.WithLabelValues("bed").Add(0)
	BridgeOutcomesTotal.WithLabelValues("exit", "ended").Add(0)
	APIRequestsTotal.WithLabelValues("GET", "/healthz", "200").Add(0)
	APIRequestDuration.WithLabelValues("GET", "/healthz", "200").Observe(0)
	SessionTickDuration.Observe(0)
	EventsExportedTotal.WithLabelValues("nats", "published").Add(0)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	registered := make(map[string]bool, len(families))
	for _, mf := range families {
		registered[mf.GetName()] = true
	}

	for _, metric := range expectedMetrics {
		if !registered[metric] {
			t.Errorf("Expected metric '%s' not registered", metric)
		}
	}
}
