package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersEverything(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetBuildInfo("v1.0.0", "abc123", "2024-05-01T10:00:00Z")
	m.RecordHTTPRequest("GET", "/health", "200", 0.01)
	m.RecordVendorCall("hetzner", "create_server", nil)
	m.RecordExitNodesCreated("hetzner", 2)
	m.RecordExitNodesDeleted("hetzner", 1)
	m.RecordBucketsCreated(3)
	m.RecordBucketsDeleted(3)
	m.RecordCredentialsMinted()
	m.RecordWorkflowDispatch("aws-account-nuke", "204")
	m.RecordWorkflowRunFinished("aws-account-nuke", "completed")

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}

	assert.Contains(t, names, "tools_api_http_requests_total")
	assert.Contains(t, names, "tools_api_exit_nodes_created_total")
	assert.Contains(t, names, "tools_api_aws_credentials_minted_total")
	assert.Contains(t, names, "tools_api_build_info")
}

func TestRecordVendorCallCountsErrors(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordVendorCall("lightsail", "get_instances", nil)
	m.RecordVendorCall("lightsail", "get_instances", errors.New("throttled"))

	assert.InDelta(t, 2, testutil.ToFloat64(m.VendorAPIRequestsTotal.WithLabelValues("lightsail", "get_instances")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.VendorAPIErrorsTotal.WithLabelValues("lightsail", "get_instances")), 0)
}

func TestExitNodeCountersAccumulate(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordExitNodesCreated("hetzner", 2)
	m.RecordExitNodesCreated("hetzner", 3)

	assert.InDelta(t, 5, testutil.ToFloat64(m.ExitNodesCreated.WithLabelValues("hetzner")), 0)
}
