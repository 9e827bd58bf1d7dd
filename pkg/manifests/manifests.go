// Package manifests renders the Kubernetes and Argo CD manifests handed to
// operators for a captain cluster.
package manifests

import (
	"bytes"
	"embed"
	"strings"
	"text/template"

	"github.com/glueops/tools-api/pkg/tenant"
	"github.com/gravitational/trace"
)

//go:embed templates
var templateFS embed.FS

// Defaults for the Opsgenie heartbeat application.
const (
	DefaultChartVersion       = "0.8.1"
	DefaultMonitoringImageTag = "v0.8.2@sha256:06bad372dfd21d2bf807d26fb6d354f885d7e4fe63a2108f7446f20be2b5413d"
)

// Templates use <% %> so Argo CD's own {{ }} expressions pass through untouched.
var templates = template.Must(
	template.New("manifests").
		Delims("<%", "%>").
		Option("missingkey=error").
		ParseFS(templateFS, "templates/*.tmpl", "templates/captain/*.tmpl"),
)

// OpsgenieParams fill the Opsgenie alerts Application.
type OpsgenieParams struct {
	CaptainDomain      string
	OpsgenieAPIKey     string
	ChartVersion       string
	MonitoringImageTag string
}

// Opsgenie renders the Argo CD Application that wires cluster alerts to Opsgenie.
func Opsgenie(p OpsgenieParams) (string, error) {
	domain, err := tenant.Normalize(p.CaptainDomain)
	if err != nil {
		return "", err
	}

	p.CaptainDomain = domain
	p.OpsgenieAPIKey = strings.TrimSpace(p.OpsgenieAPIKey)

	if p.OpsgenieAPIKey == "" {
		return "", trace.BadParameter("opsgenie_api_key is required")
	}

	if p.ChartVersion == "" {
		p.ChartVersion = DefaultChartVersion
	}

	if p.MonitoringImageTag == "" {
		p.MonitoringImageTag = DefaultMonitoringImageTag
	}

	return render("opsgenie.yaml.tmpl", p)
}

// CaptainParams fill the captain namespace, AppProject and ApplicationSet.
type CaptainParams struct {
	CaptainDomain              string
	GitHubOrganization         string
	DeploymentConfigRepository string
}

type captainValues struct {
	CaptainParams
	EnvironmentName string
}

// Captain renders the namespace, AppProject and ApplicationSet for the
// environment named by the first segment of the captain domain.
func Captain(p CaptainParams) (string, error) {
	domain, err := tenant.Normalize(p.CaptainDomain)
	if err != nil {
		return "", err
	}

	p.CaptainDomain = domain
	p.GitHubOrganization = strings.TrimSpace(p.GitHubOrganization)
	p.DeploymentConfigRepository = strings.TrimSpace(p.DeploymentConfigRepository)

	if p.GitHubOrganization == "" {
		return "", trace.BadParameter("tenant_github_organization_name is required")
	}

	if p.DeploymentConfigRepository == "" {
		return "", trace.BadParameter("tenant_deployment_configurations_repository_name is required")
	}

	values := captainValues{
		CaptainParams:   p,
		EnvironmentName: tenant.EnvironmentName(domain),
	}

	docs := make([]string, 0, 3)

	for _, name := range []string{"namespace.yaml.tmpl", "appproject.yaml.tmpl", "appset.yaml.tmpl"} {
		doc, err := render(name, values)
		if err != nil {
			return "", err
		}

		docs = append(docs, strings.TrimRight(doc, "\n"))
	}

	return strings.Join(docs, "\n---\n"), nil
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer

	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", trace.Wrap(err, "rendering %s", name)
	}

	return buf.String(), nil
}
