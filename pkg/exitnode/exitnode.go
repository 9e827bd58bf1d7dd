package exitnode

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/glueops/tools-api/pkg/config"
	"github.com/glueops/tools-api/pkg/metrics"
	"github.com/glueops/tools-api/pkg/tenant"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
)

// Node is a compute instance as reported by a provider.
type Node struct {
	ID     string
	Name   string
	Region string
	Labels map[string]string
	IPv4   string
}

// CreateSpec describes one instance to create.
type CreateSpec struct {
	Name     string
	Region   string
	Size     string
	UserData string
	Labels   map[string]string
}

// Provider is a compute vendor able to run exit nodes.
type Provider interface {
	Name() string
	// UserData renders the boot script in the format the provider executes.
	UserData(chiselImage, credentials string) (string, error)
	// List returns every node carrying the tenant label key in region.
	List(ctx context.Context, region string) ([]Node, error)
	// Delete removes a node. A node that is already gone is not an error.
	Delete(ctx context.Context, node Node) error
	// Create creates a node, waits until it is running and returns it with its public IPv4.
	Create(ctx context.Context, spec CreateSpec) (*Node, error)
}

// ProvisionRequest asks for a fresh set of exit nodes.
type ProvisionRequest struct {
	Tenant string
	Count  int
	Region string
	Size   string
}

// DeleteRequest asks for all exit nodes of a tenant to be removed.
type DeleteRequest struct {
	Tenant string
	Region string
}

// Options are the supported values and defaults for one provider.
type Options struct {
	DefaultCount    int
	MaxCount        int
	SuffixPrefix    string
	ChiselImage     string
	OperatorVersion string
	DefaultRegion   string
	Regions         []string
	DefaultSize     string
	Sizes           []string
}

// OptionsFromConfig picks the option set for the configured provider.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		DefaultCount:    cfg.ExitNodes.DefaultCount,
		MaxCount:        cfg.ExitNodes.MaxCount,
		SuffixPrefix:    cfg.ExitNodes.SuffixPrefix,
		ChiselImage:     cfg.ExitNodes.ChiselImage,
		OperatorVersion: cfg.ExitNodes.OperatorVersion,
	}

	switch cfg.ExitNodes.Provider {
	case config.ProviderLightsail:
		opts.DefaultRegion = cfg.Lightsail.DefaultRegion
		opts.Regions = cfg.Lightsail.Regions
		opts.DefaultSize = cfg.Lightsail.DefaultBundle
		opts.Sizes = cfg.Lightsail.Bundles
	default:
		opts.DefaultRegion = cfg.Hetzner.DefaultLocation
		opts.Regions = cfg.Hetzner.Locations
		opts.DefaultSize = cfg.Hetzner.DefaultServerType
		opts.Sizes = cfg.Hetzner.ServerTypes
	}

	return opts
}

// Result is the outcome of a provisioning run.
type Result struct {
	Manifest string
	Nodes    []Node
	Deleted  int
}

// Manager provisions and tears down a tenant's chisel exit nodes.
type Manager struct {
	log      logrus.FieldLogger
	provider Provider
	opts     Options
	locker   *tenant.Locker
	metrics  *metrics.Metrics
}

// NewManager creates a new exit node manager.
func NewManager(
	log logrus.FieldLogger,
	provider Provider,
	opts Options,
	locker *tenant.Locker,
	m *metrics.Metrics,
) *Manager {
	if locker == nil {
		locker = tenant.NewLocker()
	}

	return &Manager{
		log:      log.WithField("component", "exitnode"),
		provider: provider,
		opts:     opts,
		locker:   locker,
		metrics:  m,
	}
}

// Provider returns the name of the vendor backing this manager.
func (m *Manager) Provider() string {
	return m.provider.Name()
}

// Suffixes returns the node name suffixes for count nodes: exit1..exitN.
func (m *Manager) Suffixes(count int) []string {
	suffixes := make([]string, 0, count)

	for i := 1; i <= count; i++ {
		suffixes = append(suffixes, fmt.Sprintf("%s%d", m.opts.SuffixPrefix, i))
	}

	return suffixes
}

func (m *Manager) normalizeProvision(req ProvisionRequest) (ProvisionRequest, error) {
	name, err := tenant.Normalize(req.Tenant)
	if err != nil {
		return req, err
	}

	req.Tenant = name

	if req.Count == 0 {
		req.Count = m.opts.DefaultCount
	}

	if req.Count < 1 || req.Count > m.opts.MaxCount {
		return req, trace.BadParameter("node count must be between 1 and %d, got %d", m.opts.MaxCount, req.Count)
	}

	if req.Region, err = m.resolveRegion(req.Region); err != nil {
		return req, err
	}

	req.Size = strings.TrimSpace(req.Size)
	if req.Size == "" {
		req.Size = m.opts.DefaultSize
	}

	if !slices.Contains(m.opts.Sizes, req.Size) {
		return req, trace.BadParameter("unsupported instance size %q, supported: %s",
			req.Size, strings.Join(m.opts.Sizes, ", "))
	}

	return req, nil
}

func (m *Manager) resolveRegion(region string) (string, error) {
	region = strings.TrimSpace(region)
	if region == "" {
		return m.opts.DefaultRegion, nil
	}

	if !slices.Contains(m.opts.Regions, region) {
		return "", trace.BadParameter("unsupported region %q, supported: %s",
			region, strings.Join(m.opts.Regions, ", "))
	}

	return region, nil
}

// Provision replaces every exit node of the tenant with a fresh set and
// returns the manifest that registers them with the chisel operator.
func (m *Manager) Provision(ctx context.Context, req ProvisionRequest) (*Result, error) {
	req, err := m.normalizeProvision(req)
	if err != nil {
		return nil, err
	}

	log := m.log.WithFields(logrus.Fields{
		"tenant":   req.Tenant,
		"region":   req.Region,
		"size":     req.Size,
		"count":    req.Count,
		"provider": m.provider.Name(),
	})

	credentials, err := GenerateCredentials()
	if err != nil {
		return nil, err
	}

	userData, err := m.provider.UserData(m.opts.ChiselImage, credentials)
	if err != nil {
		return nil, err
	}

	unlock, err := m.locker.Lock(ctx, req.Tenant)
	if err != nil {
		return nil, trace.Wrap(err, "waiting for tenant lock")
	}
	defer unlock()

	deleted, err := m.deleteTenantNodes(ctx, req.Tenant, req.Region)
	if err != nil {
		return nil, err
	}

	result := &Result{Deleted: deleted}
	endpoints := make([]Endpoint, 0, req.Count)

	for _, suffix := range m.Suffixes(req.Count) {
		name := fmt.Sprintf("%s-%s", req.Tenant, suffix)

		node, err := m.provider.Create(ctx, CreateSpec{
			Name:     name,
			Region:   req.Region,
			Size:     req.Size,
			UserData: userData,
			Labels:   map[string]string{tenant.LabelKey: req.Tenant},
		})
		m.recordVendorCall("create", err)

		if err != nil {
			return nil, trace.Wrap(err, "creating exit node %s", name)
		}

		if m.metrics != nil {
			m.metrics.RecordExitNodesCreated(m.provider.Name(), 1)
		}

		log.WithFields(logrus.Fields{
			"node": node.Name,
			"ipv4": node.IPv4,
		}).Info("Created exit node")

		result.Nodes = append(result.Nodes, *node)
		endpoints = append(endpoints, Endpoint{Suffix: suffix, IPv4: node.IPv4})
	}

	manifest, err := Manifest(m.opts.OperatorVersion, credentials, endpoints)
	if err != nil {
		return nil, err
	}

	result.Manifest = manifest

	log.WithField("deleted", deleted).Info("Provisioned exit nodes")

	return result, nil
}

// Delete removes every exit node of the tenant and returns how many were removed.
func (m *Manager) Delete(ctx context.Context, req DeleteRequest) (int, error) {
	name, err := tenant.Normalize(req.Tenant)
	if err != nil {
		return 0, err
	}

	region, err := m.resolveRegion(req.Region)
	if err != nil {
		return 0, err
	}

	unlock, err := m.locker.Lock(ctx, name)
	if err != nil {
		return 0, trace.Wrap(err, "waiting for tenant lock")
	}
	defer unlock()

	return m.deleteTenantNodes(ctx, name, region)
}

// deleteTenantNodes removes every node whose tenant label equals name. Nodes
// lacking the label value simply do not match.
func (m *Manager) deleteTenantNodes(ctx context.Context, name, region string) (int, error) {
	nodes, err := m.provider.List(ctx, region)
	m.recordVendorCall("list", err)

	if err != nil {
		return 0, trace.Wrap(err, "listing exit nodes")
	}

	deleted := 0

	for _, node := range nodes {
		if node.Labels[tenant.LabelKey] != name {
			continue
		}

		err := m.provider.Delete(ctx, node)
		m.recordVendorCall("delete", err)

		if err != nil {
			return deleted, trace.Wrap(err, "deleting exit node %s", node.Name)
		}

		deleted++

		m.log.WithFields(logrus.Fields{
			"tenant": name,
			"node":   node.Name,
		}).Info("Deleted exit node")
	}

	if m.metrics != nil && deleted > 0 {
		m.metrics.RecordExitNodesDeleted(m.provider.Name(), deleted)
	}

	return deleted, nil
}

func (m *Manager) recordVendorCall(operation string, err error) {
	if m.metrics != nil {
		m.metrics.RecordVendorCall(m.provider.Name(), operation, err)
	}
}
