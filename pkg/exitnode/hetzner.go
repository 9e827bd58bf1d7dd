package exitnode

import (
	"context"
	"strconv"

	"github.com/glueops/tools-api/pkg/config"
	"github.com/glueops/tools-api/pkg/tenant"
	"github.com/gravitational/trace"
	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"github.com/sirupsen/logrus"
)

// hetznerProvider runs exit nodes on Hetzner Cloud.
type hetznerProvider struct {
	log        logrus.FieldLogger
	client     *hcloud.Client
	image      string
	sshKeyName string
}

// Ensure hetznerProvider implements Provider.
var _ Provider = (*hetznerProvider)(nil)

// NewHetznerProvider creates a Hetzner Cloud provider.
func NewHetznerProvider(log logrus.FieldLogger, cfg config.HetznerConfig, version string) Provider {
	opts := []hcloud.ClientOption{
		hcloud.WithToken(cfg.Token),
		hcloud.WithApplication("tools-api", version),
	}

	if cfg.Endpoint != "" {
		opts = append(opts, hcloud.WithEndpoint(cfg.Endpoint))
	}

	return &hetznerProvider{
		log:        log.WithField("provider", config.ProviderHetzner),
		client:     hcloud.NewClient(opts...),
		image:      cfg.Image,
		sshKeyName: cfg.SSHKeyName,
	}
}

// Name returns the provider name.
func (p *hetznerProvider) Name() string {
	return config.ProviderHetzner
}

// UserData renders a cloud-config document.
func (p *hetznerProvider) UserData(chiselImage, credentials string) (string, error) {
	return CloudConfig(chiselImage, credentials)
}

// List returns every server carrying the tenant label. Hetzner projects are
// global, so region is not used as a filter.
func (p *hetznerProvider) List(ctx context.Context, _ string) ([]Node, error) {
	servers, err := p.client.Server.AllWithOpts(ctx, hcloud.ServerListOpts{
		ListOpts: hcloud.ListOpts{LabelSelector: tenant.LabelKey},
	})
	if err != nil {
		return nil, trace.Wrap(err, "listing hetzner servers")
	}

	nodes := make([]Node, 0, len(servers))

	for _, s := range servers {
		nodes = append(nodes, serverToNode(s))
	}

	return nodes, nil
}

// Delete removes a server and waits for the delete action.
func (p *hetznerProvider) Delete(ctx context.Context, node Node) error {
	id, err := strconv.ParseInt(node.ID, 10, 64)
	if err != nil {
		return trace.BadParameter("invalid hetzner server id %q", node.ID)
	}

	result, _, err := p.client.Server.DeleteWithResult(ctx, &hcloud.Server{ID: id})
	if err != nil {
		if hcloud.IsError(err, hcloud.ErrorCodeNotFound) {
			p.log.WithField("node", node.Name).Debug("Server already gone")

			return nil
		}

		return trace.Wrap(err, "deleting hetzner server %s", node.Name)
	}

	if result != nil && result.Action != nil {
		if err := p.client.Action.WaitFor(ctx, result.Action); err != nil {
			return trace.Wrap(err, "waiting for deletion of hetzner server %s", node.Name)
		}
	}

	return nil
}

// Create creates a server with IPv4 only and waits until it is running.
func (p *hetznerProvider) Create(ctx context.Context, spec CreateSpec) (*Node, error) {
	opts := hcloud.ServerCreateOpts{
		Name:       spec.Name,
		ServerType: &hcloud.ServerType{Name: spec.Size},
		Image:      &hcloud.Image{Name: p.image},
		Location:   &hcloud.Location{Name: spec.Region},
		UserData:   spec.UserData,
		Labels:     spec.Labels,
		PublicNet: &hcloud.ServerCreatePublicNet{
			EnableIPv4: true,
			EnableIPv6: false,
		},
	}

	if p.sshKeyName != "" {
		key, _, err := p.client.SSHKey.GetByName(ctx, p.sshKeyName)
		if err != nil {
			return nil, trace.Wrap(err, "looking up ssh key %s", p.sshKeyName)
		}

		if key == nil {
			return nil, trace.NotFound("hetzner ssh key %q not found", p.sshKeyName)
		}

		opts.SSHKeys = []*hcloud.SSHKey{key}
	}

	result, _, err := p.client.Server.Create(ctx, opts)
	if err != nil {
		return nil, trace.Wrap(err, "creating hetzner server %s", spec.Name)
	}

	actions := make([]*hcloud.Action, 0, 1+len(result.NextActions))
	if result.Action != nil {
		actions = append(actions, result.Action)
	}

	actions = append(actions, result.NextActions...)

	if err := p.client.Action.WaitFor(ctx, actions...); err != nil {
		return nil, trace.Wrap(err, "waiting for hetzner server %s", spec.Name)
	}

	server, _, err := p.client.Server.GetByID(ctx, result.Server.ID)
	if err != nil {
		return nil, trace.Wrap(err, "reading back hetzner server %s", spec.Name)
	}

	if server == nil {
		return nil, trace.NotFound("hetzner server %s disappeared after creation", spec.Name)
	}

	node := serverToNode(server)
	if node.IPv4 == "" {
		return nil, trace.Errorf("hetzner server %s has no public IPv4 address", spec.Name)
	}

	return &node, nil
}

func serverToNode(s *hcloud.Server) Node {
	node := Node{
		ID:     strconv.FormatInt(s.ID, 10),
		Name:   s.Name,
		Labels: s.Labels,
	}

	if s.Datacenter != nil && s.Datacenter.Location != nil {
		node.Region = s.Datacenter.Location.Name
	}

	if ip := s.PublicNet.IPv4.IP; ip != nil && !ip.IsUnspecified() {
		node.IPv4 = s.PublicNet.IPv4.IP.String()
	}

	return node
}
