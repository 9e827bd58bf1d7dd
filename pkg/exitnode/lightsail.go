package exitnode

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/lightsail"
	"github.com/aws/aws-sdk-go-v2/service/lightsail/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/glueops/tools-api/pkg/config"
	"github.com/glueops/tools-api/pkg/tenant"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
)

const lightsailStateRunning = "running"

// LightsailAPI is the subset of the Lightsail client used for exit nodes.
type LightsailAPI interface {
	GetInstances(ctx context.Context, in *lightsail.GetInstancesInput, optFns ...func(*lightsail.Options)) (*lightsail.GetInstancesOutput, error)
	GetInstance(ctx context.Context, in *lightsail.GetInstanceInput, optFns ...func(*lightsail.Options)) (*lightsail.GetInstanceOutput, error)
	CreateInstances(ctx context.Context, in *lightsail.CreateInstancesInput, optFns ...func(*lightsail.Options)) (*lightsail.CreateInstancesOutput, error)
	DeleteInstance(ctx context.Context, in *lightsail.DeleteInstanceInput, optFns ...func(*lightsail.Options)) (*lightsail.DeleteInstanceOutput, error)
	OpenInstancePublicPorts(ctx context.Context, in *lightsail.OpenInstancePublicPortsInput, optFns ...func(*lightsail.Options)) (*lightsail.OpenInstancePublicPortsOutput, error)
}

// lightsailProvider runs exit nodes on AWS Lightsail.
type lightsailProvider struct {
	log         logrus.FieldLogger
	clientFor   func(region string) LightsailAPI
	blueprintID string
	regions     []string
	newBackOff  func() backoff.BackOff
}

// Ensure lightsailProvider implements Provider.
var _ Provider = (*lightsailProvider)(nil)

// NewLightsailProvider creates an AWS Lightsail provider. Static keys from cfg
// take precedence over the default AWS credential chain.
func NewLightsailProvider(ctx context.Context, log logrus.FieldLogger, cfg config.LightsailConfig) (Provider, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.DefaultRegion),
	}

	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, trace.Wrap(err, "loading lightsail AWS config")
	}

	client := lightsail.NewFromConfig(awsCfg)

	return newLightsailProvider(log, cfg.BlueprintID, cfg.Regions, func(region string) LightsailAPI {
		return regionalLightsail{client: client, region: region}
	}), nil
}

func newLightsailProvider(
	log logrus.FieldLogger,
	blueprintID string,
	regions []string,
	clientFor func(string) LightsailAPI,
) *lightsailProvider {
	return &lightsailProvider{
		log:         log.WithField("provider", config.ProviderLightsail),
		clientFor:   clientFor,
		blueprintID: blueprintID,
		regions:     regions,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 5 * time.Second
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 10 * time.Minute

			return b
		},
	}
}

// regionalLightsail pins every call of a shared client to one region.
type regionalLightsail struct {
	client *lightsail.Client
	region string
}

func (r regionalLightsail) opt(optFns []func(*lightsail.Options)) []func(*lightsail.Options) {
	return append(optFns, func(o *lightsail.Options) { o.Region = r.region })
}

func (r regionalLightsail) GetInstances(ctx context.Context, in *lightsail.GetInstancesInput, optFns ...func(*lightsail.Options)) (*lightsail.GetInstancesOutput, error) {
	return r.client.GetInstances(ctx, in, r.opt(optFns)...)
}

func (r regionalLightsail) GetInstance(ctx context.Context, in *lightsail.GetInstanceInput, optFns ...func(*lightsail.Options)) (*lightsail.GetInstanceOutput, error) {
	return r.client.GetInstance(ctx, in, r.opt(optFns)...)
}

func (r regionalLightsail) CreateInstances(ctx context.Context, in *lightsail.CreateInstancesInput, optFns ...func(*lightsail.Options)) (*lightsail.CreateInstancesOutput, error) {
	return r.client.CreateInstances(ctx, in, r.opt(optFns)...)
}

func (r regionalLightsail) DeleteInstance(ctx context.Context, in *lightsail.DeleteInstanceInput, optFns ...func(*lightsail.Options)) (*lightsail.DeleteInstanceOutput, error) {
	return r.client.DeleteInstance(ctx, in, r.opt(optFns)...)
}

func (r regionalLightsail) OpenInstancePublicPorts(ctx context.Context, in *lightsail.OpenInstancePublicPortsInput, optFns ...func(*lightsail.Options)) (*lightsail.OpenInstancePublicPortsOutput, error) {
	return r.client.OpenInstancePublicPorts(ctx, in, r.opt(optFns)...)
}

// Name returns the provider name.
func (p *lightsailProvider) Name() string {
	return config.ProviderLightsail
}

// UserData renders a shell script; Lightsail runs it as a launch script.
func (p *lightsailProvider) UserData(chiselImage, credentials string) (string, error) {
	return ShellUserData(chiselImage, credentials), nil
}

// List returns every tenant-tagged instance in region and in every other
// configured region. Lightsail is regional, so a tenant that moved regions
// would otherwise keep its old nodes.
func (p *lightsailProvider) List(ctx context.Context, region string) ([]Node, error) {
	regions := []string{region}

	for _, r := range p.regions {
		if !slices.Contains(regions, r) {
			regions = append(regions, r)
		}
	}

	var nodes []Node

	for _, r := range regions {
		found, err := p.listRegion(ctx, r)
		if err != nil {
			return nil, err
		}

		nodes = append(nodes, found...)
	}

	return nodes, nil
}

func (p *lightsailProvider) listRegion(ctx context.Context, region string) ([]Node, error) {
	client := p.clientFor(region)

	var (
		nodes     []Node
		pageToken *string
	)

	for {
		out, err := client.GetInstances(ctx, &lightsail.GetInstancesInput{PageToken: pageToken})
		if err != nil {
			return nil, trace.Wrap(err, "listing lightsail instances in %s", region)
		}

		for _, inst := range out.Instances {
			node := instanceToNode(inst, region)
			if _, ok := node.Labels[tenant.LabelKey]; !ok {
				continue
			}

			nodes = append(nodes, node)
		}

		if aws.ToString(out.NextPageToken) == "" {
			break
		}

		pageToken = out.NextPageToken
	}

	return nodes, nil
}

// Delete removes an instance. NotFound is success.
func (p *lightsailProvider) Delete(ctx context.Context, node Node) error {
	_, err := p.clientFor(node.Region).DeleteInstance(ctx, &lightsail.DeleteInstanceInput{
		InstanceName: aws.String(node.Name),
	})
	if err != nil {
		var nfe *types.NotFoundException
		if errors.As(err, &nfe) {
			p.log.WithField("node", node.Name).Debug("Instance already gone")

			return nil
		}

		return trace.Wrap(err, "deleting lightsail instance %s", node.Name)
	}

	return nil
}

// Create creates an instance in the region's first availability zone, waits
// for it to run, opens every public port and reads back its IPv4.
func (p *lightsailProvider) Create(ctx context.Context, spec CreateSpec) (*Node, error) {
	client := p.clientFor(spec.Region)

	tags := make([]types.Tag, 0, len(spec.Labels))
	for k, v := range spec.Labels {
		tags = append(tags, types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}

	_, err := client.CreateInstances(ctx, &lightsail.CreateInstancesInput{
		InstanceNames:    []string{spec.Name},
		AvailabilityZone: aws.String(spec.Region + "a"),
		BlueprintId:      aws.String(p.blueprintID),
		BundleId:         aws.String(spec.Size),
		UserData:         aws.String(spec.UserData),
		Tags:             tags,
	})
	if err != nil {
		return nil, trace.Wrap(err, "creating lightsail instance %s", spec.Name)
	}

	inst, err := p.waitRunning(ctx, client, spec.Name)
	if err != nil {
		return nil, err
	}

	_, err = client.OpenInstancePublicPorts(ctx, &lightsail.OpenInstancePublicPortsInput{
		InstanceName: aws.String(spec.Name),
		PortInfo: &types.PortInfo{
			FromPort: 0,
			ToPort:   65535,
			Protocol: types.NetworkProtocolAll,
		},
	})
	if err != nil {
		return nil, trace.Wrap(err, "opening ports on lightsail instance %s", spec.Name)
	}

	node := instanceToNode(*inst, spec.Region)
	if node.IPv4 == "" {
		return nil, trace.Errorf("lightsail instance %s has no public IPv4 address", spec.Name)
	}

	return &node, nil
}

// waitRunning polls the instance with exponential backoff until it reports running.
func (p *lightsailProvider) waitRunning(ctx context.Context, client LightsailAPI, name string) (*types.Instance, error) {
	var inst *types.Instance

	op := func() error {
		out, err := client.GetInstance(ctx, &lightsail.GetInstanceInput{InstanceName: aws.String(name)})
		if err != nil {
			var nfe *types.NotFoundException
			if errors.As(err, &nfe) {
				// Creation is asynchronous; the instance may not be visible yet.
				return err
			}

			return backoff.Permanent(err)
		}

		if out.Instance == nil || out.Instance.State == nil ||
			aws.ToString(out.Instance.State.Name) != lightsailStateRunning {
			return trace.Errorf("lightsail instance %s is not running yet", name)
		}

		inst = out.Instance

		return nil
	}

	notify := func(err error, next time.Duration) {
		p.log.WithError(err).WithField("retry_in", next).Debug("Waiting for lightsail instance")
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(p.newBackOff(), ctx), notify); err != nil {
		return nil, trace.Wrap(err, "waiting for lightsail instance %s", name)
	}

	return inst, nil
}

func instanceToNode(inst types.Instance, region string) Node {
	labels := make(map[string]string, len(inst.Tags))
	for _, tag := range inst.Tags {
		labels[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}

	return Node{
		ID:     aws.ToString(inst.Arn),
		Name:   aws.ToString(inst.Name),
		Region: region,
		Labels: labels,
		IPv4:   aws.ToString(inst.PublicIpAddress),
	}
}
