package exitnode

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lightsail"
	"github.com/aws/aws-sdk-go-v2/service/lightsail/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/glueops/tools-api/pkg/tenant"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLightsail implements LightsailAPI for a single region.
type fakeLightsail struct {
	mu        sync.Mutex
	instances map[string]*types.Instance
	polls     map[string]int
	opened    []string
	created   []*lightsail.CreateInstancesInput
}

func newFakeLightsail() *fakeLightsail {
	return &fakeLightsail{
		instances: make(map[string]*types.Instance),
		polls:     make(map[string]int),
	}
}

func (f *fakeLightsail) GetInstances(_ context.Context, _ *lightsail.GetInstancesInput, _ ...func(*lightsail.Options)) (*lightsail.GetInstancesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := &lightsail.GetInstancesOutput{}
	for _, inst := range f.instances {
		out.Instances = append(out.Instances, *inst)
	}

	return out, nil
}

func (f *fakeLightsail) GetInstance(_ context.Context, in *lightsail.GetInstanceInput, _ ...func(*lightsail.Options)) (*lightsail.GetInstanceOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(in.InstanceName)

	inst, ok := f.instances[name]
	if !ok {
		return nil, &types.NotFoundException{Message: aws.String("no such instance")}
	}

	// Report "pending" on the first poll.
	f.polls[name]++
	if f.polls[name] > 1 {
		inst.State = &types.InstanceState{Name: aws.String("running")}
		inst.PublicIpAddress = aws.String("203.0.113.7")
	}

	cp := *inst

	return &lightsail.GetInstanceOutput{Instance: &cp}, nil
}

func (f *fakeLightsail) CreateInstances(_ context.Context, in *lightsail.CreateInstancesInput, _ ...func(*lightsail.Options)) (*lightsail.CreateInstancesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.created = append(f.created, in)

	for _, name := range in.InstanceNames {
		f.instances[name] = &types.Instance{
			Name:  aws.String(name),
			Arn:   aws.String("arn:aws:lightsail:us-west-2:1:Instance/" + name),
			Tags:  in.Tags,
			State: &types.InstanceState{Name: aws.String("pending")},
		}
	}

	return &lightsail.CreateInstancesOutput{}, nil
}

func (f *fakeLightsail) DeleteInstance(_ context.Context, in *lightsail.DeleteInstanceInput, _ ...func(*lightsail.Options)) (*lightsail.DeleteInstanceOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(in.InstanceName)
	if _, ok := f.instances[name]; !ok {
		return nil, &types.NotFoundException{Message: aws.String("no such instance")}
	}

	delete(f.instances, name)

	return &lightsail.DeleteInstanceOutput{}, nil
}

func (f *fakeLightsail) OpenInstancePublicPorts(_ context.Context, in *lightsail.OpenInstancePublicPortsInput, _ ...func(*lightsail.Options)) (*lightsail.OpenInstancePublicPortsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.opened = append(f.opened, aws.ToString(in.InstanceName))

	return &lightsail.OpenInstancePublicPortsOutput{}, nil
}

func newTestLightsailProvider(api *fakeLightsail) *lightsailProvider {
	log := logrus.New()
	log.SetOutput(io.Discard)

	p := newLightsailProvider(log, "debian_12", nil, func(string) LightsailAPI { return api })
	p.newBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 5)
	}

	return p
}

func TestLightsailCreateWaitsAndOpensPorts(t *testing.T) {
	api := newFakeLightsail()
	p := newTestLightsailProvider(api)

	node, err := p.Create(context.Background(), CreateSpec{
		Name:     "t-exit1",
		Region:   "us-west-2",
		Size:     "nano_3_0",
		UserData: "#!/bin/bash",
		Labels:   map[string]string{tenant.LabelKey: "t"},
	})
	require.NoError(t, err)

	assert.Equal(t, "203.0.113.7", node.IPv4)
	assert.Equal(t, "t", node.Labels[tenant.LabelKey])
	assert.Equal(t, []string{"t-exit1"}, api.opened)

	require.Len(t, api.created, 1)
	assert.Equal(t, "us-west-2a", aws.ToString(api.created[0].AvailabilityZone))
	assert.Equal(t, "debian_12", aws.ToString(api.created[0].BlueprintId))
	assert.Equal(t, "nano_3_0", aws.ToString(api.created[0].BundleId))
}

func TestLightsailListAndDelete(t *testing.T) {
	api := newFakeLightsail()
	api.instances["t-exit1"] = &types.Instance{
		Name: aws.String("t-exit1"),
		Tags: []types.Tag{{Key: aws.String(tenant.LabelKey), Value: aws.String("t")}},
	}
	api.instances["untagged"] = &types.Instance{Name: aws.String("untagged")}

	p := newTestLightsailProvider(api)

	nodes, err := p.List(context.Background(), "us-west-2")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "t-exit1", nodes[0].Name)

	require.NoError(t, p.Delete(context.Background(), nodes[0]))

	// A second delete hits NotFound, which is success.
	require.NoError(t, p.Delete(context.Background(), nodes[0]))
	assert.Len(t, api.instances, 1)
}

func TestLightsailListSweepsConfiguredRegions(t *testing.T) {
	west, east := newFakeLightsail(), newFakeLightsail()
	west.instances["t-exit1"] = &types.Instance{
		Name: aws.String("t-exit1"),
		Tags: []types.Tag{{Key: aws.String(tenant.LabelKey), Value: aws.String("t")}},
	}
	east.instances["t-exit2"] = &types.Instance{
		Name: aws.String("t-exit2"),
		Tags: []types.Tag{{Key: aws.String(tenant.LabelKey), Value: aws.String("t")}},
	}

	clients := map[string]*fakeLightsail{"us-west-2": west, "us-east-1": east}

	log := logrus.New()
	log.SetOutput(io.Discard)

	p := newLightsailProvider(log, "debian_12", []string{"us-east-1", "us-west-2"}, func(region string) LightsailAPI {
		return clients[region]
	})

	nodes, err := p.List(context.Background(), "us-west-2")
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	regions := map[string]string{}
	for _, n := range nodes {
		regions[n.Name] = n.Region
	}

	assert.Equal(t, map[string]string{"t-exit1": "us-west-2", "t-exit2": "us-east-1"}, regions)

	// Deletes go to the node's own region.
	for _, n := range nodes {
		require.NoError(t, p.Delete(context.Background(), n))
	}

	assert.Empty(t, west.instances)
	assert.Empty(t, east.instances)
}
