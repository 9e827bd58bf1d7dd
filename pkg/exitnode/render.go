package exitnode

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/gravitational/trace"
	"gopkg.in/yaml.v3"
)

const (
	chiselPort         = 9090
	operatorNamespace  = "chisel-operator-system"
	operatorAuthSecret = "selfhosted"
	operatorRepository = "https://github.com/FyraLabs/chisel-operator"
)

type cloudConfig struct {
	PackageUpdate bool     `yaml:"package_update"`
	RunCmd        []string `yaml:"runcmd"`
}

// CloudConfig renders the boot script that installs Docker and starts a
// chisel server in reverse mode with the given credentials.
func CloudConfig(chiselImage, credentials string) (string, error) {
	cc := cloudConfig{
		PackageUpdate: true,
		RunCmd: []string{
			"curl -fsSL https://get.docker.com -o get-docker.sh && sudo sh get-docker.sh && sudo apt install tmux -y",
			fmt.Sprintf(
				"sudo docker run -d --restart always -p %d:%d -p 443:443 -p 80:80 -it %s server --reverse --port=%d --auth='%s'",
				chiselPort, chiselPort, chiselImage, chiselPort, credentials,
			),
		},
	}

	out, err := yaml.Marshal(cc)
	if err != nil {
		return "", trace.Wrap(err, "rendering cloud-config")
	}

	return "#cloud-config\n" + string(out), nil
}

// ShellUserData renders the same boot sequence as a plain shell script, for
// providers that do not run cloud-init on user data.
func ShellUserData(chiselImage, credentials string) string {
	var b strings.Builder

	b.WriteString("#!/bin/bash\n\n")
	b.WriteString("# Some regions appear to be problematic on DNS resolution\n")
	b.WriteString("sleep 15;\n\n")
	b.WriteString("curl -fsSL https://get.docker.com -o get-docker.sh && sudo sh get-docker.sh && sudo apt install tmux -y\n\n")
	fmt.Fprintf(&b,
		"sudo docker run -d --restart always -p %d:%d -p 443:443 -p 80:80 -it %s server --reverse --port=%d --auth='%s'\n",
		chiselPort, chiselPort, chiselImage, chiselPort, credentials,
	)

	return b.String()
}

type objectMeta struct {
	Name      string `yaml:"name"`
	Namespace string `yaml:"namespace"`
}

type secretManifest struct {
	APIVersion string            `yaml:"apiVersion"`
	Kind       string            `yaml:"kind"`
	Metadata   objectMeta        `yaml:"metadata"`
	Type       string            `yaml:"type"`
	StringData map[string]string `yaml:"stringData"`
}

type exitNodeSpec struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Auth string `yaml:"auth"`
}

type exitNodeManifest struct {
	APIVersion string       `yaml:"apiVersion"`
	Kind       string       `yaml:"kind"`
	Metadata   objectMeta   `yaml:"metadata"`
	Spec       exitNodeSpec `yaml:"spec"`
}

// Endpoint is a provisioned exit node as seen by the cluster.
type Endpoint struct {
	Suffix string
	IPv4   string
}

// Manifest renders the shell snippet that installs the chisel operator and
// registers the given exit nodes with it.
func Manifest(operatorVersion, credentials string, endpoints []Endpoint) (string, error) {
	var docs bytes.Buffer

	enc := yaml.NewEncoder(&docs)
	enc.SetIndent(2)

	secret := secretManifest{
		APIVersion: "v1",
		Kind:       "Secret",
		Metadata:   objectMeta{Name: operatorAuthSecret, Namespace: operatorNamespace},
		Type:       "Opaque",
		StringData: map[string]string{"auth": credentials},
	}

	if err := enc.Encode(secret); err != nil {
		return "", trace.Wrap(err, "rendering auth secret")
	}

	for _, ep := range endpoints {
		node := exitNodeManifest{
			APIVersion: "chisel-operator.io/v1",
			Kind:       "ExitNode",
			Metadata:   objectMeta{Name: ep.Suffix, Namespace: operatorNamespace},
			Spec: exitNodeSpec{
				Host: ep.IPv4,
				Port: chiselPort,
				Auth: operatorAuthSecret,
			},
		}

		if err := enc.Encode(node); err != nil {
			return "", trace.Wrap(err, "rendering exit node %s", ep.Suffix)
		}
	}

	if err := enc.Close(); err != nil {
		return "", trace.Wrap(err)
	}

	var b strings.Builder

	fmt.Fprintf(&b, "\nkubectl apply -k %s?ref=%s\n\n", operatorRepository, operatorVersion)
	b.WriteString("kubectl apply -f - <<YAML\n")
	b.Write(docs.Bytes())
	b.WriteString("YAML\n")

	return b.String(), nil
}
