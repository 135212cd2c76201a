package s3

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/arencloud/s3audit/internal/config"
)

// ProviderAWS is the default provider; it needs no preset.
const ProviderAWS = "aws"

var ErrUnknownProvider = errors.New("unknown provider")

// Provider describes an S3-compatible service reachable through one endpoint
// per region.
type Provider struct {
	Name string
	// EndpointFormat has a single %s for the region, or none when every
	// region shares one endpoint.
	EndpointFormat string
	Regions        []string
	AddressStyle   string // path|vhost
	// ListForExistence checks existence with a one-key listing instead of
	// HEAD, for services that answer HEAD in every region.
	ListForExistence bool
}

var providers = map[string]Provider{
	"digitalocean": {
		Name:           "digitalocean",
		EndpointFormat: "https://%s.digitaloceanspaces.com",
		Regions:        []string{"ams3", "blr1", "fra1", "lon1", "nyc3", "sfo2", "sfo3", "sgp1", "syd1", "tor1"},
		AddressStyle:   "path",
	},
	"dreamhost": {
		Name:           "dreamhost",
		EndpointFormat: "https://objects-%s.dream.io",
		Regions:        []string{"us-east-1"},
		AddressStyle:   "path",
	},
	"gcp": {
		Name:           "gcp",
		EndpointFormat: "https://storage.googleapis.com",
		Regions:        []string{"auto"},
		AddressStyle:   "path",
	},
	"linode": {
		Name:           "linode",
		EndpointFormat: "https://%s.linodeobjects.com",
		Regions: []string{"us-east-1", "us-ord-1", "us-lax-1", "us-sea-1", "us-southeast-1", "us-mia-1", "us-sea-9",
			"us-iad-1", "us-iad-10", "id-cgk-1", "in-maa-1", "in-bom-1", "jp-osa-1", "ap-south-1", "sg-sin-1",
			"eu-central-1", "de-fra-1", "es-mad-1", "fr-par-1", "gb-lon-1", "it-mil-1", "nl-ams-1", "se-sto-1",
			"au-mel-1", "br-gru-1"},
		AddressStyle: "vhost",
	},
	"scaleway": {
		Name:             "scaleway",
		EndpointFormat:   "https://s3.%s.scw.cloud",
		Regions:          []string{"fr-par", "nl-ams", "pl-waw"},
		AddressStyle:     "path",
		ListForExistence: true,
	},
	"wasabi": {
		Name:           "wasabi",
		EndpointFormat: "https://s3.%s.wasabisys.com",
		Regions: []string{"us-west-1", "us-east-1", "us-east-2", "us-central-1", "ca-central-1", "eu-west-1", "eu-west-2",
			"eu-west-3", "eu-central-1", "eu-central-2", "eu-south-1", "ap-northeast-1", "ap-northeast-2", "ap-southeast-2",
			"ap-southeast-1"},
		AddressStyle: "path",
	},
}

// ProviderNames lists the presets, sorted.
func ProviderNames() []string {
	names := make([]string, 0, len(providers))
	for n := range providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IsPreset reports whether name selects a provider preset rather than AWS or
// a custom endpoint.
func IsPreset(name string) bool {
	_, ok := providers[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

func LookupProvider(name string) (Provider, error) {
	p, ok := providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Provider{}, fmt.Errorf("%w %q (known: %s)", ErrUnknownProvider, name, strings.Join(ProviderNames(), ", "))
	}
	return p, nil
}

// Endpoint returns the base URL for region.
func (p Provider) Endpoint(region string) string {
	if !strings.Contains(p.EndpointFormat, "%s") {
		return p.EndpointFormat
	}
	return fmt.Sprintf(p.EndpointFormat, region)
}

// Hosts returns the distinct endpoint hostnames of all regions.
func (p Provider) Hosts() []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range p.Regions {
		u, err := url.Parse(p.Endpoint(r))
		if err != nil || seen[u.Hostname()] {
			continue
		}
		seen[u.Hostname()] = true
		out = append(out, u.Hostname())
	}
	return out
}

// NameHosts returns the endpoint hostnames a bucket may be written under,
// as in "media.nyc3.digitaloceanspaces.com". AWS hostnames are recognised by
// the name validator itself, so AWS yields none.
func NameHosts(cfg *config.Config) []string {
	if p, err := LookupProvider(cfg.Provider); err == nil {
		return p.Hosts()
	}
	if cfg.Endpoint == "" || IsAWSEndpoint(cfg.Endpoint) {
		return nil
	}
	base, err := normalizeEndpoint(cfg.Endpoint, cfg.Insecure)
	if err != nil {
		return nil
	}
	u, err := url.Parse(base)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	return []string{u.Hostname()}
}
