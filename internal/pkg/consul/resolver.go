package consul

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/consul/api"
	"go.uber.org/multierr"
)

const (
	isHTTPSSLKey = "HTTPSSL"
	priorityKey  = "priority"
)

type health interface {
	Service(service, tag string, passingOnly bool, q *api.QueryOptions) ([]*api.ServiceEntry, *api.QueryMeta, error)
}

// Resolver finds transcription server URL in consul
type Resolver struct {
	health  health
	srvName string
	backoff func() backoff.BackOff
}

type target struct {
	srv      string
	url      string
	priority float64
}

// NewResolver creates consul based server resolver
func NewResolver(cfg *api.Config, srvNameInConsul string) (*Resolver, error) {
	c, err := api.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if srvNameInConsul == "" {
		return nil, fmt.Errorf("no srv name")
	}
	return newResolver(c.Health(), srvNameInConsul), nil
}

func newResolver(h health, srvNameInConsul string) *Resolver {
	goapp.Log.Info().Str("service", srvNameInConsul).Msg("cfg: srv name in consul")
	return &Resolver{health: h, srvName: srvNameInConsul, backoff: func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	}}
}

// Resolve returns base URL of a healthy server, servers are selected randomly by priority
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	srvs, err := goapp.InvokeWithBackoff(ctx, func() ([]*api.ServiceEntry, bool, error) {
		ctxInt, cf := context.WithTimeout(ctx, time.Second*5)
		defer cf()
		res, _, err := r.health.Service(r.srvName, "", true, (&api.QueryOptions{}).WithContext(ctxInt))
		if err != nil {
			return nil, true, fmt.Errorf("can't invoke consul: %w", err)
		}
		return res, false, nil
	}, r.backoff())
	if err != nil {
		return "", err
	}
	targets, err := toTargets(srvs)
	if err != nil {
		goapp.Log.Warn().Err(err).Msg("skipped services")
	}
	if len(targets) == 0 {
		return "", fmt.Errorf("no healthy '%s' service in consul", r.srvName)
	}
	i, err := getRandomByPriority(targets)
	if err != nil {
		return "", fmt.Errorf("can't select server: %w", err)
	}
	goapp.Log.Info().Str("service", targets[i].srv).Str("url", targets[i].url).Msg("selected")
	return targets[i].url, nil
}

func toTargets(srvs []*api.ServiceEntry) ([]*target, error) {
	var res []*target
	var err error
	for _, s := range srvs {
		if s.Service == nil {
			continue
		}
		priority, errInt := getPriority(s)
		if errInt != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", key(s), errInt))
			continue
		}
		res = append(res, &target{srv: key(s), url: getURL(s), priority: priority})
	}
	return res, err
}

func getRandomByPriority(targets []*target) (int, error) {
	prMax := 0.0
	for _, tr := range targets {
		prMax += tr.priority
	}
	if prMax < 0.1 {
		return 0, fmt.Errorf("wrong priority sum found %f", prMax)
	}
	rnd := rand.Float64() * prMax
	prMax = 0.0
	for i, tr := range targets {
		prMax += tr.priority
		if prMax > rnd {
			return i, nil
		}
	}
	return len(targets) - 1, nil
}

func getPriority(s *api.ServiceEntry) (float64, error) {
	v, ok := s.Service.Meta[priorityKey]
	if !ok {
		return 1, nil
	}
	res, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("can't parse priority '%s': %v", v, err)
	}
	if res < 0.5 || res > 50 {
		return 0, fmt.Errorf("wrong priority value '%f', not in [0.5, 50]", res)
	}
	return res, nil
}

func getURL(s *api.ServiceEntry) string {
	ssl := ""
	if isSSL, ok := s.Service.Meta[isHTTPSSLKey]; ok {
		if boolValue, err := strconv.ParseBool(isSSL); err == nil && boolValue {
			ssl = "s"
		}
	}
	return fmt.Sprintf("http%s://%s", ssl, key(s))
}

func key(s *api.ServiceEntry) string {
	addr := s.Service.Address
	if addr == "" && s.Node != nil {
		addr = s.Node.Address
	}
	return fmt.Sprintf("%s:%d", addr, s.Service.Port)
}
