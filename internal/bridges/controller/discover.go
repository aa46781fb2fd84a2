package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/venstar-bridge/internal/discovery"
	"github.com/nerrad567/venstar-bridge/internal/events"
	"github.com/nerrad567/venstar-bridge/internal/thermostat"
	"github.com/nerrad567/venstar-bridge/internal/venstar"
)

// maxConcurrentProbes bounds the identity requests made after a search.
const maxConcurrentProbes = 8

// DiscoverResult summarises one discovery run by node address.
type DiscoverResult struct {
	Found   int      `json:"found"`
	Added   []string `json:"added"`
	Updated []string `json:"updated"`
	Skipped []string `json:"skipped"`
	Failed  []string `json:"failed"`
}

type probeResult struct {
	endpoint discovery.Endpoint
	device   Device
	identity venstar.Identity
	err      error
}

// Discover finds thermostats, adds residential ones and then forces a short
// and long poll of every device. Concurrent calls share one run.
func (b *Bridge) Discover(ctx context.Context) (DiscoverResult, error) {
	ch := b.flight.DoChan("discover", func() (any, error) {
		// Not the caller's context: other callers share this run.
		return b.discover(b.ctx)
	})
	select {
	case <-ctx.Done():
		return DiscoverResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return DiscoverResult{}, res.Err
		}
		return res.Val.(DiscoverResult), nil
	}
}

func (b *Bridge) discover(ctx context.Context) (DiscoverResult, error) {
	endpoints, err := b.discoverer.Discover(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrDiscoveryFailed, err)
		b.logWarn("discovery failed", "error", err)
		b.report(ctx, events.New(events.KindDiscoveryFailure, "", CmdDiscover, err.Error()))
		return DiscoverResult{}, err
	}
	if len(endpoints) == 0 {
		b.logWarn("discovery found no thermostats")
		b.report(ctx, events.New(events.KindDiscoveryFailure, "", CmdDiscover, "no thermostats found"))
		return DiscoverResult{}, nil
	}
	b.logInfo("discovery finished", "endpoints", len(endpoints))

	results := b.probe(ctx, endpoints)

	res := DiscoverResult{Found: len(endpoints)}
	for _, r := range results {
		address := r.endpoint.Address()
		switch {
		case errors.Is(r.err, venstar.ErrUnsupportedType):
			b.logInfo("skipping unsupported thermostat", "address", address, "host", r.endpoint.Host, "type", r.identity.Type)
			res.Skipped = append(res.Skipped, address)
			continue
		case r.err != nil:
			b.logWarn("thermostat probe failed", "address", address, "host", r.endpoint.Host, "error", r.err)
			b.report(ctx, events.New(events.KindDiscoveryFailure, address, CmdDiscover, r.err.Error()))
			res.Failed = append(res.Failed, address)
			continue
		}

		created, err := b.add(ctx, r)
		if err != nil {
			b.logError("failed to register thermostat", err)
			b.report(ctx, events.New(events.KindDiscoveryFailure, address, CmdDiscover, err.Error()))
			res.Failed = append(res.Failed, address)
			continue
		}
		if created {
			res.Added = append(res.Added, address)
		} else {
			res.Updated = append(res.Updated, address)
		}
	}

	b.setThermostatCount(len(b.registry.List()))
	b.scheduler.TriggerAll(true, true)
	return res, nil
}

// probe fetches each endpoint's identity in parallel. Failures are kept per
// endpoint and never cancel the other probes.
func (b *Bridge) probe(ctx context.Context, endpoints []discovery.Endpoint) []probeResult {
	results := make([]probeResult, len(endpoints))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentProbes)

	for i, ep := range endpoints {
		i, ep := i, ep
		g.Go(func() error {
			d := b.newDevice(ep.Host)
			id, err := d.Probe(gctx)
			results[i] = probeResult{endpoint: ep, device: d, identity: id, err: err}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // probes never return errors
	return results
}

// add registers a probed thermostat and announces it. Polling restarts only
// for new thermostats and ones whose host changed, so a running worker is
// never replaced under an in-flight poll.
func (b *Bridge) add(ctx context.Context, r probeResult) (bool, error) {
	name := r.identity.Name
	if name == "" {
		name = r.endpoint.Name
	}
	t := thermostat.Thermostat{
		Address:   r.endpoint.Address(),
		DeviceID:  r.endpoint.ID,
		Name:      name,
		Hostname:  r.endpoint.Host,
		Type:      r.identity.Type,
		TempUnits: r.identity.TempUnits,
	}
	prev, known := b.registry.Get(t.Address)
	created, err := b.registry.Upsert(ctx, t)
	if err != nil {
		return false, err
	}

	if !known || prev.Hostname != t.Hostname {
		b.attach(t, r.device)
	}
	if created {
		b.reflector.PublishNode(ctx, thermostatNode(t))
		b.logInfo("thermostat added", "address", t.Address, "name", t.Name, "host", t.Hostname)
	}
	return created, nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
