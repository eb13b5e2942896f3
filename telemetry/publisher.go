package telemetry

import (
	"context"
	"errors"
)

//go:generate go tool mockgen -source=publisher.go -destination=mock_publisher.go -package=telemetry

// Publisher delivers snapshots to an external consumer.
type Publisher interface {
	Publish(ctx context.Context, s Snapshot) error
}

// Fanout publishes every snapshot to each of its publishers. A failing
// publisher does not stop the others.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, s Snapshot) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
