package db

import (
	"context"

	"github.com/pkg/errors"
)

// Ping is a liveness probe that touches no paste data.
func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	pong, err := r.conn().Ping(ctx).Result()
	if err != nil {
		return errors.Wrap(err, "ping redis")
	}
	if pong != "PONG" {
		return errors.Errorf("unexpected ping reply %q", pong)
	}
	return nil
}
