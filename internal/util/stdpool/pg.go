// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package stdpool opens the standardized Postgres/CockroachDB
// connection pool shared by the schema service and the SQL action
// runner, waiting for the database to become reachable on startup
// rather than failing immediately.
package stdpool

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warehouse-sched/viewsched/internal/stopper"
)

// WaitForStartup, when true, makes Open retry a failed ping instead of
// returning an error, for use against a database that may still be
// coming up (e.g. in a docker-compose stack starting concurrently).
type Option struct {
	WaitForStartup bool
	RetryInterval  time.Duration
}

// Open parses connectString and returns a ready, pinged pgxpool.Pool.
// The pool is closed automatically when sc stops.
func Open(ctx context.Context, sc *stopper.Context, connectString string, opt Option) (*pgxpool.Pool, error) {
	if opt.RetryInterval <= 0 {
		opt.RetryInterval = 5 * time.Second
	}

	cfg, err := pgxpool.ParseConfig(connectString)
	if err != nil {
		return nil, errors.Wrap(err, "parsing connection string")
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "opening connection pool")
	}

	sc.Go(func() error {
		<-sc.Stopping()
		pool.Close()
		return nil
	})

	for {
		pingErr := pool.Ping(ctx)
		if pingErr == nil {
			break
		}
		if !opt.WaitForStartup {
			return nil, errors.Wrap(pingErr, "could not ping database")
		}
		log.WithError(pingErr).Info("waiting for database to become ready")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-sc.Stopping():
			return nil, errors.New("stopped while waiting for database")
		case <-time.After(opt.RetryInterval):
		}
	}

	log.WithField("host", cfg.ConnConfig.Host).Debug("connected to database")
	return pool, nil
}
