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

// Command viewsched runs the view materialization scheduler: it loads a
// view catalog and a database connection, wires up the coordinator
// graph, and keeps the process alive so coordinators can be driven
// through the manager. Nothing here parses view DSL or exposes a REST
// surface; both remain out of scope.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/warehouse-sched/viewsched/internal/config"
	"github.com/warehouse-sched/viewsched/internal/stopper"
	"github.com/warehouse-sched/viewsched/internal/wiring"
)

func main() {
	if err := run(); err != nil {
		log.WithError(err).Fatal("viewsched exited with an error")
	}
}

func run() error {
	cfg := &config.Config{}
	flags := pflag.NewFlagSet("viewsched", pflag.ExitOnError)
	verbose := flags.BoolP("verbose", "v", false, "enable debug logging")
	cfg.Bind(flags)
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}
	if err := cfg.Preflight(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc := stopper.WithContext(ctx)

	app, cleanup, err := wiring.NewApp(ctx, sc, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	log.Info("viewsched started")

	<-ctx.Done()
	log.Info("shutdown requested, draining coordinators")
	for _, err := range sc.Stop(30 * time.Second) {
		log.WithError(err).Warn("background task reported an error during shutdown")
	}

	for name, status := range app.Diags.Snapshot(context.Background()) {
		log.WithField("component", name).Infof("final status: %+v", status)
	}
	return nil
}
