// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Command persistentprocess-demo is a local exerciser of the
// persistent process core, in the spirit of erigon's cmd/ tree. It is
// not the admin HTTP surface excluded from this module's scope (§1);
// it is a CLI that submits events to a ConcatEchoProcess through the
// full engine + store-binding wrapper and prints the chain head.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erigontech/persistentprocess/config"
	"github.com/erigontech/persistentprocess/engine"
	"github.com/erigontech/persistentprocess/metrics"
	"github.com/erigontech/persistentprocess/process"
	"github.com/erigontech/persistentprocess/store"
	"github.com/erigontech/persistentprocess/store/boltstore"
	"github.com/erigontech/persistentprocess/store/filestore"
	"github.com/erigontech/persistentprocess/wrapper"
)

var (
	configPath string
	cfg        config.Config
)

func main() {
	root := &cobra.Command{
		Use:   "persistentprocess-demo",
		Short: "Exercise the persistent process core against a real store backend",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (defaults built in)")

	root.AddCommand(submitCmd(), headCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func openStore(c config.Config) (store.Store, error) {
	switch c.Backend {
	case config.BackendBolt:
		return boltstore.Open(c.DataDir)
	case config.BackendFile:
		return filestore.Open(afero.NewOsFs(), c.DataDir)
	default:
		return nil, errors.Errorf("unknown backend %q", c.Backend)
	}
}

func buildEngine(c config.Config, logger *zap.Logger) (*engine.Engine, store.Store, *metrics.Collector, error) {
	st, err := openStore(c)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "open store")
	}
	collector := metrics.NewCollector(prometheus.NewRegistry(), c.MetricsNamespace)
	proc := process.NewConcatEchoProcess()
	eng, err := engine.New(proc, st, engine.WithLogger(logger), engine.WithMetrics(collector))
	if err != nil {
		_ = st.Close()
		return nil, nil, nil, errors.Wrap(err, "rehydrate engine")
	}
	return eng, st, collector, nil
}

func submitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit [event...]",
		Short: "Submit one or more events, one composition record per event",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			logger, _ := zap.NewDevelopment()
			defer logger.Sync() //nolint:errcheck

			eng, st, collector, err := buildEngine(c, logger)
			if err != nil {
				return err
			}
			defer st.Close()
			_ = collector

			w := wrapper.New(eng, st, wrapper.WithLogger(logger))
			defer w.Dispose()

			for _, event := range args {
				resp, err := w.ProcessEvent(event)
				if err != nil {
					return errors.Wrapf(err, "submit %q", event)
				}
				fmt.Printf("event=%q response=%q head=%s\n", event, resp, eng.LastStateHash())
			}
			return nil
		},
	}
}

func headCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "head",
		Short: "Print the current chain head and reduced state",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			logger, _ := zap.NewDevelopment()
			defer logger.Sync() //nolint:errcheck

			eng, st, _, err := buildEngine(c, logger)
			if err != nil {
				return err
			}
			defer st.Close()
			defer eng.Dispose()

			reduction, err := eng.CurrentReduction()
			if err != nil {
				return err
			}
			fmt.Printf("head=%s state=%q\n", reduction.ReducedCompositionHash, reduction.ReducedValue)
			return nil
		},
	}
}
