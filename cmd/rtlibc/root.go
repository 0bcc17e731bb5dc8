// Copyright 2024 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cloudwego/rtlib/heap"
	"github.com/cloudwego/rtlib/libc"
	"github.com/cloudwego/rtlib/sys"
	"github.com/cloudwego/rtlib/sys/memsys"
)

const envPrefix = "RTLIBC"

// Config is the merged view of flags, RTLIBC_* environment variables and the
// optional config file, in that order of precedence.
type Config struct {
	LogLevel    string `mapstructure:"log-level"`
	PageSize    int    `mapstructure:"page-size"`
	ScratchSize int    `mapstructure:"scratch-size"`
	Sim         bool   `mapstructure:"sim"`
	HeapLimit   int    `mapstructure:"heap-limit"`
}

func loadConfig(cmd *cobra.Command, file string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", zerolog.InfoLevel.String())
	v.SetDefault("page-size", heap.DefaultPageSize)
	v.SetDefault("scratch-size", libc.DefaultScratchSize)
	v.SetDefault("sim", false)
	v.SetDefault("heap-limit", 0)

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %v", err)
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read: %v", err)
		}
	}

	c := new(Config)
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("unmarshal: %v", err)
	}
	return c, nil
}

type app struct {
	configFile string

	cfg *Config
	log zerolog.Logger
	sim *memsys.Kernel // nil on the host kernel
	rt  *libc.Runtime
}

func newCmdMain() *cobra.Command {
	a := new(app)
	cmd := &cobra.Command{
		Use:               "rtlibc",
		Short:             "C style runtime over raw kernel primitives",
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	f := cmd.PersistentFlags()
	f.StringVar(&a.configFile, "config", "", "Config file (yaml, toml or json)")
	f.String("log-level", zerolog.InfoLevel.String(), "Log level: trace, debug, info, warn, error")
	f.Int("page-size", heap.DefaultPageSize, "Heap growth granularity in bytes")
	f.Int("scratch-size", libc.DefaultScratchSize, "Printf render buffer capacity in bytes")
	f.Bool("sim", false, "Run on the in-memory kernel instead of the host")
	f.Int("heap-limit", 0, "Heap reservation limit in bytes for --sim, 0 for none")

	cmd.AddCommand(
		a.newCmdPrintf(),
		a.newCmdCopy(),
		a.newCmdHeap(),
	)
	return cmd
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, a.configFile)
	if err != nil {
		return err
	}
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %v", err)
	}
	a.cfg = cfg
	a.log = zerolog.New(zerolog.ConsoleWriter{
		Out:        cmd.ErrOrStderr(),
		NoColor:    true,
		TimeFormat: time.RFC3339,
	}).Level(lvl).With().Timestamp().Logger()

	var k sys.Kernel
	if cfg.Sim {
		a.sim = memsys.New(&memsys.Option{HeapLimit: cfg.HeapLimit})
		k = a.sim
	} else if k, err = hostKernel(); err != nil {
		return err
	}
	a.rt = libc.New(k, &libc.Option{
		PageSize:    cfg.PageSize,
		ScratchSize: cfg.ScratchSize,
		Logger:      &a.log,
	})
	a.log.Debug().Bool("sim", cfg.Sim).Int("page_size", cfg.PageSize).Msg("runtime ready")
	return nil
}

// run wraps fn so that, on the in-memory kernel, the simulated console output
// is copied to the command's writers whether fn succeeds or not.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer a.dumpConsole(cmd)
		return fn(cmd, args)
	}
}

func (a *app) dumpConsole(cmd *cobra.Command) {
	if a.sim == nil {
		return
	}
	if out := a.sim.Stdout(); len(out) > 0 {
		_, _ = cmd.OutOrStdout().Write(out)
	}
	if out := a.sim.Stderr(); len(out) > 0 {
		_, _ = cmd.ErrOrStderr().Write(out)
	}
}
