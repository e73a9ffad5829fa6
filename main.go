/*
Copyright 2022 The l7mp/stunner team.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/sanity-io/litter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/l7mp/materialite/internal/buildinfo"
	"github.com/l7mp/materialite/internal/demo"
	"github.com/l7mp/materialite/pkg/materialite"
	"github.com/l7mp/materialite/pkg/tree"
	"github.com/l7mp/materialite/pkg/visualize"
)

var (
	version    = "dev"
	commitHash = "n/a"
	buildDate  = "<unknown>"

	setupLog logr.Logger
)

func main() {
	opts := zap.Options{
		Development:     true,
		DestWriter:      os.Stderr,
		StacktraceLevel: zapcore.Level(3),
		TimeEncoder:     zapcore.RFC3339NanoTimeEncoder,
	}
	opts.BindFlags(flag.CommandLine)

	rootCmd := &cobra.Command{
		Use:   "materialite",
		Short: "Incremental view maintenance demo",
		Long: "Run a sample incremental view maintenance pipeline. Flags can also be set via " +
			"environment variables of the form MATERIALITE_<FLAG>, e.g. MATERIALITE_SEED=42.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := viper.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			logger := zap.New(zap.UseFlagOptions(&opts))
			setupLog = logger.WithName("setup")
			buildInfo := buildinfo.BuildInfo{Version: version, CommitHash: commitHash, BuildDate: buildDate}.Complete()
			setupLog.Info(fmt.Sprintf("starting materialite %s", buildInfo.String()))
			return nil
		},
	}
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	rootCmd.PersistentFlags().Uint64("seed", 1, "Seed of the random data and the tree priorities")
	rootCmd.PersistentFlags().Int("customers", 4, "Number of customers")
	rootCmd.PersistentFlags().Int("orders", 20, "Number of orders loaded initially")
	rootCmd.PersistentFlags().Int("limit", 5, "Size of the top orders view")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "demo",
		Short: "Load the sample data, run random updates and print the views after each round",
		RunE:  runDemo,
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "graph",
		Short: "Print the dataflow graph of the sample pipeline",
		RunE:  runGraph,
	})
	rootCmd.PersistentFlags().Int("rounds", 3, "Number of update rounds")
	rootCmd.PersistentFlags().Int("updates", 10, "Number of transactions per update round")
	rootCmd.PersistentFlags().String("format", "dot", "Graph output format (dot, mermaid)")

	cobra.OnInitialize(func() {
		viper.SetEnvPrefix("materialite")
		viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
		viper.AutomaticEnv()
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup() (*demo.Demo, *rand.Rand, error) {
	seed := viper.GetUint64("seed")
	m := materialite.New(materialite.Options{
		Name:   "demo",
		Logger: setupLog.WithName("materialite"),
		Rand:   tree.NewSeededRand(seed),
	})
	d, err := demo.New(m, viper.GetInt("limit"))
	if err != nil {
		return nil, nil, err
	}
	return d, rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), nil
}

func runDemo(cmd *cobra.Command, _ []string) error {
	d, rnd, err := setup()
	if err != nil {
		setupLog.Error(err, "unable to set up the pipeline")
		return err
	}

	customers := viper.GetInt("customers")
	if err := d.Load(rnd, customers, viper.GetInt("orders")); err != nil {
		setupLog.Error(err, "initial load failed")
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "initial: %s\n", litter.Sdump(d.Report()))

	for i := range viper.GetInt("rounds") {
		if err := d.Churn(rnd, customers, viper.GetInt("updates")); err != nil {
			setupLog.Error(err, "update round failed", "round", i)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "round %d: %s\n", i, litter.Sdump(d.Report()))
	}
	return nil
}

func runGraph(cmd *cobra.Command, _ []string) error {
	gen, err := visualize.NewGenerator(viper.GetString("format"))
	if err != nil {
		return err
	}
	d, _, err := setup()
	if err != nil {
		return err
	}
	g := visualize.BuildGraph("materialite demo", d.M.Sources())
	fmt.Fprint(cmd.OutOrStdout(), gen.Generate(g))
	return nil
}
