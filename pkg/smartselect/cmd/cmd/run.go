// Copyright 2025 Antfly, Inc.
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

package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the smartselect server",
	Long:  `Load the configured models and serve the selection, classification and annotation API.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	defaults := smartselect.DefaultConfig()
	flags := runCmd.Flags()
	flags.String("api-url", defaults.ApiUrl, "address to serve the API on")
	flags.String("models-dir", "", "directory of model images (name.tcm or name/model.tcm)")
	flags.String("model-path", "", "single model image to load")
	flags.Duration("cache-ttl", defaults.CacheTTL, "result cache TTL")
	flags.Int("max-concurrent-requests", defaults.MaxConcurrentRequests, "max in-flight inference requests (0 = unlimited)")
	flags.Int("max-queue-size", defaults.MaxQueueSize, "max requests waiting for a slot (0 = unbounded)")
	flags.Duration("request-timeout", defaults.RequestTimeout, "max time a request waits for a slot")
	flags.Duration("regex-match-timeout", 0, "per-pattern regex match timeout (0 = default)")
	flags.Int("annotate-batch-concurrency", 0, "parallel texts per annotate request (0 = number of CPUs)")
	flags.Int64("max-request-bytes", defaults.MaxRequestBytes, "max API request body size (0 = unlimited)")
	flags.Int("max-annotate-texts", defaults.MaxAnnotateTexts, "max texts per annotate request (0 = unlimited)")

	mustBindPFlag("api_url", flags.Lookup("api-url"))
	mustBindPFlag("models_dir", flags.Lookup("models-dir"))
	mustBindPFlag("model_path", flags.Lookup("model-path"))
	mustBindPFlag("cache_ttl", flags.Lookup("cache-ttl"))
	mustBindPFlag("max_concurrent_requests", flags.Lookup("max-concurrent-requests"))
	mustBindPFlag("max_queue_size", flags.Lookup("max-queue-size"))
	mustBindPFlag("request_timeout", flags.Lookup("request-timeout"))
	mustBindPFlag("regex_match_timeout", flags.Lookup("regex-match-timeout"))
	mustBindPFlag("annotate_batch_concurrency", flags.Lookup("annotate-batch-concurrency"))
	mustBindPFlag("max_request_bytes", flags.Lookup("max-request-bytes"))
	mustBindPFlag("max_annotate_texts", flags.Lookup("max-annotate-texts"))
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("Running as smartselect")

	cfg := smartselect.Config{
		ApiUrl:                   viper.GetString("api_url"),
		ModelsDir:                viper.GetString("models_dir"),
		ModelPath:                viper.GetString("model_path"),
		CacheTTL:                 viper.GetDuration("cache_ttl"),
		MaxConcurrentRequests:    viper.GetInt("max_concurrent_requests"),
		MaxQueueSize:             viper.GetInt("max_queue_size"),
		RequestTimeout:           viper.GetDuration("request_timeout"),
		RegexMatchTimeout:        viper.GetDuration("regex_match_timeout"),
		AnnotateBatchConcurrency: viper.GetInt("annotate_batch_concurrency"),
		MaxRequestBytes:          viper.GetInt64("max_request_bytes"),
		MaxAnnotateTexts:         viper.GetInt("max_annotate_texts"),
	}

	readyC := make(chan struct{})
	go func() {
		select {
		case <-readyC:
			logger.Info("smartselect is ready")
		case <-ctx.Done():
		}
	}()

	return smartselect.RunAsSmartSelect(ctx, logger, cfg, readyC)
}
