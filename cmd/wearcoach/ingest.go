package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wearcoach/wearcoach/config"
	"github.com/wearcoach/wearcoach/internal/chat"
	"github.com/wearcoach/wearcoach/internal/health"
	"github.com/wearcoach/wearcoach/internal/knowledge"
	"github.com/wearcoach/wearcoach/internal/provider"
	"github.com/wearcoach/wearcoach/internal/store"
)

// ingestCMD loads a JSON file of daily summaries into the vector index
// without going through the HTTP surface.
func ingestCMD() *cobra.Command {
	var cfgPath string
	var file string
	var userID string
	var source string

	var ingest = &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a JSON file of daily health summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			dsn, err := cfg.Storage.Postgres.DSN()
			if err != nil {
				return err
			}
			st, err := store.Open(dsn)
			if err != nil {
				return err
			}
			defer st.Close()
			llm, err := provider.NewProvider(cfg.LLM)
			if err != nil {
				return err
			}
			ks := knowledge.New(llm, st,
				knowledge.WithVectorCacheSize(cfg.Chat.EmbeddingCacheSize))

			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var snaps []health.Snapshot
			if err := json.Unmarshal(data, &snaps); err != nil {
				// Allow a single-object file as well.
				var one health.Snapshot
				if err2 := json.Unmarshal(data, &one); err2 != nil {
					return fmt.Errorf("parse %s: %w", file, err)
				}
				snaps = []health.Snapshot{one}
			}

			res, err := ks.IngestBatch(context.Background(), snaps, chat.NormalizeUserID(userID), source)
			if err != nil {
				return err
			}
			out, _ := json.MarshalIndent(res, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
	ingest.Flags().StringVarP(&file, "file", "f", "", "summaries JSON file")
	ingest.Flags().StringVarP(&userID, "user", "u", "", "user id (blank mints an anonymous id)")
	ingest.Flags().StringVarP(&source, "source", "s", "cli", "document source tag")
	ingest.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	_ = ingest.MarkFlagRequired("file")

	return ingest
}
