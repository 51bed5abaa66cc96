package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/matsen/research-assistant/internal/cachekey"
	"github.com/matsen/research-assistant/internal/document"
)

var cacheResetYes bool

var errResetNotConfirmed = errors.New("refusing to reset without --yes")

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheKeysCmd)
	cacheCmd.AddCommand(cacheGetCmd)
	cacheCmd.AddCommand(cacheResetCmd)

	cacheResetCmd.Flags().BoolVarP(&cacheResetYes, "yes", "y", false, "Confirm deleting the collection's cache and index")
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or reset a collection's embedding cache",
}

// CacheKeysResponse is the response for the cache keys command.
type CacheKeysResponse struct {
	Collection string   `json:"collection"`
	Keys       []string `json:"keys"`
	Total      int      `json:"total"`
}

// StatusResponse is a generic response for commands that return status.
type StatusResponse struct {
	Status     string `json:"status"`
	Collection string `json:"collection"`
}

var cacheKeysCmd = &cobra.Command{
	Use:   "keys <collection>",
	Short: "List the cache keys of a collection",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheKeys,
}

// CacheGetResponse is the response for the cache get command.
type CacheGetResponse struct {
	Collection string    `json:"collection"`
	Key        string    `json:"key"`
	Cached     bool      `json:"cached"`
	Dimensions int       `json:"dimensions,omitempty"`
	Vector     []float32 `json:"vector,omitempty"`
}

var cacheGetCmd = &cobra.Command{
	Use:   "get <collection> <abstract>",
	Short: "Show the cached embedding of an abstract",
	Long: `Look up an abstract's cache key and, when cached, its embedding.
Nothing is embedded or written.`,
	Args: cobra.ExactArgs(2),
	RunE: runCacheGet,
}

var cacheResetCmd = &cobra.Command{
	Use:   "reset <collection>",
	Short: "Delete a collection's cached embeddings and vector index",
	Long: `Delete every cached embedding and indexed abstract of a collection.
The next fetch embeds everything again.

Example:
  ra cache reset "JWST discoveries" --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runCacheReset,
}

func runCacheKeys(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	s, err := openSession(ctx, cfg, args[0], nil)
	if err != nil {
		return err
	}
	defer s.Close()

	keys, err := s.Cache().Keys(ctx)
	if err != nil {
		return err
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}

	if humanOutput {
		for _, k := range out {
			outputHuman("%s\n", k)
		}
		outputHuman("\n%d keys\n", len(out))
		return nil
	}
	return outputJSON(CacheKeysResponse{Collection: s.Namespace(), Keys: out, Total: len(out)})
}

func runCacheGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	s, err := openSession(ctx, cfg, args[0], nil)
	if err != nil {
		return err
	}
	defer s.Close()

	key, err := cachekey.Encode(s.Namespace(), args[1])
	if err != nil {
		return err
	}
	vec, ok, err := s.Cache().Lookup(ctx, document.New(args[1], nil))
	if err != nil {
		return err
	}
	resp := CacheGetResponse{Collection: s.Namespace(), Key: key.String(), Cached: ok, Dimensions: len(vec), Vector: vec}

	if humanOutput {
		if !ok {
			outputHuman("%s: not cached\n", key)
			return nil
		}
		outputHuman("%s: cached, %d dimensions\n", key, len(vec))
		return nil
	}
	return outputJSON(resp)
}

func runCacheReset(cmd *cobra.Command, args []string) error {
	if !cacheResetYes {
		return errResetNotConfirmed
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	s, err := openSession(ctx, cfg, args[0], nil)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Reset(ctx); err != nil {
		return err
	}

	if humanOutput {
		outputHuman("Reset %s\n", s.DisplayName())
		return nil
	}
	return outputJSON(StatusResponse{Status: "reset", Collection: s.Namespace()})
}
