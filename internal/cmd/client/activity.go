package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

// NewActivityCommand constructs the `activity` command group.
func NewActivityCommand(baseURL BaseURLFunc) *cobra.Command {
	activityCmd := &cobra.Command{Use: "activity", Short: "Activity feed operations"}
	activityCmd.AddCommand(
		newActivityListCommand(baseURL),
		newActivityEmitCommand(baseURL),
		newActivityStatsCommand(baseURL),
		newActivityTailCommand(baseURL),
	)
	return activityCmd
}

// newActivityListCommand constructs the `activity list` subcommand.
func newActivityListCommand(baseURL BaseURLFunc) *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent activity, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			beforeID, _ := cmd.Flags().GetUint64("before-id")
			types, _ := cmd.Flags().GetString("types")

			q := url.Values{}
			if limit > 0 {
				q.Set("limit", fmt.Sprintf("%d", limit))
			}
			if beforeID > 0 {
				q.Set("before_id", fmt.Sprintf("%d", beforeID))
			}
			if types != "" {
				q.Set("types", types)
			}
			path := "/v1/activity"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			var out map[string]any
			if err := doGet(baseURL, path, &out); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	listCmd.Flags().Int("limit", 0, "Max events to return (server caps the page)")
	listCmd.Flags().Uint64("before-id", 0, "Return only events with id below this (exclusive)")
	listCmd.Flags().String("types", "", "Comma-separated type patterns, e.g. contact.*,message.updated")
	return listCmd
}

// newActivityEmitCommand constructs the `activity emit` subcommand.
func newActivityEmitCommand(baseURL BaseURLFunc) *cobra.Command {
	emitCmd := &cobra.Command{
		Use:   "emit",
		Short: "Emit an activity event",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eventType, _ := cmd.Flags().GetString("type")
			entityID, _ := cmd.Flags().GetString("entity-id")
			payload, _ := cmd.Flags().GetString("payload")
			if eventType == "" {
				return fmt.Errorf("--type is required")
			}

			body := map[string]any{"type": eventType, "entity_id": entityID}
			if payload != "" {
				body["payload"] = json.RawMessage(payload)
			}
			var out map[string]any
			if err := doPost(baseURL, "/v1/activity/emit", body, &out); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	emitCmd.Flags().String("type", "", "Event type, {entity}.{action}")
	emitCmd.Flags().String("entity-id", "", "Entity identifier")
	emitCmd.Flags().String("payload", "", "JSON payload")
	return emitCmd
}

// newActivityStatsCommand constructs the `activity stats` subcommand.
func newActivityStatsCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show activity feed statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out map[string]any
			if err := doGet(baseURL, "/v1/activity/stats", &out); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

// newActivityTailCommand constructs the `activity tail` subcommand.
func newActivityTailCommand(baseURL BaseURLFunc) *cobra.Command {
	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Stream live activity over SSE",
		RunE: func(cmd *cobra.Command, _ []string) error {
			resumeAfter, _ := cmd.Flags().GetString("resume-after")
			types, _ := cmd.Flags().GetString("types")
			filter, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")

			q := url.Values{}
			if resumeAfter != "" {
				q.Set("resume_after", resumeAfter)
			}
			if types != "" {
				q.Set("types", types)
			}
			if filter != "" {
				q.Set("filter", filter)
			}
			path := "/v1/activity/stream"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, baseURL()+path, nil)
			if err != nil {
				return err
			}
			if tok := tokenFromEnv(); tok != "" {
				req.Header.Set("Authorization", "Bearer "+tok)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode >= 300 {
				body, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("http error: %s: %s", resp.Status, strings.TrimSpace(string(body)))
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			count := 0
			return readSSE(resp.Body, func(event, data string) error {
				if event == "stream.closed" {
					return fmt.Errorf("stream closed by server: %s", data)
				}
				var v any
				if err := json.Unmarshal([]byte(data), &v); err != nil {
					return nil
				}
				if err := enc.Encode(v); err != nil {
					return err
				}
				count++
				if limit > 0 && count >= limit {
					return errTailDone
				}
				return nil
			})
		},
	}
	tailCmd.Flags().String("resume-after", "", "Replay persisted events after this id first (0 = full history)")
	tailCmd.Flags().String("types", "", "Comma-separated type patterns")
	tailCmd.Flags().String("filter", "", "CEL filter (server-side)")
	tailCmd.Flags().Int("limit", 0, "Stop after N events (0 = infinite)")
	return tailCmd
}

var errTailDone = fmt.Errorf("tail done")

// readSSE parses an event-stream, invoking fn per frame. Comment lines are
// skipped. fn returning errTailDone stops cleanly.
func readSSE(r io.Reader, fn func(event, data string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var event, data string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, ":"):
			// keepalive comment
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case line == "":
			if data != "" || event != "" {
				if err := fn(event, data); err != nil {
					if err == errTailDone {
						return nil
					}
					return err
				}
				event, data = "", ""
			}
		}
	}
	return sc.Err()
}
