package pathstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dgallion1/deckcheck/internal/report"
)

// Sink archives run summaries under reports/<content-hash>/<run-id>.
type Sink struct {
	client *Client
	source string
}

func NewSink(client *Client) *Sink {
	return &Sink{client: client, source: "deckcheck"}
}

// RunPrefix is the key under which all runs of one deck are stored.
func RunPrefix(contentHash string) string {
	return "reports/" + contentHash
}

// RunKey is the key of a single run.
func RunKey(contentHash, runID string) string {
	return RunPrefix(contentHash) + "/" + runID
}

// Publish writes the summary of r and links it to the previous run of the
// same deck, if any.
func (s *Sink) Publish(ctx context.Context, r *report.AnalysisResult) error {
	hash := r.Presentation.ContentHash
	if hash == "" || r.RunID == "" {
		return fmt.Errorf("publish: result has no content hash or run id")
	}
	prev, err := s.latest(ctx, hash)
	if err != nil {
		return fmt.Errorf("publish: list previous runs: %w", err)
	}

	key := RunKey(hash, r.RunID)
	err = s.client.PutNode(ctx, key, NodeRequest{
		Value:      runValue(r),
		MemoryType: "episodic",
		Salience:   salience(r),
		Source:     s.source,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}

	if prev == "" || prev == key {
		return nil
	}
	err = s.client.PutLink(ctx, LinkRequest{
		From:    prev,
		To:      key,
		Weight:  1,
		Summary: "re-analysis of " + r.Presentation.Source,
	})
	if err != nil {
		return fmt.Errorf("link %s -> %s: %w", prev, key, err)
	}
	return nil
}

// Runs lists the archived runs of one deck, newest first.
func (s *Sink) Runs(ctx context.Context, contentHash string) ([]Node, error) {
	nodes, err := s.client.ListChildren(ctx, RunPrefix(contentHash), 200)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		return completedAt(nodes[i]) > completedAt(nodes[j])
	})
	return nodes, nil
}

// Run returns one archived run.
func (s *Sink) Run(ctx context.Context, contentHash, runID string) (*Node, error) {
	return s.client.GetNode(ctx, RunKey(contentHash, runID))
}

// Forget deletes every archived run of one deck.
func (s *Sink) Forget(ctx context.Context, contentHash string) error {
	return s.client.DeleteNode(ctx, RunPrefix(contentHash), true)
}

func (s *Sink) latest(ctx context.Context, hash string) (string, error) {
	nodes, err := s.Runs(ctx, hash)
	if err != nil || len(nodes) == 0 {
		return "", err
	}
	return nodes[0].Key, nil
}

func runValue(r *report.AnalysisResult) map[string]any {
	return map[string]any{
		"run_id":         r.RunID,
		"source":         r.Presentation.Source,
		"title":          r.Presentation.Title,
		"slides":         r.Presentation.SlideCount,
		"status":         string(r.Status),
		"diagnostic":     r.Diagnostic,
		"summary":        r.Summary,
		"quick_summary":  report.QuickSummary(r),
		"provider":       r.Provider,
		"model":          r.Model,
		"payload_digest": r.PayloadDigest,
		"completed_at":   r.CompletedAt.UTC().Format(time.RFC3339),
	}
}

// Runs with critical findings are the ones worth recalling.
func salience(r *report.AnalysisResult) float64 {
	switch r.Verdict() {
	case report.VerdictCritical:
		return 0.9
	case report.VerdictFindings:
		return 0.6
	case report.VerdictFailed:
		return 0.2
	}
	return 0.3
}

// RFC 3339 UTC timestamps sort lexically.
func completedAt(n Node) string {
	m, ok := n.Value.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := m["completed_at"].(string)
	return s
}
