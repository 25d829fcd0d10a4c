package tools

import (
	"context"
	"fmt"

	"github.com/molviz/pymol-agent/internal/memory"
)

// RegisterRecall adds the recall_memory tool, letting the model search the
// conversation's own memory. In-process tiers are searched by keyword; when
// an archive and embedder are configured, archived records from earlier
// sessions are recalled by embedding similarity as well.
func RegisterRecall(reg *Registry, sys *memory.System, archive memory.Archive, embedder memory.Embedder) error {
	spec := Spec{
		Name:        "recall_memory",
		Description: "Search the agent's memory for earlier events, e.g. which structures were loaded.",
		Params: []Param{
			{Name: "query", Type: TypeString, Description: "What to look for", Required: true},
			{Name: "limit", Type: TypeInteger, Description: "Maximum results (default 5)", Required: false},
		},
	}

	exec := func(ctx context.Context, args map[string]any) (map[string]any, error) {
		query := StringArg(args, "query")
		limit := int(IntArg(args, "limit", 5))

		var found []map[string]any
		for _, rec := range sys.Search(query, limit) {
			found = append(found, recordMap(rec, 0))
		}

		if archive != nil && len(found) < limit {
			remaining := limit - len(found)
			archived, err := searchArchive(ctx, archive, embedder, query, remaining)
			if err != nil {
				return nil, fmt.Errorf("archive search failed: %w", err)
			}
			found = append(found, archived...)
		}

		return map[string]any{"matches": found, "count": len(found)}, nil
	}

	return reg.Register(spec, exec)
}

func searchArchive(ctx context.Context, archive memory.Archive, embedder memory.Embedder, query string, limit int) ([]map[string]any, error) {
	if embedder != nil {
		vec, err := embedder.Embed(ctx, query)
		if err == nil {
			scored, err := archive.SearchSimilar(ctx, vec, limit)
			if err != nil {
				return nil, err
			}
			out := make([]map[string]any, 0, len(scored))
			for _, sr := range scored {
				out = append(out, recordMap(sr.Record, sr.Score))
			}
			return out, nil
		}
		// Embedding failures degrade to keyword search.
	}

	records, err := archive.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		out = append(out, recordMap(rec, 0))
	}
	return out, nil
}

func recordMap(rec memory.Record, score float32) map[string]any {
	m := map[string]any{
		"content":    rec.Content,
		"kind":       string(rec.Kind),
		"importance": rec.Importance,
		"at":         rec.CreatedAt.Format("2006-01-02 15:04"),
	}
	if score > 0 {
		m["similarity"] = score
	}
	return m
}
