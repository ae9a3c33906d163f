package turn

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/papercomputeco/chronicle/pkg/narrative"
	"github.com/papercomputeco/chronicle/pkg/storage"
)

// buildWorldState renders the hot context for the entities active in this
// turn: each profile plus its outgoing relationships. Partial data is fine;
// an entity with no relationships still gets its profile line.
func buildWorldState(ctx context.Context, store storage.Driver, entities []*narrative.Entity) (string, error) {
	if len(entities) == 0 {
		return "", nil
	}

	var sb strings.Builder

	for i, entity := range entities {
		if i > 0 {
			sb.WriteString("\n")
		}

		sb.WriteString(fmt.Sprintf("### %s (%s)\n", entity.Name, entity.Kind))
		if entity.Summary != "" {
			sb.WriteString(entity.Summary)
			sb.WriteString("\n")
		}
		for _, attr := range sortedAttributes(entity.Attributes) {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", attr.key, attr.value))
		}

		edges, err := store.Relationships(ctx, entity.ID)
		if err != nil {
			return "", fmt.Errorf("relationships for %s: %w", entity.Name, err)
		}
		for _, edge := range edges {
			other, err := store.GetEntity(ctx, edge.ToEntityID)
			if err != nil {
				return "", fmt.Errorf("relationship counterpart %d: %w", edge.ToEntityID, err)
			}
			line := fmt.Sprintf("- %s of %s (valence %+.1f)", edge.Type, other.Name, edge.Valence)
			if edge.Dynamic != "" {
				line += ": " + edge.Dynamic
			}
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}

	return strings.TrimRight(sb.String(), "\n"), nil
}

type attribute struct {
	key   string
	value string
}

func sortedAttributes(attrs map[string]string) []attribute {
	out := make([]attribute, 0, len(attrs))
	for key, value := range attrs {
		out = append(out, attribute{key: key, value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}
