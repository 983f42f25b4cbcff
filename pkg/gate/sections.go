package gate

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/cokac/emergent/pkg/graph"
)

// Sections are the parsed macro/tech tag blocks of one work item.
type Sections struct {
	Macro []string
	Tech  []string
}

// ParseSections extracts the "macro:" and "tech:" tag blocks from
// orchestration text. The expected shape is
//
//	macro: strategy, emergence, next-quarter
//	tech: badger, go, storage
//
// one labeled line each, comma-separated tags, case-insensitive labels,
// blank lines and unlabeled lines ignored. A missing or duplicated label
// fails with graph.ErrMalformed — parsing problems surface here, in one
// place, instead of as string scanning in every caller.
func ParseSections(text string) (*Sections, error) {
	var (
		sections  Sections
		haveMacro bool
		haveTech  bool
	)

	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		label, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(label)) {
		case "macro":
			if haveMacro {
				return nil, fmt.Errorf("%w: duplicate macro section", graph.ErrMalformed)
			}
			haveMacro = true
			sections.Macro = splitTags(rest)
		case "tech":
			if haveTech {
				return nil, fmt.Errorf("%w: duplicate tech section", graph.ErrMalformed)
			}
			haveTech = true
			sections.Tech = splitTags(rest)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", graph.ErrMalformed, err)
	}
	if !haveMacro {
		return nil, fmt.Errorf("%w: missing macro section", graph.ErrMalformed)
	}
	if !haveTech {
		return nil, fmt.Errorf("%w: missing tech section", graph.ErrMalformed)
	}
	return &sections, nil
}

func splitTags(s string) []string {
	return graph.NormalizeTags(strings.Split(s, ","))
}
