package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bashclaw/bashclaw/internal/util"
)

const indexFile = ".workspace_index.json"

// Section is one h2-delimited block of an agent's MEMORY.md.
type Section struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type workspaceIndex struct {
	Version int                  `json:"version"`
	Agents  map[string][]Section `json:"agents"`
}

// SplitSections breaks markdown into h2-delimited sections. Text before the
// first "## " heading becomes an untitled preamble section.
func SplitSections(md string) []Section {
	var sections []Section
	cur := Section{}
	flush := func() {
		cur.Body = strings.TrimSpace(cur.Body)
		if cur.Title != "" || cur.Body != "" {
			sections = append(sections, cur)
		}
	}
	for _, line := range strings.Split(md, "\n") {
		if strings.HasPrefix(line, "## ") {
			flush()
			cur = Section{Title: strings.TrimSpace(strings.TrimPrefix(line, "## "))}
			continue
		}
		cur.Body += line + "\n"
	}
	flush()
	return sections
}

func (s *Store) workspaceMemoryFile(agent string) string {
	return filepath.Join(s.agentsDir, util.SanitizeSegment(agent), "MEMORY.md")
}

// SyncWorkspace re-reads the agent's MEMORY.md and rebuilds its slice of the
// workspace index. A missing MEMORY.md clears the agent's index entry.
func (s *Store) SyncWorkspace(agent string) error {
	if strings.TrimSpace(agent) == "" {
		return fmt.Errorf("memory: empty agent: %w", util.ErrValidation)
	}
	idx := s.loadIndex()

	data, err := os.ReadFile(s.workspaceMemoryFile(agent))
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("memory: read workspace: %w", err)
		}
		delete(idx.Agents, agent)
	} else {
		idx.Agents[agent] = SplitSections(string(data))
	}
	return s.saveIndex(idx)
}

func (s *Store) loadIndex() workspaceIndex {
	idx := workspaceIndex{Version: 1, Agents: map[string][]Section{}}
	data, err := os.ReadFile(filepath.Join(s.dir, indexFile))
	if err != nil {
		return idx
	}
	json.Unmarshal(data, &idx)
	if idx.Agents == nil {
		idx.Agents = map[string][]Section{}
	}
	return idx
}

func (s *Store) saveIndex(idx workspaceIndex) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("memory: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".index-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(s.dir, indexFile))
}

const snippetMax = 400

// SearchWorkspace scans the agent's MEMORY.md sections for query tokens and
// returns scored snippets. The file is re-synced first so results never
// trail the workspace.
func (s *Store) SearchWorkspace(query, agent string) ([]Result, error) {
	qt := tokens(query)
	if len(qt) == 0 {
		return nil, fmt.Errorf("memory: empty query: %w", util.ErrValidation)
	}
	if strings.TrimSpace(agent) == "" {
		return nil, nil
	}
	if err := s.SyncWorkspace(agent); err != nil {
		return nil, err
	}

	var results []Result
	for _, sec := range s.loadIndex().Agents[agent] {
		titleTok := tokens(sec.Title)
		bodyTok := tokens(sec.Body)
		var score float64
		for _, q := range qt {
			for _, t := range bodyTok {
				if t == q {
					score += 1
				}
			}
			for _, t := range titleTok {
				if t == q {
					score += 2
				}
			}
		}
		if score <= 0 {
			continue
		}
		results = append(results, Result{
			Source:  "workspace",
			Agent:   agent,
			Section: sec.Title,
			Value:   util.Truncate(sec.Body, snippetMax),
			Score:   score,
		})
	}
	return results, nil
}
